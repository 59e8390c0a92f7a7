package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tagnotify/pkg/systemd"
)

func newStatusCmd() *cobra.Command {
	var units []string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the daemon's systemd user units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			states, err := systemd.UserUnits(ctx, units...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, u := range states {
				fmt.Fprintf(out, "%-22s %-10s %-9s %s\n", u.Name, u.ActiveState, u.SubState, u.LoadState)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&units, "unit", nil, "unit names to query (default tagnotifyd.service,tagnotifyd.socket)")
	return cmd
}
