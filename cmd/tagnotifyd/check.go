package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagnotify/internal/config"
)

func newCheckCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(g.configPath).Parse()
			if err != nil {
				return err
			}
			cfg = config.Overrides{SocketPath: g.socketPath}.Apply(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "socket:   %s (max %d bytes)\n", cfg.Socket.Path, cfg.Socket.MaxDatagram)
			fmt.Fprintf(out, "duration: %s\n", cfg.Notify.Duration)
			fmt.Fprintf(out, "on error: %s\n", cfg.Notify.OnGatewayError)
			if idle, every, _ := cfg.Sweep(); idle > 0 {
				fmt.Fprintf(out, "sweep:    idle > %s, %s\n", idle, every)
			}
			if cfg.Journal.Driver != "" {
				fmt.Fprintf(out, "journal:  %s %s\n", cfg.Journal.Driver, cfg.Journal.Path)
			}
			fmt.Fprintln(out, "config ok")
			return nil
		},
	}
}
