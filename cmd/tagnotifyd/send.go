package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tagnotify/internal/client"
	"tagnotify/internal/wire"
)

func newSendCmd(g *globalOpts) *cobra.Command {
	var (
		tag   string
		body  string
		value int32
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one request to a running daemon",
		Example: `  tagnotifyd send --tag volume --body Speakers --value 60
  tagnotifyd send --tag build --body "tests passed"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, limit, err := g.socket()
			if err != nil {
				return err
			}
			req := wire.Request{Tag: tag}
			if cmd.Flags().Changed("body") {
				req.Body = &body
			}
			if cmd.Flags().Changed("value") {
				req.Value = &value
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			return client.Send(ctx, path, req, limit)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "notification tag (required)")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	cmd.Flags().Int32Var(&value, "value", 0, "integer hint, e.g. a percentage")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}
