package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"tagnotify/internal/app"
	"tagnotify/internal/config"
)

type serveOpts struct {
	g          *globalOpts
	durationMS int
	logLevel   string
}

func (o *serveOpts) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.durationMS, "duration", "t", int(config.DefaultDuration/time.Millisecond),
		"notification timeout in milliseconds (-1 for server default)")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

func newServeCmd(g *globalOpts) *cobra.Command {
	o := &serveOpts{g: g}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification daemon (default)",
		Args:  cobra.NoArgs,
		RunE:  o.run,
	}
	o.bind(cmd)
	return cmd
}

func (o *serveOpts) overrides(cmd *cobra.Command) config.Overrides {
	ov := config.Overrides{SocketPath: o.g.socketPath, LogLevel: o.logLevel}
	if cmd.Flags().Changed("duration") {
		d := time.Duration(o.durationMS) * time.Millisecond
		if o.durationMS < 0 {
			d = -time.Millisecond
		}
		ov.Duration = &d
	}
	return ov
}

func (o *serveOpts) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := app.NewApp(app.Options{
		ConfigPath: o.g.configPath,
		Overrides:  o.overrides(cmd),
	})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
