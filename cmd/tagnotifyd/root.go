package main

import (
	"github.com/spf13/cobra"

	"tagnotify/internal/config"
)

// globalOpts are flags shared by every subcommand.
type globalOpts struct {
	configPath string
	socketPath string
}

// socket returns the --socket flag, falling back to the config file and then
// the default path.
func (g *globalOpts) socket() (string, int, error) {
	cfg, err := config.NewConfigManager(g.configPath).Parse()
	if err != nil {
		return "", 0, err
	}
	cfg = config.Overrides{SocketPath: g.socketPath}.Apply(cfg)
	return cfg.Socket.Path, cfg.Socket.MaxDatagram, nil
}

// NewRootCmd builds the CLI. Without a subcommand it runs the daemon.
func NewRootCmd() *cobra.Command {
	g := &globalOpts{}
	so := &serveOpts{g: g}

	root := &cobra.Command{
		Use:   "tagnotifyd",
		Short: "Desktop notifications that replace each other by tag",
		Long: `tagnotifyd listens on a Unix datagram socket for small JSON requests and
shows them as desktop notifications. Requests with the same tag replace the
previous notification instead of stacking a new one.

Request format (one datagram each):
    {"tag":"volume","body":"Speakers","value":60}

Only "tag" is required. "value" is passed to the notification server as an
integer hint (progress bar on most servers).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          so.run,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (.json, .yaml or .toml)")
	root.PersistentFlags().StringVar(&g.socketPath, "socket", "", "socket path (default $XDG_RUNTIME_DIR/"+config.DefaultSocketName+")")
	so.bind(root)

	root.AddCommand(
		newServeCmd(g),
		newSendCmd(g),
		newCheckCmd(g),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}
