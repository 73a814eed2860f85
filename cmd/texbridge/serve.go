package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/config"
	"github.com/neboloop/texbridge/internal/logging"
	"github.com/neboloop/texbridge/internal/server"
)

// ServeCmd starts the engine and the HTTP/WebSocket server.
func ServeCmd() *cobra.Command {
	var (
		addr  string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host bridges behind an HTTP/WebSocket API",
		Long: `Starts the engine and serves bridges over HTTP. Viewers connect to
/bridges/{id}/ws to receive JPEG frames and send input.

With --config, the file is watched and bridge defaults and the log level are
reloaded on change. Engine and server settings need a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			stop, err := startEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			c := *ServerConfig
			if addr == "" {
				addr = c.Server.Addr
			}
			srv := server.New(bridge.NewManager(nil), server.Options{
				FrameRate:   c.Server.FrameRate,
				JPEGQuality: c.Server.JPEGQuality,
				Defaults:    c.Bridge.Options(),
				Quiet:       quiet,
			})

			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			registerHooks(cmd.OutOrStdout(), srv, stopWatch)

			if cfgFile != "" {
				err := config.Watch(watchCtx, cfgFile, baseConfig, func(next config.Config) {
					srv.SetDefaults(next.Bridge.Options())
					level := next.Log.Level
					if verbose {
						level = "debug"
					}
					logging.SetLevel(level)
				})
				if err != nil {
					log.Warnf("config hot reload disabled: %v", err)
				}
			}

			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not log requests")

	return cmd
}
