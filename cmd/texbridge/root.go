package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"

	"github.com/neboloop/texbridge/internal/config"
	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/logging"

	// engine backends register themselves
	_ "github.com/neboloop/texbridge/internal/engine/cdpdriver"
	_ "github.com/neboloop/texbridge/internal/engine/pwdriver"
)

var log = logging.WithComponent("cli")

// Shared CLI flags (used across multiple command files)
var (
	cfgFile string
	backend string
	verbose bool
)

// ServerConfig holds the loaded configuration (set by main, then overlaid
// with --config).
var ServerConfig *config.Config

// baseConfig is ServerConfig before --config; reloads overlay onto it.
var baseConfig config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c
	baseConfig = *c

	rootCmd := &cobra.Command{
		Use:   "texbridge",
		Short: "texbridge - off-screen browser to texture bridge",
		Long: `texbridge renders web pages in an off-screen browser and keeps their pixels
in sync with host textures.

Use 'texbridge snapshot <url>' to render a single page to PNG, or
'texbridge serve' to host bridges behind an HTTP/WebSocket API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyFlags()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config overlaid on the built-in defaults")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", fmt.Sprintf("engine backend %v (default from config)", engine.Drivers()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(SnapshotCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(KeysCmd())

	return rootCmd
}

// applyFlags overlays --config and the global flags onto ServerConfig and
// configures logging.
func applyFlags() error {
	if ServerConfig == nil {
		c := config.Default()
		ServerConfig = &c
		baseConfig = c
	}
	if cfgFile != "" {
		c, err := config.Load(cfgFile, *ServerConfig)
		if err != nil {
			return err
		}
		*ServerConfig = c
	}
	if backend != "" {
		ServerConfig.Engine.Backend = backend
	}

	level := ServerConfig.Log.Level
	if verbose {
		level = "debug"
	}
	logging.SetLevel(level)
	gg.SetLogger(logging.Logger())
	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startEngine initializes the configured backend; the returned func shuts it
// down.
func startEngine(ctx context.Context) (func(), error) {
	if err := engine.Init(ctx, ServerConfig.Engine); err != nil {
		return nil, fmt.Errorf("start %s engine: %w", ServerConfig.Engine.Backend, err)
	}
	return func() {
		if err := engine.Shutdown(); err != nil {
			log.Warnf("engine shutdown: %v", err)
		}
	}, nil
}
