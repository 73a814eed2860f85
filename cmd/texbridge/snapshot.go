package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/scene"
)

// SnapshotCmd renders one page through a bridge and the scene compositor.
func SnapshotCmd() *cobra.Command {
	var (
		out         string
		width       uint32
		height      uint32
		timeout     time.Duration
		settle      time.Duration
		transparent bool
		border      string
		label       string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <url>",
		Short: "Render a page to a PNG file",
		Long: `Opens a bridge on the URL, pumps it until the page has loaded and painted,
composites the texture through the scene and writes the result as PNG.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			stop, err := startEngine(ctx)
			if err != nil {
				return err
			}
			defer stop()

			opts := ServerConfig.Bridge.Options()
			opts.URL = args[0]
			if width > 0 {
				opts.Viewport.Width = width
			}
			if height > 0 {
				opts.Viewport.Height = height
			}
			if cmd.Flags().Changed("transparent") {
				opts.Transparent = transparent
			}
			if !opts.Viewport.Valid() {
				return fmt.Errorf("invalid viewport %s", opts.Viewport)
			}

			sc := scene.New(int(opts.Viewport.Width), int(opts.Viewport.Height))
			if opts.Transparent {
				sc.SetBackground(0, 0, 0, 0)
			}
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			if err := snapshot(ctx, opts, sc, snapshotOptions{settle: settle, border: border, label: label, out: out}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, opts.Viewport)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "snapshot.png", "output PNG path")
	cmd.Flags().Uint32Var(&width, "width", 0, "viewport width (default from config)")
	cmd.Flags().Uint32Var(&height, "height", 0, "viewport height (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up when the page has not painted by then")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "keep pumping this long after load")
	cmd.Flags().BoolVar(&transparent, "transparent", false, "render over a transparent background")
	cmd.Flags().StringVar(&border, "border", "", "outline the page with a hex color")
	cmd.Flags().StringVar(&label, "label", "", "highlight the page and tag it with this text")

	return cmd
}

// pumpInterval paces the snapshot loop like a 60 Hz host frame.
const pumpInterval = time.Second / 60

type snapshotOptions struct {
	settle time.Duration
	border string
	label  string
	out    string
}

// snapshot drives a bridge until it has painted after load and settle has
// passed, then writes the composited scene. When ctx ends first, a frame
// painted before load is still accepted. The PNG is written before the
// bridge releases its texture.
func snapshot(ctx context.Context, opts bridge.Options, sc *scene.Scene, so snapshotOptions) error {
	b, err := bridge.New(ctx, opts, sc)
	if err != nil {
		return err
	}
	defer b.Close()

	var loadedAt time.Time
	b.OnLoadEnd(func() {
		if loadedAt.IsZero() {
			loadedAt = time.Now()
		}
	})
	var crash string
	b.OnRendererCrash(func(reason string) { crash = reason })

	uploaded := false
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if uploaded {
				log.Warnf("%s did not finish loading, using the last frame", opts.URL)
				return save(b, sc, so)
			}
			return fmt.Errorf("no frame from %s: %w", opts.URL, ctx.Err())
		case <-ticker.C:
		}

		if err := b.Pump(ctx); err != nil {
			return err
		}
		if crash != "" {
			return fmt.Errorf("%s: %w (%s)", opts.URL, bridge.ErrDead, crash)
		}
		ok, err := b.Sync()
		if err != nil {
			return err
		}
		uploaded = uploaded || ok
		if uploaded && !loadedAt.IsZero() && time.Since(loadedAt) >= so.settle {
			return save(b, sc, so)
		}
	}
}

func save(b *bridge.Bridge, sc *scene.Scene, so snapshotOptions) error {
	id, ok := b.Texture()
	if !ok {
		return errors.New("bridge has no texture")
	}
	if so.border != "" {
		if err := sc.SetBorder(id, so.border); err != nil {
			return err
		}
	}
	if so.label == "" {
		return sc.SavePNG(so.out)
	}
	r, err := sc.Bounds(id)
	if err != nil {
		return err
	}
	return sc.SaveAnnotatedPNG(so.out, []scene.Annotation{{Rect: r, Label: so.label}})
}
