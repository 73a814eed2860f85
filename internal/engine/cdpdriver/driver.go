// Package cdpdriver runs off-screen sessions in a local Chromium over the
// DevTools protocol using chromedp.
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/engine/devtools"
	"github.com/neboloop/texbridge/internal/logging"
)

// Name is the backend name used in engine.Config.
const Name = "chromedp"

var log = logging.WithComponent("chromedp")

func init() {
	engine.Register(Name, &Driver{})
}

var launchErrorHints = map[string]string{
	"executable file not found": "Install Chromium or set engine.executablePath",
	"no such file":              "Check engine.executablePath points at a browser binary",
	"context deadline":          "Browser took too long to start. Retry or raise the startup timeout",
	"sandbox":                   "Set engine.noSandbox when running as root or inside a container",
	"websocket url timeout":     "Browser started but DevTools never answered. Check engine.extraArgs",
}

// wrapLaunchError wraps an error with an actionable hint
func wrapLaunchError(err error, action string) error {
	if err == nil {
		return nil
	}
	errStr := strings.ToLower(err.Error())
	for pattern, hint := range launchErrorHints {
		if strings.Contains(errStr, pattern) {
			return fmt.Errorf("%s failed: %w\n\nHint: %s", action, err, hint)
		}
	}
	return fmt.Errorf("%s failed: %w", action, err)
}

// Driver owns one browser process shared by every session.
type Driver struct {
	mu sync.Mutex

	cfg    engine.Config
	format devtools.Format

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Init launches the browser. The browser is bound to a background context so
// it outlives ctx; Shutdown stops it.
func (d *Driver) Init(ctx context.Context, cfg engine.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx != nil {
		return nil
	}

	format, err := devtools.ParseFormat(cfg.FrameFormat)
	if err != nil {
		return err
	}
	exe, err := FindChromeExecutable(cfg.ExecutablePath)
	if err != nil {
		return err
	}
	if exe != nil {
		log.Infof("using %s at %s", exe.Kind, exe.Path)
	} else {
		log.Warnf("no browser found in the usual locations, deferring to chromedp lookup")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, exe)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Errorf),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return wrapLaunchError(err, "launch browser")
	}

	d.cfg = cfg
	d.format = format
	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	return nil
}

// NewSession opens a tab sized to opts.Viewport and starts its screencast.
func (d *Driver) NewSession(ctx context.Context, opts engine.SessionOptions, target engine.PaintTarget, mb *engine.Mailbox) (engine.Session, error) {
	d.mu.Lock()
	browserCtx := d.browserCtx
	cfg := d.cfg
	format := d.format
	d.mu.Unlock()

	if browserCtx == nil {
		return nil, engine.ErrNotInitialized
	}
	if !opts.Viewport.Valid() {
		return nil, fmt.Errorf("invalid viewport %s", opts.Viewport)
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	s := &session{
		ctx:       tabCtx,
		cancel:    cancel,
		target:    target,
		mb:        mb,
		binding:   opts.BindingName,
		viewport:  opts.Viewport,
		format:    format,
		frameRate: cfg.FrameRate,
		frames:    devtools.NewWorker(target),
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	actions := []chromedp.Action{
		devtools.DeviceMetrics(opts.Viewport).Params,
		devtools.Background(opts.Transparent).Params,
	}
	if opts.BindingName != "" {
		actions = append(actions, runtime.AddBinding(opts.BindingName))
	}
	if opts.BootstrapScript != "" {
		src := opts.BootstrapScript
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
			return err
		}))
	}
	actions = append(actions, devtools.StartScreencast(opts.Viewport, format, cfg.FrameRate).Params)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, actions...) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.frames.Stop()
		cancel()
		return nil, wrapLaunchError(err, "open tab")
	}
	log.Debugf("tab opened at %s", opts.Viewport)
	return s, nil
}

// Shutdown closes the browser. Safe to call when not running.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	d.browserCtx = nil
	d.browserCancel = nil
	d.allocCancel = nil
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
