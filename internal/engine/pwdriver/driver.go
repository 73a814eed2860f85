// Package pwdriver runs off-screen sessions through Playwright's Chromium.
// Page lifecycle and bindings use the Playwright API; frames, input and
// emulation go over a raw CDP session so they match the chromedp backend.
package pwdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/engine/devtools"
	"github.com/neboloop/texbridge/internal/logging"
)

// Name is the backend name used in engine.Config.
const Name = "playwright"

var log = logging.WithComponent("playwright")

func init() {
	engine.Register(Name, &Driver{})
}

// Driver owns the Playwright driver process and one Chromium.
type Driver struct {
	mu sync.Mutex

	cfg     engine.Config
	format  devtools.Format
	pw      *playwright.Playwright
	browser playwright.Browser
}

func launchOptions(cfg engine.Config) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(cfg.Headless),
		ChromiumSandbox: playwright.Bool(!cfg.NoSandbox),
		Args:            []string{"--hide-scrollbars=false", "--autoplay-policy=no-user-gesture-required"},
	}
	if cfg.Muted {
		opts.Args = append(opts.Args, "--mute-audio")
	}
	if cfg.DebuggerPort > 0 {
		opts.Args = append(opts.Args, fmt.Sprintf("--remote-debugging-port=%d", cfg.DebuggerPort))
	}
	if cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecutablePath)
	}
	opts.Args = append(opts.Args, cfg.ExtraArgs...)
	return opts
}

// Init starts Playwright and launches Chromium. Browsers are installed on
// first use unless a custom executable is configured.
func (d *Driver) Init(ctx context.Context, cfg engine.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		return nil
	}
	format, err := devtools.ParseFormat(cfg.FrameFormat)
	if err != nil {
		return err
	}

	if cfg.ExecutablePath == "" {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(launchOptions(cfg))
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch chromium: %w", err)
	}
	if ctx.Err() != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return ctx.Err()
	}

	log.Infof("chromium %s launched", browser.Version())
	d.cfg = cfg
	d.format = format
	d.pw = pw
	d.browser = browser
	return nil
}

// NewSession opens an isolated browser context with one page.
func (d *Driver) NewSession(ctx context.Context, opts engine.SessionOptions, target engine.PaintTarget, mb *engine.Mailbox) (engine.Session, error) {
	d.mu.Lock()
	browser := d.browser
	cfg := d.cfg
	format := d.format
	d.mu.Unlock()

	if browser == nil {
		return nil, engine.ErrNotInitialized
	}
	if !opts.Viewport.Valid() {
		return nil, fmt.Errorf("invalid viewport %s", opts.Viewport)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  int(opts.Viewport.Width),
			Height: int(opts.Viewport.Height),
		},
		DeviceScaleFactor: playwright.Float(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	s, err := openSession(bctx, opts, target, mb, format, cfg.FrameRate)
	if err != nil {
		_ = bctx.Close()
		return nil, err
	}
	return s, nil
}

// Shutdown closes the browser and stops Playwright.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	if stopErr := d.pw.Stop(); err == nil {
		err = stopErr
	}
	d.browser = nil
	d.pw = nil
	return err
}
