package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

// MaxZoomLevel bounds zoom requests in both directions.
const MaxZoomLevel = 10

// ZoomStep is the scale factor of one zoom level.
const ZoomStep = 1.2

// ZoomFactor converts a zoom level into a page scale factor.
func ZoomFactor(level int) float64 {
	return math.Pow(ZoomStep, float64(level))
}

func clampZoom(level int) int {
	return max(-MaxZoomLevel, min(MaxZoomLevel, level))
}

// instance owns one engine session and the mailbox it posts into. Once dead
// it refuses every operation; it is never revived, only replaced.
type instance struct {
	sess      engine.Session
	mb        *engine.Mailbox
	dead      bool
	destroyed bool
}

func openInstance(ctx context.Context, driver engine.Driver, opts engine.SessionOptions, target engine.PaintTarget) (*instance, error) {
	if !opts.Viewport.Valid() {
		return nil, ErrDormant
	}
	mb := engine.NewMailbox(engine.DefaultMailboxSize)

	var (
		sess engine.Session
		err  error
	)
	if driver != nil {
		sess, err = driver.NewSession(ctx, opts, target, mb)
	} else {
		sess, err = engine.NewSession(ctx, opts, target, mb)
	}
	if err != nil {
		mb.Close()
		return nil, fmt.Errorf("create browser session: %w", err)
	}
	return &instance{sess: sess, mb: mb}, nil
}

// usable reports whether the session may be driven. Dead or destroyed
// sessions log the skipped operation.
func (i *instance) usable(op string) bool {
	switch {
	case i == nil || i.destroyed:
		log.Debugf("%s skipped: no browser", op)
		return false
	case i.dead:
		log.Warnf("%s skipped: browser is dead", op)
		return false
	}
	return true
}

func (i *instance) resize(ctx context.Context, vp surface.Viewport) error {
	if !i.usable("resize") {
		return nil
	}
	return i.sess.Resize(ctx, vp)
}

func (i *instance) loadURL(ctx context.Context, url string) error {
	if !i.usable("loadUrl") {
		return nil
	}
	return i.sess.Navigate(ctx, url)
}

func (i *instance) refresh(ctx context.Context) error {
	if !i.usable("refresh") {
		return nil
	}
	return i.sess.Reload(ctx)
}

func (i *instance) executeJS(ctx context.Context, code string) error {
	if !i.usable("executeJavascript") {
		return nil
	}
	return i.sess.Evaluate(ctx, code)
}

func (i *instance) zoom(ctx context.Context, level int) error {
	if !i.usable("zoom") {
		return nil
	}
	return i.sess.SetZoom(ctx, ZoomFactor(level))
}

func (i *instance) setTransparent(ctx context.Context, on bool) error {
	if !i.usable("setTransparent") {
		return nil
	}
	return i.sess.SetTransparent(ctx, on)
}

func (i *instance) setScrollbars(ctx context.Context, visible bool) error {
	if !i.usable("setScrollbars") {
		return nil
	}
	return i.sess.SetScrollbarsHidden(ctx, !visible)
}

func (i *instance) submit(ctx context.Context, ev engine.NativeEvent) error {
	if !i.usable("input") {
		return nil
	}
	return i.sess.Submit(ctx, ev)
}

// pump runs the session's host-side work and returns the events posted since
// the last pump.
func (i *instance) pump(ctx context.Context) []engine.Event {
	if i == nil || i.destroyed {
		return nil
	}
	if !i.dead {
		if err := i.sess.Pump(ctx); err != nil && !errors.Is(err, engine.ErrSessionClosed) {
			log.Warnf("engine pump: %v", err)
		}
	}
	return i.mb.Drain()
}

// kill marks the session dead and releases it. Events still queued are kept
// for the current drain.
func (i *instance) kill() {
	if i == nil || i.dead {
		return
	}
	i.dead = true
	if err := i.sess.Close(); err != nil {
		log.Warnf("close dead browser: %v", err)
	}
}

// destroy releases the session. Safe to call repeatedly.
func (i *instance) destroy() error {
	if i == nil || i.destroyed {
		return nil
	}
	i.destroyed = true
	i.mb.Close()
	if i.dead {
		return nil
	}
	return i.sess.Close()
}
