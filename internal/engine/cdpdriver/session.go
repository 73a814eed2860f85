package cdpdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/engine/devtools"
	"github.com/neboloop/texbridge/internal/surface"
)

type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	target    engine.PaintTarget
	mb        *engine.Mailbox
	binding   string
	format    devtools.Format
	frameRate int
	frames    *devtools.Worker

	mu       sync.Mutex
	viewport surface.Viewport
	closed   bool
	lost     bool
}

// onEvent runs on chromedp's event goroutine and must not block or issue
// commands; frames go to the worker and everything else to the mailbox.
func (s *session) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventScreencastFrame:
		id := e.SessionID
		s.frames.Push(devtools.Frame{
			Data: e.Data,
			Ack:  func() { s.ack(id) },
		})
	case *page.EventLoadEventFired:
		s.mb.Post(engine.Event{Kind: engine.EventLoadEnd})
	case *runtime.EventBindingCalled:
		if e.Name == s.binding {
			s.mb.Post(engine.Event{Kind: engine.EventMessage, Payload: e.Payload})
		}
	case *inspector.EventTargetCrashed:
		s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: "render process crashed"})
	case *inspector.EventDetached:
		if !s.isClosed() {
			s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: "detached: " + string(e.Reason)})
		}
	}
}

func (s *session) ack(id int64) {
	if s.isClosed() {
		return
	}
	if err := chromedp.Run(s.ctx, devtools.FrameAck(id).Params); err != nil {
		log.Debugf("frame ack: %v", err)
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) run(actions ...chromedp.Action) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	return chromedp.Run(s.ctx, actions...)
}

// Resize changes the device metrics and restarts the screencast so frames
// arrive at the new size.
func (s *session) Resize(ctx context.Context, vp surface.Viewport) error {
	if !vp.Valid() {
		return fmt.Errorf("invalid viewport %s", vp)
	}
	err := s.run(
		devtools.StopScreencast().Params,
		devtools.DeviceMetrics(vp).Params,
		devtools.StartScreencast(vp, s.format, s.frameRate).Params,
	)
	if err != nil {
		return fmt.Errorf("resize to %s: %w", vp, err)
	}
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return nil
}

// Navigate starts loading url and returns without waiting for the load; the
// load end arrives through the mailbox.
func (s *session) Navigate(ctx context.Context, url string) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	go func() {
		if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil && !s.isClosed() {
			log.Warnf("navigate %s: %v", url, err)
		}
	}()
	return nil
}

func (s *session) Reload(ctx context.Context) error {
	return s.run(page.Reload())
}

// Evaluate runs script in the main frame. Script exceptions are returned as
// errors; the result value is discarded.
func (s *session) Evaluate(ctx context.Context, script string) error {
	return s.run(chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate(script).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		return nil
	}))
}

func (s *session) SetZoom(ctx context.Context, factor float64) error {
	return s.run(devtools.Zoom(factor).Params)
}

func (s *session) SetTransparent(ctx context.Context, transparent bool) error {
	return s.run(devtools.Background(transparent).Params)
}

func (s *session) SetScrollbarsHidden(ctx context.Context, hidden bool) error {
	return s.run(devtools.ScrollbarsHidden(hidden).Params)
}

// Submit dispatches one native input event.
func (s *session) Submit(ctx context.Context, ev engine.NativeEvent) error {
	cmd, err := devtools.Input(ev)
	if err != nil {
		return err
	}
	return s.run(cmd.Params)
}

// Pump reports a lost browser connection once. Paints and callbacks arrive on
// their own goroutines, so there is no other per-tick work.
func (s *session) Pump(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	if s.ctx.Err() != nil && !s.lost {
		s.lost = true
		s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: "browser connection lost"})
	}
	return nil
}

// Close stops the screencast and closes the tab.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return engine.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.frames.Stop()
	_ = chromedp.Run(s.ctx, devtools.StopScreencast().Params)
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && s.ctx.Err() == nil {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}
