package pwdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/engine/devtools"
	"github.com/neboloop/texbridge/internal/surface"
)

// cdpSender is the part of playwright.CDPSession the session needs.
type cdpSender interface {
	Send(method string, params map[string]interface{}) (interface{}, error)
}

type session struct {
	bctx playwright.BrowserContext
	page playwright.Page
	cdp  playwright.CDPSession

	mb        *engine.Mailbox
	format    devtools.Format
	frameRate int
	frames    *devtools.Worker

	mu     sync.Mutex
	closed bool
	lost   bool
}

func openSession(bctx playwright.BrowserContext, opts engine.SessionOptions, target engine.PaintTarget, mb *engine.Mailbox, format devtools.Format, frameRate int) (*session, error) {
	if opts.BootstrapScript != "" {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(opts.BootstrapScript)}); err != nil {
			return nil, fmt.Errorf("add bootstrap script: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	cdp, err := bctx.NewCDPSession(page)
	if err != nil {
		return nil, fmt.Errorf("open cdp session: %w", err)
	}

	s := &session{
		bctx:      bctx,
		page:      page,
		cdp:       cdp,
		mb:        mb,
		format:    format,
		frameRate: frameRate,
		frames:    devtools.NewWorker(target),
	}

	if opts.BindingName != "" {
		err := page.ExposeBinding(opts.BindingName, func(_ *playwright.BindingSource, args ...interface{}) interface{} {
			s.onMessage(args)
			return nil
		})
		if err != nil {
			s.frames.Stop()
			return nil, fmt.Errorf("expose binding %s: %w", opts.BindingName, err)
		}
	}
	page.OnLoad(func(playwright.Page) {
		s.mb.Post(engine.Event{Kind: engine.EventLoadEnd})
	})
	page.OnCrash(func(playwright.Page) {
		s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: "render process crashed"})
	})
	cdp.On("Page.screencastFrame", s.onFrame)

	for _, cmd := range []devtools.Command{
		devtools.Background(opts.Transparent),
		devtools.StartScreencast(opts.Viewport, format, frameRate),
	} {
		if err := send(cdp, cmd); err != nil {
			s.frames.Stop()
			return nil, err
		}
	}
	log.Debugf("page opened at %s", opts.Viewport)
	return s, nil
}

func send(c cdpSender, cmd devtools.Command) error {
	params, err := cmd.Map()
	if err != nil {
		return err
	}
	if _, err := c.Send(cmd.Method, params); err != nil {
		return fmt.Errorf("%s: %w", cmd.Method, err)
	}
	return nil
}

// onMessage receives the page's single string argument.
func (s *session) onMessage(args []interface{}) {
	if len(args) != 1 {
		log.Warnf("binding called with %d arguments", len(args))
		return
	}
	payload, ok := args[0].(string)
	if !ok {
		log.Warnf("binding called with %T", args[0])
		return
	}
	s.mb.Post(engine.Event{Kind: engine.EventMessage, Payload: payload})
}

func (s *session) onFrame(params map[string]interface{}) {
	data, _ := params["data"].(string)
	id, _ := params["sessionId"].(float64)
	s.frames.Push(devtools.Frame{
		Data: data,
		Ack: func() {
			if s.isClosed() {
				return
			}
			if err := send(s.cdp, devtools.FrameAck(int64(id))); err != nil {
				log.Debugf("frame ack: %v", err)
			}
		},
	})
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) sendAll(cmds ...devtools.Command) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	for _, cmd := range cmds {
		if err := send(s.cdp, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Resize(ctx context.Context, vp surface.Viewport) error {
	if !vp.Valid() {
		return fmt.Errorf("invalid viewport %s", vp)
	}
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	if err := s.page.SetViewportSize(int(vp.Width), int(vp.Height)); err != nil {
		return fmt.Errorf("resize to %s: %w", vp, err)
	}
	return s.sendAll(devtools.StopScreencast(), devtools.StartScreencast(vp, s.format, s.frameRate))
}

// Navigate starts loading url and returns; the load end arrives through the
// mailbox.
func (s *session) Navigate(ctx context.Context, url string) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	go func() {
		if _, err := s.page.Goto(url); err != nil && !s.isClosed() {
			log.Warnf("navigate %s: %v", url, err)
		}
	}()
	return nil
}

func (s *session) Reload(ctx context.Context) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	go func() {
		if _, err := s.page.Reload(); err != nil && !s.isClosed() {
			log.Warnf("reload: %v", err)
		}
	}()
	return nil
}

func (s *session) Evaluate(ctx context.Context, script string) error {
	if s.isClosed() {
		return engine.ErrSessionClosed
	}
	_, err := s.page.Evaluate(script)
	return err
}

func (s *session) SetZoom(ctx context.Context, factor float64) error {
	return s.sendAll(devtools.Zoom(factor))
}

func (s *session) SetTransparent(ctx context.Context, transparent bool) error {
	return s.sendAll(devtools.Background(transparent))
}

func (s *session) SetScrollbarsHidden(ctx context.Context, hidden bool) error {
	return s.sendAll(devtools.ScrollbarsHidden(hidden))
}

func (s *session) Submit(ctx context.Context, ev engine.NativeEvent) error {
	cmd, err := devtools.Input(ev)
	if err != nil {
		return err
	}
	return s.sendAll(cmd)
}

// Pump reports a closed page once.
func (s *session) Pump(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	if s.page.IsClosed() && !s.lost {
		s.lost = true
		s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: "page closed"})
	}
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return engine.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.frames.Stop()
	_ = s.cdp.Detach()
	if err := s.bctx.Close(); err != nil {
		return fmt.Errorf("close browser context: %w", err)
	}
	return nil
}
