// Package enginetest provides an in-memory engine backend for tests. It
// records every call a bridge makes and lets the test drive paints, page
// messages and crashes from the "engine side".
package enginetest

import (
	"context"
	"sync"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

// Driver is a fake engine.Driver.
type Driver struct {
	mu         sync.Mutex
	sessions   []*Session
	cfg        engine.Config
	running    bool
	InitErr    error
	SessionErr error
}

var _ engine.Driver = (*Driver)(nil)

// NewDriver returns a fake driver that is already initialized.
func NewDriver() *Driver {
	return &Driver{running: true}
}

func (d *Driver) Init(ctx context.Context, cfg engine.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.InitErr != nil {
		return d.InitErr
	}
	d.cfg = cfg
	d.running = true
	return nil
}

func (d *Driver) NewSession(ctx context.Context, opts engine.SessionOptions, target engine.PaintTarget, mb *engine.Mailbox) (engine.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil, engine.ErrNotInitialized
	}
	if d.SessionErr != nil {
		return nil, d.SessionErr
	}
	s := &Session{
		opts:        opts,
		target:      target,
		mb:          mb,
		viewport:    opts.Viewport,
		transparent: opts.Transparent,
		zoom:        1,
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// Sessions returns every session opened so far, closed ones included.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Last returns the most recently opened session or nil.
func (d *Driver) Last() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// Session is a fake engine.Session.
type Session struct {
	mu          sync.Mutex
	opts        engine.SessionOptions
	target      engine.PaintTarget
	mb          *engine.Mailbox
	viewport    surface.Viewport
	url         string
	reloads     int
	scripts     []string
	zoom        float64
	transparent bool
	noScroll    bool
	events      []engine.NativeEvent
	pumps       int
	closed      bool
}

var _ engine.Session = (*Session)(nil)

func (s *Session) Resize(ctx context.Context, vp surface.Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.viewport = vp
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.url = url
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.reloads++
	return nil
}

func (s *Session) Evaluate(ctx context.Context, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.scripts = append(s.scripts, script)
	return nil
}

func (s *Session) SetZoom(ctx context.Context, factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.zoom = factor
	return nil
}

func (s *Session) SetTransparent(ctx context.Context, transparent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.transparent = transparent
	return nil
}

func (s *Session) SetScrollbarsHidden(ctx context.Context, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.noScroll = hidden
	return nil
}

func (s *Session) Submit(ctx context.Context, ev engine.NativeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Session) Pump(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.pumps++
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Paint delivers a solid frame of px (BGRA) at the size the target expects.
func (s *Session) Paint(px [4]byte) bool {
	w, h, ok := s.target.FrameSize()
	if !ok {
		return false
	}
	return s.PaintSize(w, h, px)
}

// PaintSize delivers a solid w x h frame regardless of what the target expects.
func (s *Session) PaintSize(w, h int, px [4]byte) bool {
	buf := make([]byte, w*h*surface.BytesPerPixel)
	for i := 0; i < len(buf); i += surface.BytesPerPixel {
		copy(buf[i:i+4], px[:])
	}
	return s.target.OnPaint([]surface.Rect{{Width: w, Height: h}}, buf, w, h, surface.FormatBGRA)
}

// LoadEnd posts a main-frame load completion.
func (s *Session) LoadEnd() {
	s.mb.Post(engine.Event{Kind: engine.EventLoadEnd})
}

// Send posts a raw message as if page script called the native binding.
func (s *Session) Send(payload string) {
	s.mb.Post(engine.Event{Kind: engine.EventMessage, Payload: payload})
}

// CrashPlugin posts a plugin crash for path.
func (s *Session) CrashPlugin(path string) {
	s.mb.Post(engine.Event{Kind: engine.EventPluginCrashed, Detail: path})
}

// CrashRenderer posts a render process termination.
func (s *Session) CrashRenderer(reason string) {
	s.mb.Post(engine.Event{Kind: engine.EventRenderProcessTerminated, Detail: reason})
}

// Options returns the options the session was opened with.
func (s *Session) Options() engine.SessionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Viewport returns the last viewport set on the session.
func (s *Session) Viewport() surface.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// URL returns the last navigated URL.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Reloads returns how many times Reload was called.
func (s *Session) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Scripts returns every evaluated script in order.
func (s *Session) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// Zoom returns the last zoom factor.
func (s *Session) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// Transparent reports the last transparency setting.
func (s *Session) Transparent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transparent
}

// ScrollbarsHidden reports the last scrollbar setting.
func (s *Session) ScrollbarsHidden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noScroll
}

// Events returns every submitted native event in order.
func (s *Session) Events() []engine.NativeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.NativeEvent(nil), s.events...)
}

// Pumps returns how many times Pump was called.
func (s *Session) Pumps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumps
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
