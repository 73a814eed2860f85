// Package server hosts bridges behind an HTTP API and streams their frames to
// WebSocket viewers. It plays the host renderer: a frame loop pumps every
// bridge at a fixed rate and fans new frames out through an event subject.
package server

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/events"
	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/logging"
)

var log = logging.WithComponent("server")

const (
	// DefaultFrameRate is used when Options.FrameRate is unset.
	DefaultFrameRate = 30

	shutdownTimeout = 30 * time.Second
)

// Options configures a Server.
type Options struct {
	FrameRate   int
	JPEGQuality int
	// Defaults apply to every bridge created over HTTP; request fields
	// override them.
	Defaults bridge.Options
	// Quiet disables request logging.
	Quiet bool
}

// Server owns the bridges created through its API.
type Server struct {
	mgr *bridge.Manager
	bus *events.Subject

	mu     sync.RWMutex
	opts   Options
	frames map[string]*Frame
	states map[string]bridge.State

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a server over mgr. The manager may already hold bridges; they
// are streamed like the ones created over HTTP.
func New(mgr *bridge.Manager, opts Options) *Server {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = jpeg.DefaultQuality
	}
	return &Server{
		mgr: mgr,
		bus: events.NewSubject(
			events.WithBufferSize(256),
			events.WithReplay(1),
			// viewers must see frames and statuses in emit order
			events.WithSyncDelivery(),
			events.WithEmitTimeout(time.Second),
			events.WithLogger(logging.Logger()),
		),
		opts:   opts,
		frames: make(map[string]*Frame),
		states: make(map[string]bridge.State),
		done:   make(chan struct{}),
	}
}

// SetDefaults replaces the options applied to newly created bridges. Open
// bridges keep theirs.
func (s *Server) SetDefaults(opts bridge.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Defaults = opts
}

func (s *Server) defaults() bridge.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Defaults
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if !s.opts.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.health)
	r.Get("/crashes", s.crashes)
	r.Route("/bridges", func(r chi.Router) {
		r.Get("/", s.listBridges)
		r.Post("/", s.createBridge)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getBridge)
			r.Delete("/", s.closeBridge)
			r.Post("/navigate", s.navigate)
			r.Post("/refresh", s.refresh)
			r.Post("/js", s.executeJS)
			r.Post("/zoom", s.zoom)
			r.Post("/resize", s.resize)
			r.Post("/recreate", s.recreate)
			r.Post("/settings", s.settings)
			r.Post("/keys", s.sendKey)
			r.Get("/frame.png", s.framePNG)
			r.Get("/ws", s.serveWS)
		})
	})
	return r
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server and the frame loop on ln until ctx is done, then
// shuts both down and closes every bridge.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// ReadTimeout/WriteTimeout stay unset: they would put deadlines on
	// hijacked WebSocket connections.
	httpServer := &http.Server{
		Handler:     s.Handler(),
		IdleTimeout: 120 * time.Second,
	}
	httpServer.RegisterOnShutdown(s.shutdownViewers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.runFrames(gctx)
		return nil
	})
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infof("shutting down")
		lifecycle.Emit(lifecycle.EventShutdownStarted, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	addr := ln.Addr().String()
	log.Infof("listening on http://%s", addr)
	lifecycle.Emit(lifecycle.EventServerStarted, addr)

	err := g.Wait()
	s.Close()
	return err
}

// Close shuts down viewers, closes every bridge and stops event delivery. It
// is safe to call more than once.
func (s *Server) Close() {
	s.shutdownViewers()
	s.mgr.CloseAll()
	events.Complete(s.bus)
}

func (s *Server) shutdownViewers() {
	s.doneOnce.Do(func() { close(s.done) })
}
