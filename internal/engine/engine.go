// Package engine defines the capability interface every embedded browser
// backend implements and owns the process-wide engine lifecycle.
//
// A backend registers a Driver from its init function. The embedding
// application calls Init once with the configured backend name and Shutdown
// before exit; bridges only ever see Session values.
package engine

import (
	"context"
	"errors"
	"image"
	"sort"
	"sync"

	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/logging"
	"github.com/neboloop/texbridge/internal/surface"
)

var (
	// ErrNotInitialized is returned by NewSession before Init.
	ErrNotInitialized = errors.New("browser engine not initialized")
	// ErrUnknownDriver is returned by Init for an unregistered backend.
	ErrUnknownDriver = errors.New("unknown browser engine")
	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("browser session closed")
)

// DefaultFrameRate is the off-screen paint rate requested from the engine.
const DefaultFrameRate = 60

// Config is the process-wide engine configuration.
type Config struct {
	Backend        string   `yaml:"backend"`
	ExecutablePath string   `yaml:"executablePath,omitempty"`
	Headless       bool     `yaml:"headless"`
	NoSandbox      bool     `yaml:"noSandbox"`
	DebuggerPort   int      `yaml:"debuggerPort,omitempty"`
	FrameRate      int      `yaml:"frameRate,omitempty"`
	FrameFormat    string   `yaml:"frameFormat,omitempty"`
	Muted          bool     `yaml:"muted"`
	UserDataDir    string   `yaml:"userDataDir,omitempty"`
	ExtraArgs      []string `yaml:"extraArgs,omitempty"`
}

// PaintTarget receives frames from an engine goroutine.
type PaintTarget interface {
	// FrameSize is the size the engine should paint at.
	FrameSize() (width, height int, ok bool)
	OnPaint(rects []surface.Rect, pix []byte, width, height int, format surface.Format) bool
	OnPaintImage(rects []surface.Rect, img image.Image) bool
}

// SessionOptions configures a new off-screen session.
type SessionOptions struct {
	Viewport    surface.Viewport
	Transparent bool
	// BindingName is the native function the bootstrap script calls.
	BindingName string
	// BootstrapScript runs in every new document before page scripts.
	BootstrapScript string
}

// Session is one live off-screen browser. Methods must not be called after
// Close; implementations return ErrSessionClosed in that case.
type Session interface {
	Resize(ctx context.Context, vp surface.Viewport) error
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Evaluate(ctx context.Context, script string) error
	SetZoom(ctx context.Context, factor float64) error
	SetTransparent(ctx context.Context, transparent bool) error
	SetScrollbarsHidden(ctx context.Context, hidden bool) error
	Submit(ctx context.Context, ev NativeEvent) error
	// Pump performs the engine work that must happen on the host goroutine
	// and returns without blocking on the engine.
	Pump(ctx context.Context) error
	Close() error
}

// Driver is a browser backend.
type Driver interface {
	Init(ctx context.Context, cfg Config) error
	NewSession(ctx context.Context, opts SessionOptions, target PaintTarget, mb *Mailbox) (Session, error)
	Shutdown() error
}

var (
	mu        sync.Mutex
	drivers   = make(map[string]Driver)
	active    Driver
	activeCfg Config
)

// Register makes a driver available by name. It panics on duplicates.
func Register(name string, d Driver) {
	mu.Lock()
	defer mu.Unlock()
	if d == nil {
		panic("engine: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("engine: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Init starts the configured backend once per process. Calling it again with
// the same backend is a no-op.
func Init(ctx context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if active != nil {
		if cfg.Backend != activeCfg.Backend {
			logging.Warnf("[engine] already running %q, ignoring init for %q", activeCfg.Backend, cfg.Backend)
		}
		return nil
	}

	d, ok := drivers[cfg.Backend]
	if !ok {
		return errors.Join(ErrUnknownDriver, errors.New(cfg.Backend))
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if err := d.Init(ctx, cfg); err != nil {
		return err
	}
	active = d
	activeCfg = cfg
	logging.Infof("[engine] %s initialized (frame rate %d)", cfg.Backend, cfg.FrameRate)
	lifecycle.Emit(lifecycle.EventEngineStarted, cfg.Backend)
	return nil
}

// Shutdown stops the active backend. Safe to call when nothing is running.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if active == nil {
		return nil
	}
	err := active.Shutdown()
	name := activeCfg.Backend
	active = nil
	activeCfg = Config{}
	lifecycle.Emit(lifecycle.EventEngineShutdown, name)
	return err
}

// Active returns the running backend's config and whether one is running.
func Active() (Config, bool) {
	mu.Lock()
	defer mu.Unlock()
	return activeCfg, active != nil
}

// NewSession opens a session on the active backend.
func NewSession(ctx context.Context, opts SessionOptions, target PaintTarget, mb *Mailbox) (Session, error) {
	mu.Lock()
	d := active
	mu.Unlock()

	if d == nil {
		return nil, ErrNotInitialized
	}
	return d.NewSession(ctx, opts, target, mb)
}
