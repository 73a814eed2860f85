// Package bridge keeps an off-screen browser's painted pixels in sync with a
// resizable texture and routes host input and page messages through it.
//
// A Bridge is Dormant while its viewport has a zero dimension, Live while it
// owns a browser session, and Dead after the engine reported a crash. The host
// calls Pump and Sync once per frame; everything the engine reports is
// delivered from Pump on the host's goroutine.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/input"
	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/logging"
	"github.com/neboloop/texbridge/internal/messaging"
	"github.com/neboloop/texbridge/internal/surface"
)

var log = logging.WithComponent("bridge")

var (
	// ErrDormant is returned when an operation needs a browser and the
	// viewport has a zero dimension.
	ErrDormant = errors.New("bridge is dormant")
	// ErrDead is returned by operations on a bridge whose browser crashed.
	ErrDead = errors.New("bridge browser is dead")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("bridge is closed")
)

// State is the bridge lifecycle state.
type State int

const (
	Dormant State = iota
	Live
	Dead
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Live:
		return "live"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// TextureID identifies a texture created by a TextureScheduler.
type TextureID uint64

// TextureScheduler is the host's GPU upload queue.
type TextureScheduler interface {
	CreateTexture(width, height int, format surface.Format) (TextureID, error)
	ScheduleTexUpload(id TextureID, snap *surface.Snapshot) error
	ReleaseTexture(id TextureID)
}

// Options configures a bridge.
type Options struct {
	// ID names the bridge in logs and lifecycle events. Generated if empty.
	ID       string
	Viewport surface.Viewport
	URL      string
	// Transparent renders the page over an alpha background.
	Transparent bool
	// XOffset and YOffset enlarge the browser window by a percentage of the
	// viewport; the enlarged top-left band is cropped from every frame.
	XOffset, YOffset float64
	// EventHandler enables HandleEvent. SendKeyEvent works regardless.
	EventHandler  bool
	ZoomLevel     int
	KeyboardInput bool
	MouseInput    bool
	Scrollbars    bool
	// Volume in [0,1] applied to the page's media elements.
	Volume      float64
	PixelFormat surface.Format
	// Driver overrides the process-wide engine. Tests use it.
	Driver engine.Driver
}

// DefaultOptions returns the options used when the host sets nothing.
func DefaultOptions() Options {
	return Options{
		EventHandler:  true,
		KeyboardInput: true,
		MouseInput:    true,
		Scrollbars:    true,
		Volume:        1,
		PixelFormat:   surface.FormatBGRA,
	}
}

// Bridge is the unit a host embeds. All methods are safe for concurrent use;
// callbacks are always invoked from Pump without internal locks held.
type Bridge struct {
	mu     sync.Mutex
	id     string
	opts   Options
	state  State
	closed bool
	reason string

	sink *surface.PaintSink
	inst *instance
	msgs *messaging.Bridge

	tex     TextureScheduler
	texID   TextureID
	texSize surface.Viewport
	hasTex  bool
	// pending is the last uploaded frame not yet taken by Snapshot.
	pending *surface.Snapshot

	flags input.Flags
	zoom  int

	onLoadEnd       func()
	onPluginCrash   func(path string)
	onRendererCrash func(reason string)
}

// New creates a bridge. A valid viewport opens a browser immediately; a zero
// dimension leaves the bridge Dormant until Resize.
func New(ctx context.Context, opts Options, tex TextureScheduler) (*Bridge, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	b := &Bridge{
		id:    opts.ID,
		opts:  opts,
		sink:  surface.NewPaintSink(opts.PixelFormat),
		msgs:  messaging.New(),
		tex:   tex,
		flags: input.Flags{Mouse: opts.MouseInput, Keyboard: opts.KeyboardInput},
		zoom:  clampZoom(opts.ZoomLevel),
	}
	b.emit(lifecycle.EventBridgeCreated, "")

	if !opts.Viewport.Valid() {
		log.Infof("%s created dormant (viewport %s)", b.id, opts.Viewport)
		return b, nil
	}

	b.mu.Lock()
	err := b.openLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b.emit(lifecycle.EventBridgeLive, "")
	return b, nil
}

// ID returns the bridge identifier.
func (b *Bridge) ID() string {
	return b.id
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Viewport returns the requested viewport.
func (b *Bridge) Viewport() surface.Viewport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Viewport
}

// URL returns the last URL loaded.
func (b *Bridge) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.URL
}

// DeadReason returns what killed the browser, if it is dead.
func (b *Bridge) DeadReason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Err reports why the bridge can no longer be driven: ErrClosed after Close
// and ErrDead after a crash. Dormant and Live bridges return nil.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return ErrClosed
	case b.state == Dead:
		return ErrDead
	}
	return nil
}

// Painted reports whether the browser has delivered at least one frame.
func (b *Bridge) Painted() bool {
	return b.sink.Painted()
}

// offset returns the crop offset for the current viewport.
func (b *Bridge) offset() image.Point {
	vp := b.opts.Viewport
	return image.Point{
		X: int(math.Round(float64(vp.Width) * b.opts.XOffset / 100)),
		Y: int(math.Round(float64(vp.Height) * b.opts.YOffset / 100)),
	}
}

func (b *Bridge) engineViewport() surface.Viewport {
	off := b.offset()
	return surface.Viewport{
		Width:  b.opts.Viewport.Width + uint32(max(off.X, 0)),
		Height: b.opts.Viewport.Height + uint32(max(off.Y, 0)),
	}
}

// openLocked allocates the surface and then the browser, and replays the
// bridge settings onto the new session.
func (b *Bridge) openLocked(ctx context.Context) error {
	if !b.sink.Reset(b.opts.Viewport, b.offset()) {
		return ErrDormant
	}

	inst, err := openInstance(ctx, b.opts.Driver, engine.SessionOptions{
		Viewport:        b.engineViewport(),
		Transparent:     b.opts.Transparent,
		BindingName:     messaging.BindingName,
		BootstrapScript: messaging.BootstrapScript(),
	}, b.sink)
	if err != nil {
		b.sink.Release()
		return err
	}
	b.inst = inst
	b.state = Live
	b.reason = ""

	if b.zoom != 0 {
		if err := inst.zoom(ctx, b.zoom); err != nil {
			log.Warnf("%s initial zoom: %v", b.id, err)
		}
	}
	if !b.opts.Scrollbars {
		if err := inst.setScrollbars(ctx, false); err != nil {
			log.Warnf("%s hide scrollbars: %v", b.id, err)
		}
	}
	if b.opts.URL != "" {
		if err := inst.loadURL(ctx, b.opts.URL); err != nil {
			log.Warnf("%s load %s: %v", b.id, b.opts.URL, err)
		}
	}
	log.Infof("%s live at %s", b.id, b.opts.Viewport)
	return nil
}

// closeInstanceLocked destroys the session before the surface is released.
func (b *Bridge) closeInstanceLocked() {
	if err := b.inst.destroy(); err != nil {
		log.Warnf("%s destroy browser: %v", b.id, err)
	}
	b.inst = nil
}

func (b *Bridge) releaseTextureLocked() {
	if b.hasTex && b.tex != nil {
		b.tex.ReleaseTexture(b.texID)
	}
	b.hasTex = false
	b.pending = nil
	b.texSize = surface.Viewport{}
}

// Resize follows the host viewport. A zero dimension releases the browser and
// the surface and makes the bridge Dormant; a valid size on a Dormant bridge
// opens a browser; a new valid size on a Live bridge replaces the surface and
// tells the engine. Dead bridges ignore resizes until Recreate.
func (b *Bridge) Resize(ctx context.Context, vp surface.Viewport) error {
	var ev lifecycle.Event
	defer func() { b.emit(ev, "") }()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.state == Dead {
		log.Warnf("%s resize to %s ignored: browser is dead", b.id, vp)
		return nil
	}

	if !vp.Valid() {
		b.opts.Viewport = vp
		if b.state == Live {
			b.closeInstanceLocked()
			b.sink.Release()
			b.releaseTextureLocked()
			b.state = Dormant
			log.Infof("%s dormant (viewport %s)", b.id, vp)
			ev = lifecycle.EventBridgeDormant
		}
		return nil
	}

	if b.state == Dormant {
		b.opts.Viewport = vp
		if err := b.openLocked(ctx); err != nil {
			return err
		}
		ev = lifecycle.EventBridgeLive
		return nil
	}

	if vp == b.opts.Viewport {
		return nil
	}
	b.opts.Viewport = vp
	b.sink.Reset(vp, b.offset())
	return b.inst.resize(ctx, b.engineViewport())
}

// Pump runs the engine's host-side work and delivers everything the engine
// reported since the last call: page messages, load completion and crashes.
// It never blocks on the engine.
func (b *Bridge) Pump(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	events := b.inst.pump(ctx)

	var calls []func()
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventMessage:
			if b.state != Live {
				continue
			}
			payload := ev.Payload
			calls = append(calls, func() { b.msgs.DispatchPayload(payload) })

		case engine.EventLoadEnd:
			if b.state != Live {
				continue
			}
			if err := b.inst.executeJS(ctx, messaging.ClickHookScript()); err != nil {
				log.Warnf("%s click hooks: %v", b.id, err)
			}
			if b.opts.Volume != 1 {
				if err := b.inst.executeJS(ctx, volumeScript(b.opts.Volume)); err != nil {
					log.Warnf("%s volume: %v", b.id, err)
				}
			}
			if fn := b.onLoadEnd; fn != nil {
				calls = append(calls, fn)
			}

		case engine.EventPluginCrashed:
			calls = append(calls, b.dieLocked("plugin crashed: "+ev.Detail)...)
			if fn := b.onPluginCrash; fn != nil {
				path := ev.Detail
				calls = append(calls, func() { fn(path) })
			}

		case engine.EventRenderProcessTerminated:
			calls = append(calls, b.dieLocked("render process terminated: "+ev.Detail)...)
			if fn := b.onRendererCrash; fn != nil {
				reason := ev.Detail
				calls = append(calls, func() { fn(reason) })
			}
		}
	}
	b.mu.Unlock()

	for _, call := range calls {
		call()
	}
	return nil
}

// dieLocked moves the bridge to Dead and returns the lifecycle notification
// to run once the lock is released.
func (b *Bridge) dieLocked(reason string) []func() {
	if b.state == Dead {
		return nil
	}
	log.Errorf("%s %s", b.id, reason)
	b.inst.kill()
	b.state = Dead
	b.reason = reason
	return []func(){func() { b.emit(lifecycle.EventBridgeDead, reason) }}
}

// Sync hands the surface to the texture scheduler if the engine painted since
// the last call. It reports whether an upload was scheduled. A Dead bridge
// keeps its last texture. Without a scheduler the frame stays for Snapshot.
func (b *Bridge) Sync() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrClosed
	}
	return b.syncLocked()
}

func (b *Bridge) syncLocked() (bool, error) {
	if b.tex == nil {
		return false, nil
	}
	snap, ok := b.sink.TakeIfDirty()
	if !ok {
		return false, nil
	}

	size := surface.Viewport{Width: uint32(snap.Width), Height: uint32(snap.Height)}
	if !b.hasTex || b.texSize != size {
		b.releaseTextureLocked()
		id, err := b.tex.CreateTexture(snap.Width, snap.Height, snap.Format)
		if err != nil {
			return false, fmt.Errorf("create texture %s: %w", size, err)
		}
		b.texID, b.texSize, b.hasTex = id, size, true
	}
	if err := b.tex.ScheduleTexUpload(b.texID, snap); err != nil {
		return false, fmt.Errorf("schedule upload: %w", err)
	}
	b.pending = snap
	return true, nil
}

// Snapshot returns the newest frame painted since the last Snapshot, at most
// once per frame. With a texture scheduler it also uploads a frame Sync has
// not picked up yet, so hosts can stream frames and keep textures current
// from the same bridge.
func (b *Bridge) Snapshot() (*surface.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, false
	}
	if b.tex == nil {
		return b.sink.TakeIfDirty()
	}
	if _, err := b.syncLocked(); err != nil {
		log.Warnf("%s sync: %v", b.id, err)
	}
	snap := b.pending
	b.pending = nil
	return snap, snap != nil
}

// Texture returns the texture the bridge uploads into, once one exists.
func (b *Bridge) Texture() (TextureID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.texID, b.hasTex
}

// HandleEvent forwards a host input event when the event handler is enabled.
func (b *Bridge) HandleEvent(ctx context.Context, ev input.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if !b.opts.EventHandler || b.state != Live {
		return nil
	}
	native, ok := input.Translate(ev, b.flags)
	if !ok {
		return nil
	}
	return b.inst.submit(ctx, native)
}

// SendKeyEvent injects a key event directly, bypassing the event handler
// switch but still honoring keyboard input.
func (b *Bridge) SendKeyEvent(ctx context.Context, key input.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.state != Live {
		return nil
	}
	native, ok := input.Translate(key, input.Flags{Keyboard: b.flags.Keyboard})
	if !ok {
		return nil
	}
	return b.inst.submit(ctx, native)
}

// LoadURL navigates the main frame. The URL is remembered while dormant and
// loaded once the browser opens.
func (b *Bridge) LoadURL(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.state == Dead {
		log.Warnf("%s loadUrl %s ignored: browser is dead", b.id, url)
		return nil
	}
	b.opts.URL = url
	return b.inst.loadURL(ctx, url)
}

// Refresh reloads the current page.
func (b *Bridge) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	return b.inst.refresh(ctx)
}

// ExecuteJS runs code in the main frame.
func (b *Bridge) ExecuteJS(ctx context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	return b.inst.executeJS(ctx, code)
}

// Zoom sets the absolute zoom level, clamped to ±MaxZoomLevel, and returns
// the effective level.
func (b *Bridge) Zoom(ctx context.Context, level int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zoomLocked(ctx, level)
}

// ZoomIn raises the zoom level by one step.
func (b *Bridge) ZoomIn(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zoomLocked(ctx, b.zoom+1)
}

// ZoomOut lowers the zoom level by one step.
func (b *Bridge) ZoomOut(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zoomLocked(ctx, b.zoom-1)
}

// ZoomLevel returns the effective zoom level.
func (b *Bridge) ZoomLevel() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.zoom
}

func (b *Bridge) zoomLocked(ctx context.Context, level int) (int, error) {
	if b.closed {
		return b.zoom, ErrClosed
	}
	if b.state == Dead {
		log.Warnf("%s zoom ignored: browser is dead", b.id)
		return b.zoom, nil
	}
	level = clampZoom(level)
	if level == b.zoom {
		return b.zoom, nil
	}
	b.zoom = level
	return b.zoom, b.inst.zoom(ctx, level)
}

// SetTransparent toggles the alpha background.
func (b *Bridge) SetTransparent(ctx context.Context, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.opts.Transparent = on
	return b.inst.setTransparent(ctx, on)
}

// Transparent reports whether the background is transparent.
func (b *Bridge) Transparent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Transparent
}

// SetMouseInput enables or disables pointer and wheel forwarding.
func (b *Bridge) SetMouseInput(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags.Mouse = on
	b.opts.MouseInput = on
}

// MouseInput reports whether pointer forwarding is enabled.
func (b *Bridge) MouseInput() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags.Mouse
}

// SetKeyboardInput enables or disables key forwarding.
func (b *Bridge) SetKeyboardInput(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags.Keyboard = on
	b.opts.KeyboardInput = on
}

// KeyboardInput reports whether key forwarding is enabled.
func (b *Bridge) KeyboardInput() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags.Keyboard
}

// SetScrollbars shows or hides the page scrollbars.
func (b *Bridge) SetScrollbars(ctx context.Context, visible bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.opts.Scrollbars = visible
	return b.inst.setScrollbars(ctx, visible)
}

// SetVolume sets the volume of the page's media elements, clamped to [0,1].
// It is reapplied after every load.
func (b *Bridge) SetVolume(ctx context.Context, v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.opts.Volume = max(0, min(1, v))
	return b.inst.executeJS(ctx, volumeScript(b.opts.Volume))
}

// Volume returns the media volume.
func (b *Bridge) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Volume
}

func volumeScript(v float64) string {
	return fmt.Sprintf(`(function(v){var m=document.querySelectorAll("audio,video");for(var i=0;i<m.length;i++){m[i].volume=v;}})(%g);`, v)
}

// AddJSCallback registers fn for avg.send(cmd, data) calls from the page.
func (b *Bridge) AddJSCallback(cmd string, fn messaging.Callback) {
	b.msgs.Register(cmd, fn)
}

// RemoveJSCallback unregisters the callback for cmd.
func (b *Bridge) RemoveJSCallback(cmd string) {
	b.msgs.Unregister(cmd)
}

// AddClickCallback registers fn for clicks on the element with id domID.
func (b *Bridge) AddClickCallback(domID string, fn messaging.ClickCallback) {
	b.msgs.RegisterClick(domID, fn)
}

// RemoveClickCallback unregisters the click callback for domID.
func (b *Bridge) RemoveClickCallback(domID string) {
	b.msgs.UnregisterClick(domID)
}

// OnLoadEnd sets the callback run after each main-frame load. A later call
// replaces the earlier callback; nil clears it.
func (b *Bridge) OnLoadEnd(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLoadEnd = fn
}

// OnPluginCrash sets the callback run when a plugin process crashes. A later
// call replaces the earlier callback.
func (b *Bridge) OnPluginCrash(fn func(path string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPluginCrash = fn
}

// OnRendererCrash sets the callback run when the render process terminates.
// A later call replaces the earlier callback.
func (b *Bridge) OnRendererCrash(fn func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRendererCrash = fn
}

// Recreate replaces the browser with a new one at the current viewport and
// reloads the last URL. It is how a Dead bridge returns to Live.
func (b *Bridge) Recreate(ctx context.Context) error {
	var ev lifecycle.Event
	defer func() { b.emit(ev, "") }()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.closeInstanceLocked()
	if !b.opts.Viewport.Valid() {
		b.sink.Release()
		b.state = Dormant
		return nil
	}
	if err := b.openLocked(ctx); err != nil {
		b.state = Dormant
		return err
	}
	ev = lifecycle.EventBridgeLive
	return nil
}

// Close releases the browser and then the surface and texture. It is valid
// in every state and safe to call more than once.
func (b *Bridge) Close() error {
	var ev lifecycle.Event
	defer func() { b.emit(ev, "") }()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.closeInstanceLocked()
	b.sink.Release()
	b.releaseTextureLocked()
	b.state = Dormant
	log.Infof("%s closed", b.id)
	ev = lifecycle.EventBridgeClosed
	return nil
}

// emit publishes a lifecycle event. Callers must not hold b.mu so handlers
// can call back into the bridge.
func (b *Bridge) emit(ev lifecycle.Event, reason string) {
	if ev == "" {
		return
	}
	lifecycle.Emit(ev, lifecycle.BridgeEventData{BridgeID: b.id, Reason: reason})
}
