package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine/enginetest"
	"github.com/neboloop/texbridge/internal/input"
	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/messaging"
	"github.com/neboloop/texbridge/internal/surface"
)

type fakeTex struct {
	mu       sync.Mutex
	next     TextureID
	created  []surface.Viewport
	uploads  []*surface.Snapshot
	released []TextureID
}

func (f *fakeTex) CreateTexture(w, h int, format surface.Format) (TextureID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.created = append(f.created, surface.Viewport{Width: uint32(w), Height: uint32(h)})
	return f.next, nil
}

func (f *fakeTex) ScheduleTexUpload(id TextureID, snap *surface.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, snap)
	return nil
}

func (f *fakeTex) ReleaseTexture(id TextureID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
}

func newTestBridge(t *testing.T, vp surface.Viewport, mutate ...func(*Options)) (*Bridge, *enginetest.Driver, *fakeTex) {
	t.Helper()
	drv := enginetest.NewDriver()
	tex := &fakeTex{}
	opts := DefaultOptions()
	opts.Viewport = vp
	opts.Driver = drv
	for _, fn := range mutate {
		fn(&opts)
	}
	b, err := New(context.Background(), opts, tex)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, drv, tex
}

func TestCreateLoadPaintSync(t *testing.T) {
	ctx := context.Background()
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 800, Height: 600})

	require.NoError(t, b.Pump(ctx))
	assert.Equal(t, Live, b.State())

	require.NoError(t, b.LoadURL(ctx, "http://example"))
	sess := drv.Last()
	assert.Equal(t, "http://example", sess.URL())

	require.True(t, sess.Paint([4]byte{0x10, 0x20, 0x30, 0xFF}))
	require.NoError(t, b.Pump(ctx))

	uploaded, err := b.Sync()
	require.NoError(t, err)
	require.True(t, uploaded)
	require.Len(t, tex.uploads, 1)
	assert.Equal(t, 800*600*4, tex.uploads[0].Size())
	assert.Equal(t, []surface.Viewport{{Width: 800, Height: 600}}, tex.created)

	uploaded, err = b.Sync()
	require.NoError(t, err)
	assert.False(t, uploaded)
	assert.Len(t, tex.uploads, 1)
	assert.True(t, b.Painted())
}

func TestSnapshotFollowsSyncWithScheduler(t *testing.T) {
	ctx := context.Background()
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 4, Height: 2})
	require.NoError(t, b.Pump(ctx))
	sess := drv.Last()

	require.True(t, sess.Paint([4]byte{1, 2, 3, 255}))
	uploaded, err := b.Sync()
	require.NoError(t, err)
	require.True(t, uploaded)

	snap, ok := b.Snapshot()
	require.True(t, ok, "the synced frame is still handed out once")
	assert.Same(t, tex.uploads[0], snap)
	_, ok = b.Snapshot()
	assert.False(t, ok)

	require.True(t, sess.Paint([4]byte{4, 5, 6, 255}))
	snap, ok = b.Snapshot()
	require.True(t, ok)
	require.Len(t, tex.uploads, 2, "Snapshot uploads a frame Sync has not seen")
	assert.Same(t, tex.uploads[1], snap)
	uploaded, err = b.Sync()
	require.NoError(t, err)
	assert.False(t, uploaded)
}

func TestSessionGetsBootstrap(t *testing.T) {
	_, drv, _ := newTestBridge(t, surface.Viewport{Width: 2, Height: 2}, func(o *Options) {
		o.Transparent = true
	})
	opts := drv.Last().Options()
	assert.Equal(t, messaging.BindingName, opts.BindingName)
	assert.Equal(t, messaging.BootstrapScript(), opts.BootstrapScript)
	assert.True(t, opts.Transparent)
}

func TestZeroViewportIsDormant(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 0, Height: 600})

	assert.Equal(t, Dormant, b.State())
	assert.Nil(t, drv.Last())
	require.NoError(t, b.Pump(ctx))

	// operations on a dormant bridge are harmless
	require.NoError(t, b.Refresh(ctx))
	require.NoError(t, b.LoadURL(ctx, "http://later"))

	require.NoError(t, b.Resize(ctx, surface.Viewport{Width: 320, Height: 240}))
	assert.Equal(t, Live, b.State())
	sess := drv.Last()
	require.NotNil(t, sess)
	assert.Equal(t, surface.Viewport{Width: 320, Height: 240}, sess.Viewport())
	assert.Equal(t, "http://later", sess.URL(), "url remembered while dormant")
}

func TestResizeToZeroReleasesSurface(t *testing.T) {
	ctx := context.Background()
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 64, Height: 32})
	sess := drv.Last()
	sess.Paint([4]byte{1, 1, 1, 1})
	_, err := b.Sync()
	require.NoError(t, err)

	require.NoError(t, b.Resize(ctx, surface.Viewport{Width: 64, Height: 0}))
	assert.Equal(t, Dormant, b.State())
	assert.True(t, sess.Closed())

	_, ok := b.sink.Viewport()
	assert.False(t, ok, "no surface retained at the old size")
	assert.Len(t, tex.released, 1)

	// a late paint from the closed session is dropped
	assert.False(t, sess.PaintSize(64, 32, [4]byte{2, 2, 2, 2}))
}

func TestResizeLiveDropsStalePaint(t *testing.T) {
	ctx := context.Background()
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 10, Height: 10})
	sess := drv.Last()

	require.NoError(t, b.Resize(ctx, surface.Viewport{Width: 20, Height: 5}))
	assert.Equal(t, Live, b.State())
	assert.Same(t, sess, drv.Last(), "resize keeps the session")
	assert.Equal(t, surface.Viewport{Width: 20, Height: 5}, sess.Viewport())

	assert.False(t, sess.PaintSize(10, 10, [4]byte{9, 9, 9, 9}))
	uploaded, _ := b.Sync()
	assert.False(t, uploaded)

	assert.True(t, sess.Paint([4]byte{3, 3, 3, 3}))
	uploaded, _ = b.Sync()
	assert.True(t, uploaded)
	assert.Equal(t, surface.Viewport{Width: 20, Height: 5}, tex.created[len(tex.created)-1])
}

func TestOffsetEnlargesEngineViewport(t *testing.T) {
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 100, Height: 50}, func(o *Options) {
		o.XOffset = 10
		o.YOffset = 20
	})
	sess := drv.Last()
	assert.Equal(t, surface.Viewport{Width: 110, Height: 60}, sess.Viewport())

	require.True(t, sess.Paint([4]byte{5, 6, 7, 8}))
	uploaded, err := b.Sync()
	require.NoError(t, err)
	require.True(t, uploaded)
	assert.Equal(t, 100, tex.uploads[0].Width)
	assert.Equal(t, 50, tex.uploads[0].Height)
}

func TestZoomIsClamped(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 4, Height: 4})

	for i := 0; i < 20; i++ {
		_, err := b.ZoomIn(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, MaxZoomLevel, b.ZoomLevel())
	assert.InDelta(t, ZoomFactor(10), drv.Last().Zoom(), 1e-9)

	level, err := b.Zoom(ctx, -50)
	require.NoError(t, err)
	assert.Equal(t, -MaxZoomLevel, level)

	level, _ = b.ZoomOut(ctx)
	assert.Equal(t, -MaxZoomLevel, level)
}

func TestInitialZoomAndScrollbarsApplied(t *testing.T) {
	_, drv, _ := newTestBridge(t, surface.Viewport{Width: 4, Height: 4}, func(o *Options) {
		o.ZoomLevel = 3
		o.Scrollbars = false
	})
	sess := drv.Last()
	assert.InDelta(t, 1.728, sess.Zoom(), 1e-9)
	assert.True(t, sess.ScrollbarsHidden())
}

func TestRendererCrashMakesBridgeDead(t *testing.T) {
	lifecycle.Reset()
	t.Cleanup(lifecycle.Reset)
	var deadEvents []lifecycle.BridgeEventData
	lifecycle.OnBridgeDead(func(d lifecycle.BridgeEventData) { deadEvents = append(deadEvents, d) })

	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8}, func(o *Options) {
		o.URL = "http://example"
	})
	sess := drv.Last()
	sess.Paint([4]byte{1, 2, 3, 4})
	_, _ = b.Sync()

	var first, second []string
	b.OnRendererCrash(func(reason string) { first = append(first, reason) })
	b.OnRendererCrash(func(reason string) { second = append(second, reason) })

	sess.CrashRenderer("oom")
	require.NoError(t, b.Pump(ctx))

	assert.Equal(t, Dead, b.State())
	assert.ErrorIs(t, b.Err(), ErrDead)
	assert.Empty(t, first, "re-registration replaces the callback")
	assert.Equal(t, []string{"oom"}, second)
	assert.True(t, sess.Closed())
	require.Len(t, deadEvents, 1)
	assert.Equal(t, b.ID(), deadEvents[0].BridgeID)

	// dead bridges ignore everything without failing
	require.NoError(t, b.LoadURL(ctx, "http://other"))
	require.NoError(t, b.ExecuteJS(ctx, "1"))
	require.NoError(t, b.Resize(ctx, surface.Viewport{Width: 16, Height: 16}))
	require.NoError(t, b.HandleEvent(ctx, input.PointerMove{X: 1, Y: 1}))
	assert.Equal(t, surface.Viewport{Width: 8, Height: 8}, b.Viewport())

	// a second pump does not report the crash again
	require.NoError(t, b.Pump(ctx))
	assert.Len(t, second, 1)

	require.NoError(t, b.Recreate(ctx))
	assert.Equal(t, Live, b.State())
	fresh := drv.Last()
	assert.NotSame(t, sess, fresh)
	assert.Equal(t, "http://example", fresh.URL())
}

func TestPluginCrash(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})

	var path string
	b.OnPluginCrash(func(p string) { path = p })
	drv.Last().CrashPlugin("/usr/lib/flash.so")
	require.NoError(t, b.Pump(ctx))

	assert.Equal(t, "/usr/lib/flash.so", path)
	assert.Equal(t, Dead, b.State())
	assert.Contains(t, b.DeadReason(), "plugin crashed")
}

func TestMessagesDeliveredOnPump(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})

	var got []string
	b.AddJSCallback("X", func(data string) { got = append(got, data) })
	sess := drv.Last()
	sess.Send(`{"cmd":"X","data":"P"}`)
	sess.Send(`{"cmd":"Y","data":"ignored"}`)
	sess.Send(`{"cmd":"X"}`)

	assert.Empty(t, got, "nothing runs until the host pumps")
	require.NoError(t, b.Pump(ctx))
	assert.Equal(t, []string{"P"}, got)

	b.RemoveJSCallback("X")
	sess.Send(`{"cmd":"X","data":"again"}`)
	require.NoError(t, b.Pump(ctx))
	assert.Len(t, got, 1)
}

func TestLoadEndInstallsClickHooks(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})

	loads := 0
	b.OnLoadEnd(func() { loads++ })
	var clicked string
	b.AddClickCallback("play", func(id string) { clicked = id })

	sess := drv.Last()
	sess.LoadEnd()
	require.NoError(t, b.Pump(ctx))
	assert.Equal(t, 1, loads)
	assert.Contains(t, sess.Scripts(), messaging.ClickHookScript())

	sess.Send(`{"cmd":"onclick","data":"play"}`)
	require.NoError(t, b.Pump(ctx))
	assert.Equal(t, "play", clicked)
}

func TestCallbackMayUseBridge(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})

	b.OnLoadEnd(func() {
		require.NoError(t, b.ExecuteJS(ctx, "ready()"))
	})
	drv.Last().LoadEnd()
	require.NoError(t, b.Pump(ctx))
	assert.Contains(t, drv.Last().Scripts(), "ready()")
}

func TestVolumeReappliedOnLoad(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})
	sess := drv.Last()

	require.NoError(t, b.SetVolume(ctx, 2))
	assert.Equal(t, 1.0, b.Volume())
	require.NoError(t, b.SetVolume(ctx, 0.25))

	sess.LoadEnd()
	require.NoError(t, b.Pump(ctx))
	scripts := sess.Scripts()
	assert.Equal(t, volumeScript(0.25), scripts[len(scripts)-1])
}

func TestInputFlags(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})
	sess := drv.Last()

	require.NoError(t, b.HandleEvent(ctx, input.PointerButton{X: 1, Y: 2, Button: input.ButtonLeft, Down: true}))
	require.Len(t, sess.Events(), 1)

	b.SetMouseInput(false)
	require.NoError(t, b.HandleEvent(ctx, input.Wheel{DeltaY: 1}))
	assert.Len(t, sess.Events(), 1)

	b.SetKeyboardInput(false)
	require.NoError(t, b.SendKeyEvent(ctx, input.Key{Name: "a", Down: true}))
	assert.Len(t, sess.Events(), 1)

	b.SetKeyboardInput(true)
	require.NoError(t, b.SendKeyEvent(ctx, input.Key{Name: "a", Text: "a", Down: true}))
	events := sess.Events()
	require.Len(t, events, 2)
	require.NotNil(t, events[1].Key)
}

func TestEventHandlerSwitch(t *testing.T) {
	ctx := context.Background()
	b, drv, _ := newTestBridge(t, surface.Viewport{Width: 8, Height: 8}, func(o *Options) {
		o.EventHandler = false
	})
	sess := drv.Last()

	require.NoError(t, b.HandleEvent(ctx, input.Key{Name: "a", Down: true}))
	assert.Empty(t, sess.Events())

	require.NoError(t, b.SendKeyEvent(ctx, input.Key{Name: "a", Down: true}))
	assert.Len(t, sess.Events(), 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, drv, tex := newTestBridge(t, surface.Viewport{Width: 8, Height: 8})
	sess := drv.Last()
	sess.Paint([4]byte{1, 1, 1, 1})
	_, _ = b.Sync()

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, sess.Closed())
	assert.Len(t, tex.released, 1)

	assert.ErrorIs(t, b.Pump(ctx), ErrClosed)
	assert.ErrorIs(t, b.LoadURL(ctx, "x"), ErrClosed)
	assert.ErrorIs(t, b.Resize(ctx, surface.Viewport{Width: 1, Height: 1}), ErrClosed)
	assert.ErrorIs(t, b.Recreate(ctx), ErrClosed)
	_, err := b.Sync()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseFromDormantAndDead(t *testing.T) {
	ctx := context.Background()
	dormant, _, _ := newTestBridge(t, surface.Viewport{})
	assert.NoError(t, dormant.Err())
	assert.NoError(t, dormant.Close())

	dead, drv, _ := newTestBridge(t, surface.Viewport{Width: 2, Height: 2})
	drv.Last().CrashRenderer("killed")
	require.NoError(t, dead.Pump(ctx))
	require.Equal(t, Dead, dead.State())
	assert.NoError(t, dead.Close())
	assert.NoError(t, dead.Close())
	assert.ErrorIs(t, dead.Err(), ErrClosed)
}

func TestSessionErrorSurfaces(t *testing.T) {
	drv := enginetest.NewDriver()
	drv.SessionErr = assert.AnError
	opts := DefaultOptions()
	opts.Viewport = surface.Viewport{Width: 4, Height: 4}
	opts.Driver = drv

	_, err := New(context.Background(), opts, &fakeTex{})
	assert.ErrorIs(t, err, assert.AnError)
}
