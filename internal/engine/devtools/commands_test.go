package devtools

import (
	"testing"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

func TestInputMouse(t *testing.T) {
	cmd, err := Input(engine.NativeEvent{MouseClick: &engine.MouseClick{
		X: 10, Y: 20, Button: engine.ButtonRight, Up: true,
		Modifiers: engine.ModShift | engine.ModControl,
	}})
	require.NoError(t, err)
	p, ok := cmd.Params.(*input.DispatchMouseEventParams)
	require.True(t, ok)
	assert.Equal(t, input.MouseReleased, p.Type)
	assert.Equal(t, input.Right, p.Button)
	assert.Equal(t, int64(1), p.ClickCount)
	assert.Equal(t, 10.0, p.X)
	assert.Equal(t, 20.0, p.Y)
	assert.Equal(t, input.Modifier(2|8), p.Modifiers)

	cmd, err = Input(engine.NativeEvent{Wheel: &engine.WheelEvent{X: 1, Y: 2, DeltaY: -120}})
	require.NoError(t, err)
	p = cmd.Params.(*input.DispatchMouseEventParams)
	assert.Equal(t, input.MouseWheel, p.Type)
	assert.Equal(t, -120.0, p.DeltaY)

	cmd, err = Input(engine.NativeEvent{MouseMove: &engine.MouseMove{X: 3, Y: 4}})
	require.NoError(t, err)
	assert.Equal(t, input.MouseMoved, cmd.Params.(*input.DispatchMouseEventParams).Type)
}

func TestInputKey(t *testing.T) {
	cmd, err := Input(engine.NativeEvent{Key: &engine.KeyEvent{
		Type: engine.KeyChar, WindowsKeyCode: 0x41, Character: 'A', UnmodifiedCharacter: 'a',
	}})
	require.NoError(t, err)
	p, ok := cmd.Params.(*input.DispatchKeyEventParams)
	require.True(t, ok)
	assert.Equal(t, input.KeyChar, p.Type)
	assert.Equal(t, "A", p.Text)
	assert.Equal(t, "a", p.UnmodifiedText)
	assert.Equal(t, int64(0x41), p.WindowsVirtualKeyCode)

	cmd, err = Input(engine.NativeEvent{Key: &engine.KeyEvent{Type: engine.KeyUp, WindowsKeyCode: 0x0D}})
	require.NoError(t, err)
	p = cmd.Params.(*input.DispatchKeyEventParams)
	assert.Equal(t, input.KeyUp, p.Type)
	assert.Empty(t, p.Text)
}

func TestInputFocusAndEmpty(t *testing.T) {
	cmd, err := Input(engine.NativeEvent{Focus: &engine.FocusEvent{Focused: true}})
	require.NoError(t, err)
	p, ok := cmd.Params.(*emulation.SetFocusEmulationEnabledParams)
	require.True(t, ok)
	assert.True(t, p.Enabled)

	_, err = Input(engine.NativeEvent{})
	assert.Error(t, err)
}

func TestCommandMap(t *testing.T) {
	cmd, err := Input(engine.NativeEvent{MouseClick: &engine.MouseClick{X: 5, Y: 6, ClickCount: 2}})
	require.NoError(t, err)
	assert.Equal(t, "Input.dispatchMouseEvent", cmd.Method)

	m, err := cmd.Map()
	require.NoError(t, err)
	assert.Equal(t, "mousePressed", m["type"])
	assert.Equal(t, "left", m["button"])
	assert.Equal(t, 2.0, m["clickCount"])
	assert.Equal(t, 5.0, m["x"])
}

func TestScreencastCommands(t *testing.T) {
	vp := surface.Viewport{Width: 800, Height: 600}
	m, err := StartScreencast(vp, FormatJPEG, 30).Map()
	require.NoError(t, err)
	assert.Equal(t, "jpeg", m["format"])
	assert.Equal(t, 800.0, m["maxWidth"])
	assert.Equal(t, 600.0, m["maxHeight"])
	assert.Equal(t, 2.0, m["everyNthFrame"])

	m, err = StartScreencast(vp, FormatPNG, 60).Map()
	require.NoError(t, err)
	assert.Equal(t, "png", m["format"])
	assert.NotContains(t, m, "quality")

	assert.Equal(t, "Page.screencastFrameAck", FrameAck(3).Method)
	m, err = FrameAck(3).Map()
	require.NoError(t, err)
	assert.Equal(t, 3.0, m["sessionId"])
}

func TestEmulationCommands(t *testing.T) {
	m, err := DeviceMetrics(surface.Viewport{Width: 10, Height: 20}).Map()
	require.NoError(t, err)
	assert.Equal(t, 10.0, m["width"])
	assert.Equal(t, 20.0, m["height"])
	assert.Equal(t, 1.0, m["deviceScaleFactor"])

	m, err = Background(true).Map()
	require.NoError(t, err)
	assert.Contains(t, m, "color")

	m, err = Background(false).Map()
	require.NoError(t, err)
	assert.NotContains(t, m, "color")

	assert.Equal(t, "Emulation.setPageScaleFactor", Zoom(1.2).Method)
	assert.Equal(t, "Emulation.setScrollbarsHidden", ScrollbarsHidden(true).Method)
}
