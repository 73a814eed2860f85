package devtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

// Params is a typed DevTools command. It satisfies chromedp.Action.
type Params interface {
	Do(ctx context.Context) error
}

// Command pairs typed params with their protocol method so backends that only
// speak raw CDP can send them too.
type Command struct {
	Method string
	Params Params
}

// Map returns the params as the JSON object sent on the wire.
func (c Command) Map() (map[string]any, error) {
	raw, err := json.Marshal(c.Params)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Method, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Method, err)
	}
	return out, nil
}

// StartScreencast streams frames at the viewport size.
func StartScreencast(vp surface.Viewport, format Format, frameRate int) Command {
	p := page.StartScreencast().
		WithMaxWidth(int64(vp.Width)).
		WithMaxHeight(int64(vp.Height)).
		WithEveryNthFrame(int64(EveryNthFrame(frameRate)))
	if format == FormatJPEG {
		p = p.WithFormat(page.ScreencastFormatJpeg).WithQuality(90)
	} else {
		p = p.WithFormat(page.ScreencastFormatPng)
	}
	return Command{page.CommandStartScreencast, p}
}

func StopScreencast() Command {
	return Command{page.CommandStopScreencast, page.StopScreencast()}
}

func FrameAck(sessionID int64) Command {
	return Command{page.CommandScreencastFrameAck, page.ScreencastFrameAck(sessionID)}
}

// DeviceMetrics pins the layout viewport to vp at a device scale of one.
func DeviceMetrics(vp surface.Viewport) Command {
	return Command{
		emulation.CommandSetDeviceMetricsOverride,
		emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), 1, false),
	}
}

// Background clears the default page background when transparent and resets
// it otherwise.
func Background(transparent bool) Command {
	p := emulation.SetDefaultBackgroundColorOverride()
	if transparent {
		p = p.WithColor(&cdp.RGBA{A: 0})
	}
	return Command{emulation.CommandSetDefaultBackgroundColorOverride, p}
}

func Zoom(factor float64) Command {
	return Command{emulation.CommandSetPageScaleFactor, emulation.SetPageScaleFactor(factor)}
}

func ScrollbarsHidden(hidden bool) Command {
	return Command{emulation.CommandSetScrollbarsHidden, emulation.SetScrollbarsHidden(hidden)}
}

// Input encodes one native event.
func Input(ev engine.NativeEvent) (Command, error) {
	switch {
	case ev.MouseMove != nil:
		m := ev.MouseMove
		return Command{input.CommandDispatchMouseEvent,
			input.DispatchMouseEvent(input.MouseMoved, float64(m.X), float64(m.Y)).
				WithModifiers(input.Modifier(Modifiers(m.Modifiers)))}, nil
	case ev.MouseClick != nil:
		c := ev.MouseClick
		typ := input.MousePressed
		if c.Up {
			typ = input.MouseReleased
		}
		count := c.ClickCount
		if count <= 0 {
			count = 1
		}
		return Command{input.CommandDispatchMouseEvent,
			input.DispatchMouseEvent(typ, float64(c.X), float64(c.Y)).
				WithButton(mouseButton(c.Button)).
				WithClickCount(int64(count)).
				WithModifiers(input.Modifier(Modifiers(c.Modifiers)))}, nil
	case ev.Wheel != nil:
		w := ev.Wheel
		return Command{input.CommandDispatchMouseEvent,
			input.DispatchMouseEvent(input.MouseWheel, float64(w.X), float64(w.Y)).
				WithDeltaX(float64(w.DeltaX)).
				WithDeltaY(float64(w.DeltaY)).
				WithModifiers(input.Modifier(Modifiers(w.Modifiers)))}, nil
	case ev.Key != nil:
		k := ev.Key
		p := input.DispatchKeyEvent(keyType(k.Type)).
			WithWindowsVirtualKeyCode(int64(k.WindowsKeyCode)).
			WithNativeVirtualKeyCode(int64(k.NativeKeyCode)).
			WithModifiers(input.Modifier(Modifiers(k.Modifiers)))
		if k.Type == engine.KeyChar {
			p = p.WithText(Text(k.Character)).
				WithUnmodifiedText(Text(k.UnmodifiedCharacter))
		}
		return Command{input.CommandDispatchKeyEvent, p}, nil
	case ev.Focus != nil:
		return Command{emulation.CommandSetFocusEmulationEnabled,
			emulation.SetFocusEmulationEnabled(ev.Focus.Focused)}, nil
	default:
		return Command{}, fmt.Errorf("empty native event")
	}
}

func mouseButton(b engine.MouseButton) input.MouseButton {
	switch b {
	case engine.ButtonMiddle:
		return input.Middle
	case engine.ButtonRight:
		return input.Right
	default:
		return input.Left
	}
}

func keyType(t engine.KeyType) input.KeyType {
	switch t {
	case engine.KeyUp:
		return input.KeyUp
	case engine.KeyChar:
		return input.KeyChar
	default:
		return input.KeyRawDown
	}
}
