package pwdriver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/engine/devtools"
	"github.com/neboloop/texbridge/internal/surface"
)

type recordingSender struct {
	methods []string
	params  []map[string]interface{}
	err     error
}

func (r *recordingSender) Send(method string, params map[string]interface{}) (interface{}, error) {
	r.methods = append(r.methods, method)
	r.params = append(r.params, params)
	return nil, r.err
}

func TestLaunchOptions(t *testing.T) {
	opts := launchOptions(engine.Config{
		Headless:       true,
		NoSandbox:      true,
		Muted:          true,
		DebuggerPort:   9333,
		ExecutablePath: "/opt/chrome",
		ExtraArgs:      []string{"--lang=fr"},
	})
	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	require.NotNil(t, opts.ChromiumSandbox)
	assert.False(t, *opts.ChromiumSandbox)
	require.NotNil(t, opts.ExecutablePath)
	assert.Equal(t, "/opt/chrome", *opts.ExecutablePath)
	assert.Contains(t, opts.Args, "--mute-audio")
	assert.Contains(t, opts.Args, "--remote-debugging-port=9333")
	assert.Equal(t, "--lang=fr", opts.Args[len(opts.Args)-1])

	opts = launchOptions(engine.Config{})
	assert.Nil(t, opts.ExecutablePath)
	assert.NotContains(t, opts.Args, "--mute-audio")
}

func TestSend(t *testing.T) {
	r := &recordingSender{}
	require.NoError(t, send(r, devtools.StartScreencast(surface.Viewport{Width: 4, Height: 3}, devtools.FormatPNG, 60)))
	require.Len(t, r.methods, 1)
	assert.Equal(t, "Page.startScreencast", r.methods[0])
	assert.Equal(t, 4.0, r.params[0]["maxWidth"])

	r.err = errors.New("target closed")
	err := send(r, devtools.StopScreencast())
	assert.ErrorContains(t, err, "Page.stopScreencast: target closed")
}

func TestOnMessage(t *testing.T) {
	mb := engine.NewMailbox(0)
	s := &session{mb: mb}

	s.onMessage([]interface{}{`{"cmd":"a","data":"b"}`})
	s.onMessage([]interface{}{42})
	s.onMessage(nil)

	events := mb.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventMessage, events[0].Kind)
	assert.Equal(t, `{"cmd":"a","data":"b"}`, events[0].Payload)
}

func TestSessionClosedErrors(t *testing.T) {
	s := &session{closed: true}
	ctx := context.Background()
	assert.ErrorIs(t, s.Navigate(ctx, "about:blank"), engine.ErrSessionClosed)
	assert.ErrorIs(t, s.SetZoom(ctx, 1), engine.ErrSessionClosed)
	assert.ErrorIs(t, s.Pump(ctx), engine.ErrSessionClosed)
	assert.ErrorIs(t, s.Close(), engine.ErrSessionClosed)
}

func TestDriverRequiresInit(t *testing.T) {
	d := &Driver{}
	_, err := d.NewSession(context.Background(), engine.SessionOptions{}, nil, engine.NewMailbox(0))
	assert.ErrorIs(t, err, engine.ErrNotInitialized)
	assert.NoError(t, d.Shutdown())
	assert.Contains(t, engine.Drivers(), Name)
}
