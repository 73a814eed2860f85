package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	inits     int
	shutdowns int
	initErr   error
}

func (d *stubDriver) Init(ctx context.Context, cfg Config) error {
	d.inits++
	return d.initErr
}

func (d *stubDriver) NewSession(ctx context.Context, opts SessionOptions, target PaintTarget, mb *Mailbox) (Session, error) {
	return nil, errors.New("stub has no sessions")
}

func (d *stubDriver) Shutdown() error {
	d.shutdowns++
	return nil
}

func withCleanRegistry(t *testing.T) {
	t.Helper()
	mu.Lock()
	saved := drivers
	drivers = make(map[string]Driver)
	active = nil
	activeCfg = Config{}
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		drivers = saved
		active = nil
		activeCfg = Config{}
		mu.Unlock()
	})
}

func TestNewSessionBeforeInit(t *testing.T) {
	withCleanRegistry(t)
	_, err := NewSession(context.Background(), SessionOptions{}, nil, NewMailbox(0))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitIsIdempotent(t *testing.T) {
	withCleanRegistry(t)
	d := &stubDriver{}
	Register("stub", d)

	require.NoError(t, Init(context.Background(), Config{Backend: "stub"}))
	require.NoError(t, Init(context.Background(), Config{Backend: "stub"}))
	assert.Equal(t, 1, d.inits)

	cfg, ok := Active()
	require.True(t, ok)
	assert.Equal(t, DefaultFrameRate, cfg.FrameRate)

	require.NoError(t, Shutdown())
	require.NoError(t, Shutdown())
	assert.Equal(t, 1, d.shutdowns)

	_, ok = Active()
	assert.False(t, ok)
}

func TestInitUnknownDriver(t *testing.T) {
	withCleanRegistry(t)
	err := Init(context.Background(), Config{Backend: "nope"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestInitFailureLeavesEngineStopped(t *testing.T) {
	withCleanRegistry(t)
	Register("broken", &stubDriver{initErr: errors.New("no chrome")})

	require.Error(t, Init(context.Background(), Config{Backend: "broken"}))
	_, ok := Active()
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	withCleanRegistry(t)
	Register("stub", &stubDriver{})
	assert.Panics(t, func() { Register("stub", &stubDriver{}) })
	assert.Equal(t, []string{"stub"}, Drivers())
}

func TestMailboxOrderAndLimit(t *testing.T) {
	mb := NewMailbox(2)
	mb.Post(Event{Kind: EventMessage, Payload: "1"})
	mb.Post(Event{Kind: EventMessage, Payload: "2"})
	mb.Post(Event{Kind: EventMessage, Payload: "3"})
	mb.Post(Event{Kind: EventLoadEnd})

	got := mb.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Payload)
	assert.Equal(t, "2", got[1].Payload)
	assert.Equal(t, EventLoadEnd, got[2].Kind)
	assert.Nil(t, mb.Drain())
}

func TestMailboxClosedIgnoresPosts(t *testing.T) {
	mb := NewMailbox(0)
	mb.Post(Event{Kind: EventLoadEnd})
	mb.Close()
	mb.Post(Event{Kind: EventLoadEnd})
	assert.Equal(t, 0, mb.Len())
}
