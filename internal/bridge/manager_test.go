package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine/enginetest"
	"github.com/neboloop/texbridge/internal/surface"
)

func managerOptions(drv *enginetest.Driver, w, h uint32) Options {
	opts := DefaultOptions()
	opts.Viewport = surface.Viewport{Width: w, Height: h}
	opts.Driver = drv
	return opts
}

func TestManagerCreateGetClose(t *testing.T) {
	ctx := context.Background()
	drv := enginetest.NewDriver()
	m := NewManager(&fakeTex{})

	first, err := m.Create(ctx, managerOptions(drv, 4, 4), "client-a")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := m.Create(ctx, managerOptions(drv, 4, 4), "client-b")
	require.NoError(t, err)

	latest, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	got, err := m.Get(first.ID)
	require.NoError(t, err)
	assert.Same(t, first.Bridge, got.Bridge)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	require.NoError(t, m.Close(first.ID))
	assert.Error(t, m.Close(first.ID))
	_, err = m.Get(first.ID)
	assert.Error(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestManagerCloseOwner(t *testing.T) {
	ctx := context.Background()
	drv := enginetest.NewDriver()
	m := NewManager(nil)

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, managerOptions(drv, 2, 2), "owner")
		require.NoError(t, err)
	}
	other, err := m.Create(ctx, managerOptions(drv, 2, 2), "")
	require.NoError(t, err)

	assert.Equal(t, 3, m.CloseOwner("owner"))
	assert.Equal(t, 0, m.CloseOwner("owner"))
	assert.Equal(t, 1, m.Len())

	m.CloseAll()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, Dormant, other.Bridge.State())
	for _, s := range drv.Sessions() {
		assert.True(t, s.Closed())
	}
}

func TestManagerTick(t *testing.T) {
	ctx := context.Background()
	drv := enginetest.NewDriver()
	tex := &fakeTex{}
	m := NewManager(tex)

	a, err := m.Create(ctx, managerOptions(drv, 3, 3), "")
	require.NoError(t, err)
	_, err = m.Create(ctx, managerOptions(drv, 5, 5), "")
	require.NoError(t, err)

	drv.Sessions()[0].Paint([4]byte{1, 2, 3, 4})
	assert.Equal(t, []string{a.ID}, m.Tick(ctx))
	assert.Empty(t, m.Tick(ctx))
	assert.Len(t, tex.uploads, 1)
}
