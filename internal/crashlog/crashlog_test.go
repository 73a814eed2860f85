package crashlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/lifecycle"
)

func TestRecentNewestFirstAndBounded(t *testing.T) {
	l := New(2)
	l.insert("warn", "a", "one", "", nil)
	l.insert("warn", "a", "two", "", nil)
	l.insert("error", "b", "three", "", map[string]string{"bridge": "x"})

	got := l.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Message)
	assert.Equal(t, "x", got[0].Context["bridge"])
	assert.Equal(t, "two", got[1].Message)

	assert.Len(t, l.Recent(1), 1)
	assert.Len(t, l.Recent(10), 2)
}

func TestGlobalHelpers(t *testing.T) {
	Init(8)
	t.Cleanup(func() { Init(DefaultLimit) })

	LogError("server", nil, nil)
	assert.Empty(t, Recent(0), "nil errors are not recorded")

	LogError("server", errors.New("boom"), nil)
	LogWarn("bridge", "renderer crashed", nil)
	func() {
		defer func() {
			if r := recover(); r != nil {
				LogPanic("frames", r, nil)
			}
		}()
		panic("bad frame")
	}()

	got := Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "panic", got[0].Level)
	assert.Equal(t, "bad frame", got[0].Message)
	assert.NotEmpty(t, got[0].Stacktrace)
	assert.Equal(t, "warn", got[1].Level)
	assert.Equal(t, "error", got[2].Level)
}

func TestTrackBridgesRecordsDeaths(t *testing.T) {
	Init(8)
	lifecycle.Reset()
	t.Cleanup(func() {
		lifecycle.Reset()
		Init(DefaultLimit)
	})
	TrackBridges()

	lifecycle.Emit(lifecycle.EventBridgeLive, lifecycle.BridgeEventData{BridgeID: "b1"})
	lifecycle.Emit(lifecycle.EventBridgeDead, lifecycle.BridgeEventData{BridgeID: "b1", Reason: "render process terminated: oom"})

	got := Recent(0)
	require.Len(t, got, 1)
	assert.Equal(t, "bridge", got[0].Module)
	assert.Equal(t, "render process terminated: oom", got[0].Message)
	assert.Equal(t, "b1", got[0].Context["bridge"])
}
