package cdpdriver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		arg   string
		name  string
		value any
		ok    bool
	}{
		{"--disable-extensions", "disable-extensions", true, true},
		{"--lang=de-DE", "lang", "de-DE", true},
		{"window-size=800,600", "window-size", "800,600", true},
		{"--", "", nil, false},
		{"  ", "", nil, false},
		{"--=x", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, value, ok := parseFlag(tt.arg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestAllocatorOptionsGrowWithConfig(t *testing.T) {
	base := allocatorOptions(engine.Config{}, nil)
	full := allocatorOptions(engine.Config{
		NoSandbox:    true,
		DebuggerPort: 9222,
		UserDataDir:  t.TempDir(),
		ExtraArgs:    []string{"--lang=en", "--"},
	}, &BrowserExecutable{Kind: BrowserCustom, Path: "/bin/true"})

	// sandbox, port, data dir, exec path and one valid extra arg
	assert.Len(t, full, len(base)+5)
}

func TestFindChromeExecutableCustomPath(t *testing.T) {
	_, err := FindChromeExecutable(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	exe, err := FindChromeExecutable(path)
	require.NoError(t, err)
	assert.Equal(t, BrowserCustom, exe.Kind)
	assert.Equal(t, path, exe.Path)
}

func TestWrapLaunchError(t *testing.T) {
	assert.NoError(t, wrapLaunchError(nil, "launch browser"))

	base := errors.New(`exec: "chromium": executable file not found in $PATH`)
	err := wrapLaunchError(base, "launch browser")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "Hint: Install Chromium")

	err = wrapLaunchError(errors.New("boom"), "open tab")
	assert.Equal(t, "open tab failed: boom", err.Error())
}

func TestDriverRequiresInit(t *testing.T) {
	d := &Driver{}
	_, err := d.NewSession(context.Background(), engine.SessionOptions{}, nil, engine.NewMailbox(0))
	assert.ErrorIs(t, err, engine.ErrNotInitialized)
	assert.NoError(t, d.Shutdown())
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, engine.Drivers(), Name)
}
