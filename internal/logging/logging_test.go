package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopedPrefixAndDisable(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	WithComponent("bridge").Warnf("paint dropped %dx%d", 10, 20)
	assert.Contains(t, buf.String(), "[bridge] paint dropped 10x20")
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	Disable()
	Info("hidden")
	Enable()
	assert.Empty(t, buf.String())
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("error")
	Warn("not shown")
	assert.Empty(t, buf.String())

	SetLevel("debug")
	Debugf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}
