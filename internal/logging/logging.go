package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	disabled atomic.Bool
	level    = new(slog.LevelVar)
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stdout)
}

// SetOutput replaces the destination of all log records.
func SetOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// SetLevel sets the minimum level from a name ("debug", "info", "warn", "error").
// Unknown names fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// Logger returns the structured logger behind this package.
func Logger() *slog.Logger {
	return logger.Load()
}

// Disable turns off all logging
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on
func Enable() {
	disabled.Store(false)
}

func log(l slog.Level, msg string) {
	if disabled.Load() {
		return
	}
	logger.Load().Log(context.Background(), l, msg)
}

// Info logs an info message
func Info(v ...any) {
	log(slog.LevelInfo, fmt.Sprint(v...))
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	log(slog.LevelInfo, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(v ...any) {
	log(slog.LevelError, fmt.Sprint(v...))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	log(slog.LevelError, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func Warn(v ...any) {
	log(slog.LevelWarn, fmt.Sprint(v...))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	log(slog.LevelWarn, fmt.Sprintf(format, v...))
}

// Debug logs a debug message
func Debug(v ...any) {
	log(slog.LevelDebug, fmt.Sprint(v...))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) {
	log(slog.LevelDebug, fmt.Sprintf(format, v...))
}

// Scoped is a component-scoped logger that can be embedded in structs.
type Scoped struct {
	component string
}

// WithComponent returns a logger that prefixes messages with "[component]".
func WithComponent(component string) Scoped {
	return Scoped{component: component}
}

func (s Scoped) prefix(format string) string {
	if s.component == "" {
		return format
	}
	return "[" + s.component + "] " + format
}

// Infof logs a formatted info message
func (s Scoped) Infof(format string, v ...any) {
	Infof(s.prefix(format), v...)
}

// Warnf logs a formatted warning message
func (s Scoped) Warnf(format string, v ...any) {
	Warnf(s.prefix(format), v...)
}

// Errorf logs a formatted error message
func (s Scoped) Errorf(format string, v ...any) {
	Errorf(s.prefix(format), v...)
}

// Debugf logs a formatted debug message
func (s Scoped) Debugf(format string, v ...any) {
	Debugf(s.prefix(format), v...)
}
