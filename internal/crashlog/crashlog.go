package crashlog

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/neboloop/texbridge/internal/lifecycle"
	"github.com/neboloop/texbridge/internal/logging"
)

// DefaultLimit is how many records the global log keeps.
const DefaultLimit = 256

var log = logging.WithComponent("crashlog")

// Record is one crash, error or recovered panic.
type Record struct {
	Time       time.Time         `json:"time"`
	Level      string            `json:"level"`
	Module     string            `json:"module"`
	Message    string            `json:"message"`
	Stacktrace string            `json:"stacktrace,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// Logger keeps the most recent records in memory.
// Safe for concurrent use from multiple goroutines.
type Logger struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

// New returns a Logger that keeps at most limit records.
func New(limit int) *Logger {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Logger{limit: limit}
}

var (
	global   = New(DefaultLimit)
	globalMu sync.Mutex
)

// Init replaces the global crash log. Call once at startup.
func Init(limit int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = New(limit)
}

func current() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// LogPanic records a recovered panic with a stack trace.
func LogPanic(module string, r any, ctx map[string]string) {
	msg := fmt.Sprintf("%v", r)
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	log.Errorf("panic in %s: %s", module, msg)
	current().insert("panic", module, msg, string(stack[:n]), ctx)
}

// LogError records an error with optional context.
func LogError(module string, err error, ctx map[string]string) {
	if err == nil {
		return
	}
	current().insert("error", module, err.Error(), "", ctx)
}

// LogWarn records a warning.
func LogWarn(module string, msg string, ctx map[string]string) {
	current().insert("warn", module, msg, "", ctx)
}

// TrackBridges records every bridge that goes Dead in the global log.
func TrackBridges() {
	lifecycle.OnBridgeDead(func(d lifecycle.BridgeEventData) {
		LogWarn("bridge", d.Reason, map[string]string{"bridge": d.BridgeID})
	})
}

// Recent returns up to n of the newest global records, newest first.
func Recent(n int) []Record {
	return current().Recent(n)
}

// Recent returns up to n of the newest records, newest first. n <= 0 returns
// all of them.
func (l *Logger) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, 0, n)
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

func (l *Logger) insert(level, module, message, stacktrace string, ctx map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{
		Time:       time.Now(),
		Level:      level,
		Module:     module,
		Message:    message,
		Stacktrace: stacktrace,
		Context:    ctx,
	})
	if over := len(l.records) - l.limit; over > 0 {
		l.records = append(l.records[:0], l.records[over:]...)
	}
}
