// Package debug is the module wide structured logger. Compilation, cache
// and execution steps log through it at debug level; it is silent unless
// enabled through Init or the OBJQL_DEBUG environment variable.
package debug

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

var (
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
)

func init() {
	on, _ := strconv.ParseBool(os.Getenv("OBJQL_DEBUG"))
	Init(on)
}

// Init enables or disables debug output to stderr.
func Init(enable bool) {
	InitWriter(enable, os.Stderr)
}

// InitWriter is like Init but writes to w. Disabled loggers still report
// errors.
func InitWriter(enable bool, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable
	level := slog.LevelError
	if enable {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("component", "objql")
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }

func Info(msg string, args ...any) { current().Info(msg, args...) }

func Warn(msg string, args ...any) { current().Warn(msg, args...) }

func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger { return current().With(args...) }

// Logger returns the underlying logger.
func Logger() *slog.Logger { return current() }
