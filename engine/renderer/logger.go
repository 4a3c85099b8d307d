package renderer

import (
	"log/slog"
	"sync/atomic"
)

// loggerPtr stores the package logger. Accessed atomically so SetLogger may race with rendering.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(slog.DiscardHandler))
}

// SetLogger sets the logger renderers built afterwards default to. By default nothing is logged.
// Passing nil restores the silent default.
//
// Levels used:
//   - [slog.LevelDebug]: per-pass timings and device internals
//   - [slog.LevelInfo]: pipeline creation, resize and profiler reports
//   - [slog.LevelWarn]: shadow maps degraded for a frame
//   - [slog.LevelError]: fatal frame errors
//
// Parameters:
//   - l: the logger
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	loggerPtr.Store(l)
}

// Logger returns the package logger.
//
// Returns:
//   - *slog.Logger: the current logger, never nil
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
