// Package fleetlog provides the structured logger shared by every core
// component. It wraps log/slog and, outside of debug level, filters out
// log lines emitted by third-party dependencies so operators see only the
// pipeline's own reasoning about what it is doing.
package fleetlog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/fleetpilot/corepipe"

var defaultLogger *slog.Logger

// ParseLevel converts a string log level (debug, info, warn, error) to a
// slog.Level, defaulting to warn for anything unrecognized.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler only passes through non-pipeline log records when the
// configured level is debug or lower.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || isPipelineFrame(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func isPipelineFrame(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "corepipe/")
}

// Init installs the process-wide default logger, writing to output at the
// given level. format "verbose" selects slog's JSON handler; any other
// value, including "simple", selects slog's text handler.
func Init(level slog.Level, output *os.File, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if format == "verbose" {
		handler = slog.NewJSONHandler(output, opts)
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// Get returns the process default logger, initializing one at Info/simple
// if Init was never called.
func Get() *slog.Logger {
	if defaultLogger == nil {
		return Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
