package memvec

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with memvec-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithOwner adds an owner field to the logger.
func (l *Logger) WithOwner(owner string) *Logger {
	return &Logger{
		Logger: l.Logger.With("owner", owner),
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, owner string, id int64, deduped bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"owner", owner,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"owner", owner,
			"id", id,
			"deduped", deduped,
		)
	}
}

// LogBatchAdd logs a batch add operation.
func (l *Logger) LogBatchAdd(ctx context.Context, owner string, count, deduped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch add failed",
			"owner", owner,
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch add completed",
			"owner", owner,
			"count", count,
			"deduped", deduped,
		)
	}
}

// LogQuery logs a query operation.
func (l *Logger) LogQuery(ctx context.Context, owner string, topk, candidates, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"owner", owner,
			"topk", topk,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"owner", owner,
			"topk", topk,
			"candidates", candidates,
			"results", results,
		)
	}
}

// LogBuild logs an index build.
func (l *Logger) LogBuild(ctx context.Context, owner string, k, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "index build failed",
			"owner", owner,
			"k", k,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"owner", owner,
			"k", k,
			"count", count,
		)
	}
}

// LogFallback logs an embedding backend fallback.
func (l *Logger) LogFallback(ctx context.Context, from, to string, cause error) {
	l.WarnContext(ctx, "embedding backend fallback",
		"from", from,
		"to", to,
		"cause", cause,
	)
}
