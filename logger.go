package diskcore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with diskcore-specific context.
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

// WithDevice adds a device field to the logger.
func (l *Logger) WithDevice(dev DeviceID) *Logger {
	return &Logger{
		Logger: l.Logger.With("device", uint32(dev)),
	}
}

// WithBlock adds a block field to the logger.
func (l *Logger) WithBlock(block BlockNum) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", uint32(block)),
	}
}

// LogAttach logs a device attach.
func (l *Logger) LogAttach(ctx context.Context, dev DeviceID, numBlocks uint32) {
	l.InfoContext(ctx, "device attached",
		"device", uint32(dev),
		"blocks", numBlocks,
	)
}

// LogRead logs a block read.
func (l *Logger) LogRead(ctx context.Context, dev DeviceID, block BlockNum, err error) {
	if err != nil {
		l.ErrorContext(ctx, "read failed",
			"device", uint32(dev),
			"block", uint32(block),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "read completed",
			"device", uint32(dev),
			"block", uint32(block),
		)
	}
}

// LogWrite logs a block write.
func (l *Logger) LogWrite(ctx context.Context, dev DeviceID, block BlockNum, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"device", uint32(dev),
			"block", uint32(block),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "write completed",
			"device", uint32(dev),
			"block", uint32(block),
		)
	}
}

// LogPrefetch logs a prefetch operation.
func (l *Logger) LogPrefetch(ctx context.Context, dev DeviceID, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "prefetch completed with failures",
			"device", uint32(dev),
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "prefetch completed",
			"device", uint32(dev),
			"count", count,
		)
	}
}
