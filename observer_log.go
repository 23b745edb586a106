package replaycache

import (
	"context"
	"log/slog"
	"time"
)

// LogObserver writes one structured record per cache operation.
// Failed operations log at error level, everything else at debug.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns an observer that logs to logger, or to slog.Default
// when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

// OnCacheOp implements Observer.
func (l *LogObserver) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("driver", string(driver)),
		slog.Bool("hit", hit),
		slog.Duration("duration", dur),
	}
	if key != "" {
		attrs = append(attrs, slog.String("key", key))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.LogAttrs(ctx, slog.LevelError, "cache operation failed", attrs...)
		return
	}
	l.Logger.LogAttrs(ctx, slog.LevelDebug, "cache operation", attrs...)
}
