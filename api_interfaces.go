package replaycache

import (
	"context"
	"io"
)

// CoreAPI exposes basic cache metadata.
type CoreAPI interface {
	Driver() Driver
	Backend() Store
}

// WriteAPI exposes the instrumented write path and reset.
type WriteAPI interface {
	Store(v Value) (string, error)
	StoreCtx(ctx context.Context, v Value) (string, error)
	Flush() error
	FlushCtx(ctx context.Context) error
}

// ReadAPI exposes raw and typed reads.
type ReadAPI interface {
	Get(key string) ([]byte, bool, error)
	GetCtx(ctx context.Context, key string) ([]byte, bool, error)
	GetStr(key string) (string, error)
	GetStrCtx(ctx context.Context, key string) (string, error)
	GetInt(key string) (int64, error)
	GetIntCtx(ctx context.Context, key string) (int64, error)
	GetFloat(key string) (float64, error)
	GetFloatCtx(ctx context.Context, key string) (float64, error)
}

// ReplayAPI exposes call counters and recorded history.
type ReplayAPI interface {
	Calls(name string) (int64, error)
	CallsCtx(ctx context.Context, name string) (int64, error)
	History(name string) ([]CallRecord, error)
	HistoryCtx(ctx context.Context, name string) ([]CallRecord, error)
	Replay(w io.Writer, name string) error
	ReplayCtx(ctx context.Context, w io.Writer, name string) error
}

// API is the full cache facade surface.
type API interface {
	CoreAPI
	WriteAPI
	ReadAPI
	ReplayAPI
}

var _ API = (*Cache)(nil)
