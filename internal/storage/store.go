package storage

import (
	"context"
	"fmt"
)

// Store holds search records. Implementations must make each method atomic
// with respect to the others.
type Store interface {
	Create(ctx context.Context, query string) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Update(ctx context.Context, id int64, out Outcome) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open builds the store selected by backend. dataDir is only used by the
// sqlite backend.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
