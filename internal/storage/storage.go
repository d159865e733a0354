package storage

import (
	"fmt"

	"github.com/sdrshn-nmbr/cleancity/internal/transaction"
	"github.com/sdrshn-nmbr/cleancity/internal/types"
)

// Storage interface defines all storage operations
type Storage interface {
	Get(key types.Key) (types.Value, error)
	Put(key types.Key, value types.Value) error
	Delete(key types.Key) error
	ExecuteTransaction(t *transaction.Transaction) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
)

// Open builds the storage backend named by backend. The path is ignored
// for the memory backend.
func Open(backend string, path string) (Storage, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendDisk:
		return NewDiskStorage(path)
	case BackendSQLite:
		return NewSQLiteStorage(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func cloneValue(v types.Value) types.Value {
	if v == nil {
		return nil
	}
	out := make(types.Value, len(v))
	copy(out, v)
	return out
}
