package storage

import (
	"sync"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/transaction"
	"github.com/sdrshn-nmbr/cleancity/internal/types"
)

type MemoryStorage struct {
	data   map[string]types.Entry
	closed bool
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]types.Entry),
	}
}

func (m *MemoryStorage) Get(key types.Key) (types.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	entry, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return cloneValue(entry.Value), nil
}

func (m *MemoryStorage) Put(key types.Key, value types.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	m.data[string(key)] = types.Entry{
		Key:       key,
		Value:     cloneValue(value),
		Timestamp: time.Now(),
	}

	return nil
}

func (m *MemoryStorage) Delete(key types.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.data[string(key)]; !ok {
		return ErrKeyNotFound
	}

	delete(m.data, string(key))

	return nil
}

func (m *MemoryStorage) ExecuteTransaction(t *transaction.Transaction) error {
	if t == nil {
		return ErrInvalidTxn
	}

	// Phase 1: Prep
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		t.Status = transaction.Aborted
		return ErrStorageClosed
	}

	// Deletes of missing keys abort the whole transaction, so check
	// them against the state the transaction itself builds up.
	staged := make(map[string]bool)
	for _, op := range t.Operations {
		switch op.Type {
		case types.Put:
			staged[string(op.Key)] = true
		case types.Delete:
			exists, seen := staged[string(op.Key)]
			if !seen {
				_, exists = m.data[string(op.Key)]
			}
			if !exists {
				t.Status = transaction.Aborted
				return ErrKeyNotFound
			}
			staged[string(op.Key)] = false
		}
	}

	// Phase 2: Commit
	now := time.Now()
	for _, op := range t.Operations {
		switch op.Type {
		case types.Put:
			m.data[string(op.Key)] = types.Entry{
				Key:       op.Key,
				Value:     cloneValue(op.Value),
				Timestamp: now,
			}
		case types.Delete:
			delete(m.data, string(op.Key))
		}
	}
	t.Status = transaction.Committed

	return nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
