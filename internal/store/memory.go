package store

import (
	"context"
	"sync"

	"github.com/tollgate/tollgate/internal/quota"
)

// Memory is the in-process Store used in fast mode. State is lost when the
// process exits.
type Memory struct {
	mu      sync.RWMutex
	records map[string]quota.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]quota.Record)}
}

func (m *Memory) Get(ctx context.Context, account string) (quota.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[account]
	return rec, ok, nil
}

func (m *Memory) Mutate(ctx context.Context, account string, fn func(*quota.Record) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[account] // zero record on first observation
	if err := fn(&rec); err != nil {
		return err
	}
	m.records[account] = rec
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len reports the number of observed accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
