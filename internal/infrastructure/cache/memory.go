package cache

import (
	"context"
	"sync"

	"github.com/example/localmart/internal/readmodel"
)

// Memory is an in-process OrderCache. The API uses it when storage is
// memory, where the one projector sees every write.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	Err     error
}

// memoryEntry with a nil order is an invalidation marker.
type memoryEntry struct {
	version int
	order   *readmodel.OrderReadModel
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, orderID string) (*readmodel.OrderReadModel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	e, ok := m.entries[orderID]
	if !ok || e.order == nil {
		return nil, false, nil
	}
	return e.order.Clone(), true, nil
}

func (m *Memory) Set(_ context.Context, order *readmodel.OrderReadModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if e, ok := m.entries[order.ID]; ok && e.version > order.Version {
		return nil
	}
	m.entries[order.ID] = memoryEntry{version: order.Version, order: order.Clone()}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, orderID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if e, ok := m.entries[orderID]; ok && e.version > version {
		return nil
	}
	m.entries[orderID] = memoryEntry{version: version}
	return nil
}

// Len reports how many orders are cached.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.order != nil {
			n++
		}
	}
	return n
}
