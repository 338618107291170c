package leadlag

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var errNilGroup = errors.New("group cannot be nil")

// MemoryStorage is an in-memory, single-instance Storage implementation.
// It is the fallback used when Redis is unavailable: volatile, no
// optimistic locking, and unbounded by a TTL since group count is small and
// bounded by site configuration.
type MemoryStorage struct {
	mu     sync.RWMutex
	groups map[GroupKey]*Group
	logger *slog.Logger
}

// NewMemoryStorage creates a new in-memory group store.
func NewMemoryStorage(logger *slog.Logger) *MemoryStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStorage{
		groups: make(map[GroupKey]*Group),
		logger: logger,
	}
}

func (m *MemoryStorage) Store(ctx context.Context, group *Group) error {
	if group == nil {
		return NewStorageError("store", errNilGroup)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[group.Key] = group.Clone()
	return nil
}

func (m *MemoryStorage) Load(ctx context.Context, key GroupKey) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[key]
	if !ok {
		return nil, NewGroupNotFoundError(key)
	}
	return g.Clone(), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key GroupKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.groups, key)
	return nil
}

func (m *MemoryStorage) ListKeys(ctx context.Context) ([]GroupKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]GroupKey, 0, len(m.groups))
	for k := range m.groups {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryStorage) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.groups), nil
}

func (m *MemoryStorage) LoadAll(ctx context.Context) ([]*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g.Clone())
	}
	return groups, nil
}

func (m *MemoryStorage) StoreAll(ctx context.Context, groups []*Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range groups {
		if g == nil {
			continue
		}
		m.groups[g.Key] = g.Clone()
	}
	return nil
}

// Ping always succeeds: in-memory storage has no external dependency.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
