package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Records are kept as JSON so reads see
// exactly what a networked store would return.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[string]map[string]json.RawMessage
	keys    *KeyGenerator
	offline bool
	failSet error
}

// NewMemoryStore returns an empty, online store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]json.RawMessage),
		keys:  NewKeyGenerator(),
	}
}

// SetOffline makes every operation fail with ErrOffline until cleared
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// FailWrites makes Set and Remove return err (nil restores normal behaviour)
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	m.failSet = err
	m.mu.Unlock()
}

func (m *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return ErrOffline
	}
	return nil
}

// NewKey implements Store
func (m *MemoryStore) NewKey(ctx context.Context, collection string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return "", err
	}
	if !ValidCollection(collection) {
		return "", fmt.Errorf("remote: unknown collection %q", collection)
	}
	return m.keys.Next(), nil
}

// Set implements Store
func (m *MemoryStore) Set(ctx context.Context, collection, key string, record any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("remote: marshal %s/%s: %w", collection, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if m.failSet != nil {
		return m.failSet
	}
	if string(data) == "null" {
		delete(m.nodes[collection], key)
		return nil
	}
	if m.nodes[collection] == nil {
		m.nodes[collection] = make(map[string]json.RawMessage)
	}
	m.nodes[collection][key] = data
	return nil
}

// Remove implements Store
func (m *MemoryStore) Remove(ctx context.Context, collection, key string) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if m.failSet != nil {
		return m.failSet
	}
	delete(m.nodes[collection], key)
	return nil
}

// GetAll implements Store
func (m *MemoryStore) GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(m.nodes[collection]))
	for k, v := range m.nodes[collection] {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, collection, key string, v any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	raw, ok := m.nodes[collection][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return json.Unmarshal(raw, v)
}

// Ping implements Store
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

// Keys returns the sorted keys of a collection
func (m *MemoryStore) Keys(collection string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.nodes[collection]))
	for k := range m.nodes[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of nodes in a collection
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes[collection])
}
