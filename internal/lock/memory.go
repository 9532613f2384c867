package lock

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Keys are hierarchical on ".".
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *MemoryStore) Create(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return ErrHeld
	}
	m.entries[key] = slices.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	if recursive {
		for k := range m.entries {
			if strings.HasPrefix(k, key+".") {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

func (m *MemoryStore) Children(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return childNames(key, ".", func(yield func(string) bool) {
		for k := range m.entries {
			if !yield(k) {
				return
			}
		}
	}), nil
}

// Value returns the stored owner value for key.
func (m *MemoryStore) Value(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// childNames returns the sorted, de-duplicated direct child names of parent.
func childNames(parent, sep string, keys func(func(string) bool)) []string {
	prefix := parent + sep
	seen := map[string]struct{}{}
	for k := range keys {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, sep)
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
