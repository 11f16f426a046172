// Package kvstore implements the KeyValueStore external interface (§6)
// used for template persistence, with an in-memory implementation for
// tests and a Postgres-backed implementation grounded in mbflow's
// internal/infrastructure/storage.BunStore (bun.DB + pgdriver wiring),
// trimmed from that file's full domain-aggregate persistence down to a
// flat key/value table.
package kvstore

import (
	"context"
	"sync"

	"github.com/flowcore/flowcore/internal/errs"
)

// KeyValueStore persists arbitrary string values under string keys,
// scoped by a namespace (e.g. "templates", "pricing-snapshots").
type KeyValueStore interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) ([]string, error)
}

// MemoryStore is an in-process KeyValueStore, used by tests and by the
// demo CLI when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.data[namespace]
	if !ok {
		return "", errs.NotFound(namespace + "/" + key)
	}
	v, ok := ns[key]
	if !ok {
		return "", errs.NotFound(namespace + "/" + key)
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = map[string]string{}
		m.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(ns))
	for k := range ns {
		out = append(out, k)
	}
	return out, nil
}
