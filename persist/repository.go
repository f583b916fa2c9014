// Package persist stores rule configurations as YAML data nodes in a key/value repository.
// Keys are slash separated paths, e.g. /metadata/logic_db/rules/sharding/rule.
package persist

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository 持久化仓库
type Repository interface {
	Persist(ctx context.Context, key, value string) error
	// Load returns false when key is absent
	Load(ctx context.Context, key string) (string, bool, error)
	// ChildrenKeys sorted names of the direct children of key
	ChildrenKeys(ctx context.Context, key string) ([]string, error)
	// Delete removes key and every key below it
	Delete(ctx context.Context, key string) error
	// Replace swaps the subtree under key for nodes in one step, nodes are keyed by full path
	Replace(ctx context.Context, key string, nodes map[string]string) error
}

// MemoryRepository in-process repository
type MemoryRepository struct {
	mu    sync.RWMutex
	nodes map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nodes: make(map[string]string)}
}

func (r *MemoryRepository) Persist(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[key] = value
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.nodes[key]
	return v, ok, nil
}

func (r *MemoryRepository) ChildrenKeys(_ context.Context, key string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.nodes))
	for k := range r.nodes {
		keys = append(keys, k)
	}
	return children(key, keys), nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delete(key)
	return nil
}

func (r *MemoryRepository) Replace(_ context.Context, key string, nodes map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delete(key)
	for k, v := range nodes {
		r.nodes[k] = v
	}
	return nil
}

func (r *MemoryRepository) delete(key string) {
	prefix := strings.TrimSuffix(key, "/") + "/"
	for k := range r.nodes {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(r.nodes, k)
		}
	}
}

// children direct child names of parent among keys
func children(parent string, keys []string) []string {
	prefix := strings.TrimSuffix(parent, "/") + "/"
	seen := make(map[string]struct{})
	var names []string
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		name, _, _ := strings.Cut(k[len(prefix):], "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
