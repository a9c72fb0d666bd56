package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Local keeps entries in process memory.
type Local struct {
	mu    sync.RWMutex
	items map[string]map[string]Item
}

// NewLocal creates an empty in-process store.
func NewLocal() *Local {
	return &Local{items: make(map[string]map[string]Item)}
}

func (l *Local) Add(_ context.Context, category, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cat, ok := l.items[category]
	if !ok {
		cat = make(map[string]Item)
		l.items[category] = cat
	}
	it, exists := cat[key]
	if !exists {
		it = Item{Category: category, Key: key, CreatedAt: now}
	}
	it.Value = value
	it.UpdatedAt = now
	cat[key] = it
	return nil
}

func (l *Local) Get(_ context.Context, category, key string) (Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.items[category][key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, category, key)
	}
	return it, nil
}

func (l *Local) List(_ context.Context, category string) ([]Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, 0, len(l.items[category]))
	for _, it := range l.items[category] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (l *Local) Close() error { return nil }
