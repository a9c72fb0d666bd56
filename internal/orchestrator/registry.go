package orchestrator

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps task type names to handlers.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Register adds a handler, replacing any previous one under the same name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	_, replaced := r.handlers[name]
	r.handlers[name] = h
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("replacing task handler", zap.String("task", name))
		return
	}
	r.logger.Info("registered task handler", zap.String("task", name))
}

// Resolve returns the handler for name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered task types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
