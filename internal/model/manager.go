package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/config"
	"github.com/nidhogg/droid/internal/provider"
)

// ErrModelNotFound is returned when a model name is not registered.
var ErrModelNotFound = errors.New("model not found")

type entry struct {
	kind Kind
	gen  Generator
}

// Manager holds named generators and routes prompts to them.
type Manager struct {
	models    map[string]entry
	fallbacks map[string][]string // model -> fallback chain
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewManager creates an empty model manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		models:    make(map[string]entry),
		fallbacks: make(map[string][]string),
		logger:    logger.With(zap.String("component", "models")),
	}
}

// Register adds or replaces a model. The first model registered becomes the
// default.
func (m *Manager) Register(name string, kind Kind, gen Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[name] = entry{kind: kind, gen: gen}
	if m.defaults == "" {
		m.defaults = name
	}
	m.logger.Info("registered model", zap.String("name", name), zap.String("type", string(kind)))
}

// SetDefault sets the model used when Run gets an empty name.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = name
}

// DefaultName returns the current default model.
func (m *Manager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults
}

// SetFallbacks configures models tried in order when name fails.
func (m *Manager) SetFallbacks(name string, fallbacks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[name] = append([]string(nil), fallbacks...)
}

// HasModel reports whether name is registered.
func (m *Manager) HasModel(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.models[name]
	return ok
}

// Kind returns the kind of a registered model.
func (m *Manager) Kind(name string) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.models[name]
	return e.kind, ok
}

// Run generates with the named model (the default when name is empty), then
// with its fallbacks in order.
func (m *Manager) Run(ctx context.Context, name, prompt string) (string, error) {
	m.mu.RLock()
	if name == "" {
		name = m.defaults
	}
	primary, ok := m.models[name]
	var chain []entry
	var chainNames []string
	for _, fb := range m.fallbacks[name] {
		if e, ok := m.models[fb]; ok {
			chain = append(chain, e)
			chainNames = append(chainNames, fb)
		}
	}
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	out, err := primary.gen.Generate(ctx, prompt)
	if err == nil {
		return out, nil
	}
	if len(chain) > 0 {
		m.logger.Warn("primary model failed, trying fallbacks",
			zap.String("model", name), zap.Error(err))
	}

	for i, fb := range chain {
		out, err = fb.gen.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		m.logger.Warn("fallback model failed", zap.String("model", chainNames[i]), zap.Error(err))
	}

	return "", fmt.Errorf("all models failed for %s: %w", name, err)
}

// Generator returns a Generator bound to name through this manager.
func (m *Manager) Generator(name string) Generator {
	return Bound{Manager: m, Name: name}
}

// Names returns all registered models in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.models))
	for n := range m.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a manager from model entries.
func FromConfig(models []config.ModelConfig, defaultModel string, logger *zap.Logger) (*Manager, error) {
	m := NewManager(logger)
	for _, mc := range models {
		gen, err := newGenerator(mc, logger)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", mc.Name, err)
		}
		kind := Kind(mc.Type)
		if kind == "" {
			kind = KindLLM
		}
		m.Register(mc.Name, kind, gen)
		if len(mc.Fallbacks) > 0 {
			m.SetFallbacks(mc.Name, mc.Fallbacks)
		}
	}
	if defaultModel != "" {
		if !m.HasModel(defaultModel) {
			return nil, fmt.Errorf("default %w: %s", ErrModelNotFound, defaultModel)
		}
		m.SetDefault(defaultModel)
	}
	return m, nil
}

func newGenerator(mc config.ModelConfig, logger *zap.Logger) (Generator, error) {
	pc := provider.Config{
		ID:       mc.Name,
		Type:     mc.Provider,
		Name:     mc.Name,
		Endpoint: mc.Endpoint,
		APIKey:   mc.APIKey,
		Extra:    mc.Extra,
	}
	name := mc.Model
	if name == "" {
		name = mc.Name
	}

	switch mc.Provider {
	case "", "placeholder":
		return Placeholder{Name: mc.Name, Kind: Kind(mc.Type)}, nil
	case "openai":
		return ProviderGenerator{Provider: provider.NewOpenAIProvider(pc, logger), Model: name, MaxTokens: mc.MaxTokens}, nil
	case "anthropic":
		return ProviderGenerator{Provider: provider.NewAnthropicProvider(pc, logger), Model: name, MaxTokens: mc.MaxTokens}, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", mc.Provider)
	}
}
