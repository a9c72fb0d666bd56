package gateway

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway holds one client per platform.
type Gateway struct {
	clients map[string]Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewGateway creates an empty gateway.
func NewGateway(logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		clients: make(map[string]Client),
		logger:  logger.With(zap.String("component", "gateway")),
	}
}

// Register adds a client, replacing any client for the same platform.
func (g *Gateway) Register(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	platform := c.Platform()
	if old, ok := g.clients[platform]; ok {
		old.Close()
	}
	g.clients[platform] = c
	g.logger.Info("registered platform client", zap.String("platform", platform))
}

// Client returns the client for a platform.
func (g *Gateway) Client(platform string) (Client, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.clients[platform]
	if !ok {
		return nil, fmt.Errorf("platform %s not configured", platform)
	}
	return c, nil
}

// Platforms returns the registered platform names in sorted order.
func (g *Gateway) Platforms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.clients))
	for p := range g.clients {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close closes every client.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for platform, c := range g.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", platform, err))
		}
	}
	g.clients = make(map[string]Client)
	return errors.Join(errs...)
}
