package model

import (
	"context"
	"fmt"

	"github.com/nidhogg/droid/internal/provider"
)

// Kind classifies what a model produces.
type Kind string

const (
	KindLLM       Kind = "llm"
	KindDiffusion Kind = "diffusion"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Placeholder produces labelled simulated output without calling any backend.
type Placeholder struct {
	Name string
	Kind Kind
}

func (p Placeholder) Generate(_ context.Context, prompt string) (string, error) {
	if p.Kind == KindDiffusion {
		return fmt.Sprintf("[Simulated image from %s for prompt: %s]", p.Name, truncate(prompt, 50)), nil
	}
	return fmt.Sprintf("[Simulated response from %s for a %d-character prompt]", p.Name, len(prompt)), nil
}

// ProviderGenerator sends the prompt as a single user message to a chat
// provider.
type ProviderGenerator struct {
	Provider    provider.Provider
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

func (g ProviderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := &provider.ChatRequest{
		Model:       g.Model,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
	}
	if g.System != "" {
		req.Messages = append(req.Messages, provider.Message{Role: "system", Content: g.System})
	}
	req.Messages = append(req.Messages, provider.Message{Role: "user", Content: prompt})

	resp, err := g.Provider.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", g.Provider.ID(), err)
	}
	return resp.Content, nil
}

// Bound runs a named model through a Manager, so fallbacks apply.
type Bound struct {
	Manager *Manager
	Name    string
}

func (b Bound) Generate(ctx context.Context, prompt string) (string, error) {
	return b.Manager.Run(ctx, b.Name, prompt)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
