package models

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Factory hands out a model client for a model id at a given temperature.
// Personas carry their own model and temperature, so the reply path asks a
// Factory on every turn instead of holding a single Agent.
type Factory interface {
	ForModel(ctx context.Context, model string, temperature float64) (Agent, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, model string, temperature float64) (Agent, error)

func (f FactoryFunc) ForModel(ctx context.Context, model string, temperature float64) (Agent, error) {
	return f(ctx, model, temperature)
}

// Router resolves model ids to providers and keeps one client per
// (model, temperature) pair.
type Router struct {
	// FallbackProvider serves model ids that match no known family.
	FallbackProvider string
	MaxTokens        int

	mu      sync.Mutex
	clients map[string]Agent
	build   func(ctx context.Context, provider, model, promptPrefix string, gen GenerationOptions) (Agent, error)
}

func NewRouter(fallbackProvider string, maxTokens int) *Router {
	if fallbackProvider == "" {
		fallbackProvider = "anthropic"
	}
	return &Router{
		FallbackProvider: fallbackProvider,
		MaxTokens:        maxTokens,
		clients:          make(map[string]Agent),
		build:            NewLLMProvider,
	}
}

func (r *Router) ForModel(ctx context.Context, model string, temperature float64) (Agent, error) {
	provider, name := ProviderForModel(model, r.FallbackProvider)
	if name == "" {
		return nil, fmt.Errorf("router: empty model id")
	}
	key := provider + "|" + name + "|" + strconv.FormatFloat(temperature, 'f', -1, 64)

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.clients[key]; ok {
		return a, nil
	}
	a, err := r.build(ctx, provider, name, "", GenerationOptions{Temperature: Temperature(temperature), MaxTokens: r.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("router: %s/%s: %w", provider, name, err)
	}
	r.clients[key] = a
	return a, nil
}

var _ Factory = (*Router)(nil)
