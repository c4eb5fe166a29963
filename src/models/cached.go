package models

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/cache"
)

// CachedLLM wraps an Agent and caches successful Generate calls by prompt.
type CachedLLM struct {
	Agent Agent
	Cache *cache.LRU[any]
}

// NewCachedLLM creates a new CachedLLM wrapper.
func NewCachedLLM(agent Agent, size int, ttl time.Duration) *CachedLLM {
	return &CachedLLM{
		Agent: agent,
		Cache: cache.New[any](size, ttl),
	}
}

// Generate checks the cache before calling the underlying agent.
func (c *CachedLLM) Generate(ctx context.Context, prompt string) (any, error) {
	key := cache.HashKey(prompt)
	if val, ok := c.Cache.Get(key); ok {
		return val, nil
	}

	res, err := c.Agent.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c.Cache.Set(key, res)
	return res, nil
}

// MaybeCached wraps agent in a CachedLLM when ttl is positive.
func MaybeCached(agent Agent, size int, ttl time.Duration) Agent {
	if ttl <= 0 {
		return agent
	}
	return NewCachedLLM(agent, size, ttl)
}

var _ Agent = (*CachedLLM)(nil)
