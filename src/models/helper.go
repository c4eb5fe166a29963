package models

import (
	"context"
	"fmt"
	"strings"
)

// NewLLMProvider returns a concrete Agent.
func NewLLMProvider(ctx context.Context, provider string, model string, promptPrefix string, gen GenerationOptions) (Agent, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAILLM(model, promptPrefix, gen), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, promptPrefix, gen)
	case "ollama":
		return NewOllamaLLM(model, promptPrefix, gen)
	case "anthropic", "claude":
		return NewAnthropicLLM(model, promptPrefix, gen), nil
	case "dummy":
		return NewDummyLLM(promptPrefix), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// ProviderForModel infers the provider that serves a model id.
// An explicit "provider:model" prefix always wins; otherwise well-known
// model families are matched and anything else goes to fallback.
func ProviderForModel(model, fallback string) (provider string, name string) {
	model = strings.TrimSpace(model)
	if p, m, ok := strings.Cut(model, ":"); ok && isKnownProvider(p) {
		return strings.ToLower(p), strings.TrimSpace(m)
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return "anthropic", model
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "chatgpt"),
		strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return "openai", model
	case strings.HasPrefix(lower, "gemini"):
		return "gemini", model
	default:
		return fallback, model
	}
}

func isKnownProvider(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "openai", "gemini", "google", "ollama", "anthropic", "claude", "dummy":
		return true
	}
	return false
}
