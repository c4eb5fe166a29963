package models

import (
	"context"
	"fmt"
	"strings"
)

// Agent is a chat-completion client: one prompt in, one completion out.
type Agent interface {
	Generate(context.Context, string) (any, error)
}

// GenerationOptions carries per-client sampling settings.
type GenerationOptions struct {
	// Temperature is sent whenever it is non-nil, including 0. Nil leaves
	// the provider default.
	Temperature *float64
	MaxTokens   int
}

// Temperature returns a pointer for GenerationOptions.Temperature.
func Temperature(t float64) *float64 { return &t }

// GenerateText calls the agent and flattens the completion to trimmed text.
func GenerateText(ctx context.Context, agent Agent, prompt string) (string, error) {
	out, err := agent.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case fmt.Stringer:
		return strings.TrimSpace(v.String()), nil
	default:
		return strings.TrimSpace(fmt.Sprint(v)), nil
	}
}
