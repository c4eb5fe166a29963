// Package selector decides which persona answers the next turn: keep the
// active one unless a classifier says to switch, otherwise let a chooser
// model pick from the catalog.
package selector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/persona"
)

// DefaultMaxHistoryWords bounds the serialized history sent to the chooser.
const DefaultMaxHistoryWords = 10000

// Catalog is the part of persona.Catalog the selector needs.
type Catalog interface {
	Lookup(name string) (persona.Persona, error)
	Summary() string
}

type Options struct {
	// Model runs both the switch classifier and the chooser.
	Model           models.Agent
	Catalog         Catalog
	MaxHistoryWords int
	Logger          *zap.Logger
}

type Selector struct {
	model    models.Agent
	catalog  Catalog
	maxWords int
	log      *zap.Logger
}

func New(opts Options) (*Selector, error) {
	if opts.Model == nil {
		return nil, errors.New("selector: model is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("selector: catalog is required")
	}
	if opts.MaxHistoryWords <= 0 {
		opts.MaxHistoryWords = DefaultMaxHistoryWords
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Selector{
		model:    opts.Model,
		catalog:  opts.Catalog,
		maxWords: opts.MaxHistoryWords,
		log:      opts.Logger,
	}, nil
}

// Select returns the persona for the next reply and a justification.
//
// The history guard runs first so an oversized history never reaches a
// model. With an active persona the classifier decides keep or switch; a
// kept persona is returned as is, without touching the catalog. Otherwise
// the chooser names a persona, and a name the catalog does not know is an
// error wrapping ErrUnknownPersona.
func (s *Selector) Select(ctx context.Context, turns []conversation.Turn, active *persona.Persona) (persona.Persona, string, error) {
	history, err := conversation.MessagesJSON(conversation.Project(turns))
	if err != nil {
		return persona.Persona{}, "", fmt.Errorf("selector: serialize history: %w", err)
	}
	if words := conversation.ApproxSize(history); words > s.maxWords {
		return persona.Persona{}, "", fmt.Errorf("%w: %d words, limit %d", ErrHistoryTooLarge, words, s.maxWords)
	}

	if active != nil {
		raw, err := models.GenerateText(ctx, s.model, switchPrompt(conversation.LastUserMessage(turns), *active))
		if err != nil {
			return persona.Persona{}, "", fmt.Errorf("selector: switch classifier: %w", err)
		}
		decision := ParseSwitchDecision(raw)
		if decision.Anomalous {
			s.log.Warn("switch classifier returned no decision", zap.String("persona", active.Name), zap.String("justification", decision.Justification))
		}
		if !decision.Switch {
			s.log.Debug("persona kept", zap.String("persona", active.Name), zap.String("justification", decision.Justification))
			return *active, decision.Justification, nil
		}
		s.log.Debug("persona switch requested", zap.String("from", active.Name), zap.String("justification", decision.Justification))
	}

	raw, err := models.GenerateText(ctx, s.model, choosePrompt(history, s.catalog.Summary()))
	if err != nil {
		return persona.Persona{}, "", fmt.Errorf("selector: chooser: %w", err)
	}
	name, reasoning := parseChoice(raw)
	chosen, err := s.catalog.Lookup(name)
	if err != nil {
		return persona.Persona{}, "", fmt.Errorf("%w: %q: %w", ErrUnknownPersona, name, err)
	}
	s.log.Debug("persona selected", zap.String("persona", chosen.Name), zap.String("justification", reasoning))
	return chosen, reasoning, nil
}
