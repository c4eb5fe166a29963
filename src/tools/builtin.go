package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultNumDays = 7
	maxNumDays     = 90
)

// FitnessSource returns wearable records of one kind for the last days.
type FitnessSource interface {
	Records(ctx context.Context, kind string, days int) (any, error)
}

// HabitSource returns the habit checklist for the last n days.
type HabitSource interface {
	Days(ctx context.Context, n int) (any, error)
}

// JournalSource returns rendered journal entries from the last days.
type JournalSource interface {
	Entries(ctx context.Context, days int) (string, error)
}

// ProfileSource returns the personality profile for a user.
type ProfileSource interface {
	Profile(ctx context.Context, ownerID string) (string, error)
}

// FitnessKinds lists the record kinds fitness_history understands.
var FitnessKinds = []string{"recovery", "workout", "sleep", "cycle"}

func numDaysSchema() map[string]any {
	return map[string]any{
		"type":        "integer",
		"minimum":     1,
		"maximum":     maxNumDays,
		"default":     defaultNumDays,
		"description": "How many days back from today to include.",
	}
}

// FitnessHistory is the fitness_history tool.
type FitnessHistory struct {
	Source FitnessSource
}

func (t *FitnessHistory) Spec() ToolSpec {
	kinds := make([]any, len(FitnessKinds))
	for i, k := range FitnessKinds {
		kinds[i] = k
	}
	return ToolSpec{
		Name: "fitness_history",
		Description: "Wearable fitness data. kind=recovery gives recovery score, resting heart rate and HRV; " +
			"kind=sleep gives sleep stages and performance; kind=workout gives strain, heart rate and calories per workout; " +
			"kind=cycle gives daily strain and energy.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": map[string]any{
					"type": "string",
					"enum": kinds,
				},
				"num_days": numDaysSchema(),
			},
			"required": []any{"kind"},
		},
	}
}

func (t *FitnessHistory) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	kind, err := StringArg(req.Arguments, "kind")
	if err != nil {
		return ToolResponse{}, err
	}
	days, err := IntArg(req.Arguments, "num_days", defaultNumDays)
	if err != nil {
		return ToolResponse{}, err
	}
	records, err := t.Source.Records(ctx, strings.ToLower(kind), days)
	if err != nil {
		return ToolResponse{}, err
	}
	return renderJSON(records)
}

// HabitChecklist is the habit_checklist tool.
type HabitChecklist struct {
	Source HabitSource
}

func (t *HabitChecklist) Spec() ToolSpec {
	return ToolSpec{
		Name:        "habit_checklist",
		Description: "Daily habit checklist: which habits the user ticked off on each of the last days.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"num_days": numDaysSchema(),
			},
		},
	}
}

func (t *HabitChecklist) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	days, err := IntArg(req.Arguments, "num_days", defaultNumDays)
	if err != nil {
		return ToolResponse{}, err
	}
	data, err := t.Source.Days(ctx, days)
	if err != nil {
		return ToolResponse{}, err
	}
	return renderJSON(data)
}

// JournalEntries is the journal_entries tool.
type JournalEntries struct {
	Source JournalSource
}

func (t *JournalEntries) Spec() ToolSpec {
	return ToolSpec{
		Name:        "journal_entries",
		Description: "Morning journaling entries: the user's answers to reflective questions, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"num_days": numDaysSchema(),
			},
		},
	}
}

func (t *JournalEntries) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	days, err := IntArg(req.Arguments, "num_days", defaultNumDays)
	if err != nil {
		return ToolResponse{}, err
	}
	text, err := t.Source.Entries(ctx, days)
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{Content: text}, nil
}

// PersonalityProfile is the personality_profile tool.
type PersonalityProfile struct {
	Source ProfileSource
}

func (t *PersonalityProfile) Spec() ToolSpec {
	return ToolSpec{
		Name:        "personality_profile",
		Description: "The user's personality assessment: trait scores, percentiles and what they imply.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *PersonalityProfile) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	text, err := t.Source.Profile(ctx, req.OwnerID)
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{Content: text}, nil
}

// Sources bundles the data backends for Builtin. Nil sources leave their
// tool out of the registry.
type Sources struct {
	Fitness FitnessSource
	Habits  HabitSource
	Journal JournalSource
	Profile ProfileSource
}

// Builtin returns a registry holding one tool per configured source.
func Builtin(src Sources) (*Registry, error) {
	var list []Tool
	if src.Fitness != nil {
		list = append(list, &FitnessHistory{Source: src.Fitness})
	}
	if src.Habits != nil {
		list = append(list, &HabitChecklist{Source: src.Habits})
	}
	if src.Journal != nil {
		list = append(list, &JournalEntries{Source: src.Journal})
	}
	if src.Profile != nil {
		list = append(list, &PersonalityProfile{Source: src.Profile})
	}
	return NewRegistry(list...)
}

func renderJSON(v any) (ToolResponse, error) {
	if s, ok := v.(string); ok {
		return ToolResponse{Content: s}, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolResponse{}, fmt.Errorf("encode tool output: %w", err)
	}
	return ToolResponse{Content: string(b)}, nil
}
