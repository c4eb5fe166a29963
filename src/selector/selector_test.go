package selector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
	"github.com/Protocol-Lattice/go-companion/src/persona"
)

// scriptedModel returns its replies in order and records every prompt.
type scriptedModel struct {
	replies []string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (any, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type countingCatalog struct {
	*persona.Catalog
	lookups int
}

func (c *countingCatalog) Lookup(name string) (persona.Persona, error) {
	c.lookups++
	return c.Catalog.Lookup(name)
}

func testCatalog(t *testing.T) *countingCatalog {
	t.Helper()
	cat, err := persona.NewCatalog([]persona.Persona{
		{Name: "Coach Mira", Model: "claude-3-5-sonnet", Temperature: 0.7, UsageGuidance: "fitness and sleep"},
		{Name: "Stoic Sage", Model: "claude-3-5-haiku", Temperature: 0.3, UsageGuidance: "reflection"},
	})
	require.NoError(t, err)
	return &countingCatalog{Catalog: cat}
}

func turns(contents ...string) []conversation.Turn {
	out := make([]conversation.Turn, len(contents))
	for i, c := range contents {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		out[i] = conversation.Turn{Role: role, Content: c}
	}
	return out
}

func newSelector(t *testing.T, model *scriptedModel, cat Catalog) *Selector {
	t.Helper()
	s, err := New(Options{Model: model, Catalog: cat})
	require.NoError(t, err)
	return s
}

func TestParseSwitchDecision(t *testing.T) {
	cases := []struct {
		raw  string
		want SwitchDecision
	}{
		{"TRUE\nuser asks about sleep", SwitchDecision{Switch: true, Justification: "user asks about sleep"}},
		{"  false \n same topic \n still", SwitchDecision{Switch: false, Justification: "same topic \n still"}},
		{"True", SwitchDecision{Switch: true, Justification: "No explanation provided."}},
		{"", SwitchDecision{Switch: false, Anomalous: true,
			Justification: `unparseable switch decision "", keeping current persona: No explanation provided.`}},
		{"Maybe\nhard to say", SwitchDecision{Switch: false, Anomalous: true,
			Justification: `unparseable switch decision "Maybe", keeping current persona: hard to say`}},
		{"TRUE because sleep", SwitchDecision{Switch: false, Anomalous: true,
			Justification: `unparseable switch decision "TRUE because sleep", keeping current persona: No explanation provided.`}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseSwitchDecision(tc.raw), "raw=%q", tc.raw)
	}
}

func TestPersonaStickiness(t *testing.T) {
	cat := testCatalog(t)
	active, _ := cat.Catalog.Lookup("Stoic Sage")
	model := &scriptedModel{replies: []string{"FALSE\nstill reflecting"}}
	s := newSelector(t, model, cat)

	got, why, err := s.Select(context.Background(), turns("I feel stuck", "tell me more", "still stuck"), &active)
	require.NoError(t, err)
	assert.Equal(t, active, got)
	assert.Equal(t, "still reflecting", why)
	assert.Zero(t, cat.lookups, "kept persona must not hit the catalog")
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Stoic Sage")
	assert.Contains(t, model.prompts[0], `"still stuck"`)
}

func TestAnomalousDecisionKeepsPersona(t *testing.T) {
	cat := testCatalog(t)
	active, _ := cat.Catalog.Lookup("Coach Mira")
	s := newSelector(t, &scriptedModel{replies: []string{"I am not sure"}}, cat)

	got, why, err := s.Select(context.Background(), turns("hi"), &active)
	require.NoError(t, err)
	assert.Equal(t, "Coach Mira", got.Name)
	assert.Contains(t, why, "unparseable")
	assert.Zero(t, cat.lookups)
}

func TestPersonaSwitch(t *testing.T) {
	cat := testCatalog(t)
	active, _ := cat.Catalog.Lookup("Stoic Sage")
	model := &scriptedModel{replies: []string{
		"TRUE\nthe user moved to training",
		"Coach Mira\nbest for workouts",
	}}
	s := newSelector(t, model, cat)

	got, why, err := s.Select(context.Background(), turns("how hard should I train today?"), &active)
	require.NoError(t, err)
	assert.Equal(t, "Coach Mira", got.Name)
	assert.Equal(t, "best for workouts", why)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "- Coach Mira: fitness and sleep")
	assert.Contains(t, model.prompts[1], `"content": "how hard should I train today?"`)
}

func TestNoActivePersonaGoesStraightToChooser(t *testing.T) {
	cat := testCatalog(t)
	model := &scriptedModel{replies: []string{"**stoic sage**"}}
	s := newSelector(t, model, cat)

	got, why, err := s.Select(context.Background(), turns("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Stoic Sage", got.Name)
	assert.Equal(t, "No explanation provided.", why)
	assert.Len(t, model.prompts, 1)
}

func TestUnknownPersonaHardFails(t *testing.T) {
	cat := testCatalog(t)
	active, _ := cat.Catalog.Lookup("Stoic Sage")
	model := &scriptedModel{replies: []string{"TRUE\nswitch", "Dr. Nobody\nmade up"}}
	s := newSelector(t, model, cat)

	_, _, err := s.Select(context.Background(), turns("hello"), &active)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPersona)
	assert.ErrorIs(t, err, persona.ErrUnknownPersona)
}

func TestSizeGuardRunsBeforeAnyModelCall(t *testing.T) {
	cat := testCatalog(t)
	model := &scriptedModel{replies: []string{"Coach Mira"}}
	s := newSelector(t, model, cat)

	huge := strings.Repeat("word ", 10001)
	_, _, err := s.Select(context.Background(), turns(huge), nil)
	require.ErrorIs(t, err, ErrHistoryTooLarge)

	active, _ := cat.Catalog.Lookup("Coach Mira")
	_, _, err = s.Select(context.Background(), turns(huge), &active)
	require.ErrorIs(t, err, ErrHistoryTooLarge)

	assert.Empty(t, model.prompts)
}

// historyOfWords builds a one-turn history whose JSON rendering is exactly n
// words long.
func historyOfWords(t *testing.T, n int) []conversation.Turn {
	t.Helper()
	probe, err := conversation.MessagesJSON(conversation.Project(turns("x")))
	require.NoError(t, err)
	overhead := conversation.ApproxSize(probe) - 1

	h := turns(strings.TrimSpace(strings.Repeat("word ", n-overhead)))
	rendered, err := conversation.MessagesJSON(conversation.Project(h))
	require.NoError(t, err)
	require.Equal(t, n, conversation.ApproxSize(rendered))
	return h
}

func TestSizeGuardBoundary(t *testing.T) {
	cat := testCatalog(t)

	model := &scriptedModel{replies: []string{"Coach Mira"}}
	p, _, err := newSelector(t, model, cat).Select(context.Background(), historyOfWords(t, DefaultMaxHistoryWords), nil)
	require.NoError(t, err, "a history of exactly the limit is accepted")
	assert.Equal(t, "Coach Mira", p.Name)
	assert.Len(t, model.prompts, 1)

	model = &scriptedModel{replies: []string{"Coach Mira"}}
	_, _, err = newSelector(t, model, cat).Select(context.Background(), historyOfWords(t, DefaultMaxHistoryWords+1), nil)
	require.ErrorIs(t, err, ErrHistoryTooLarge)
	assert.Empty(t, model.prompts)
}

func TestSizeGuardCustomLimit(t *testing.T) {
	cat := testCatalog(t)
	model := &scriptedModel{replies: []string{"Coach Mira"}}
	s, err := New(Options{Model: model, Catalog: cat, MaxHistoryWords: 20})
	require.NoError(t, err)

	_, _, err = s.Select(context.Background(), turns("one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen"), nil)
	require.ErrorIs(t, err, ErrHistoryTooLarge)
}

func TestModelErrorPropagates(t *testing.T) {
	cat := testCatalog(t)
	s := newSelector(t, &scriptedModel{err: errors.New("overloaded")}, cat)

	_, _, err := s.Select(context.Background(), turns("hi"), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownPersona)
}
