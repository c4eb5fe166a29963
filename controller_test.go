package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
	"github.com/Protocol-Lattice/go-companion/src/conversation/store"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/orchestrator"
	"github.com/Protocol-Lattice/go-companion/src/persona"
	"github.com/Protocol-Lattice/go-companion/src/selector"
)

var (
	coach = persona.Persona{Name: "Coach Mira", Model: "claude-3-5-sonnet", Temperature: 0.7, PersonalityPrompt: "You are a fitness coach.", Tone: "upbeat", Version: 2}
	sage  = persona.Persona{Name: "Stoic Sage", Model: "gpt-4o", Temperature: 0.3, PersonalityPrompt: "You are a stoic.", Tone: "calm", Version: 1}
)

type stubSelector struct {
	mu      sync.Mutex
	pick    persona.Persona
	err     error
	actives []*persona.Persona
	lens    []int
}

func (s *stubSelector) Select(_ context.Context, turns []conversation.Turn, active *persona.Persona) (persona.Persona, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actives = append(s.actives, active)
	s.lens = append(s.lens, len(turns))
	if s.err != nil {
		return persona.Persona{}, "", s.err
	}
	return s.pick, "fits the question", nil
}

type stubTools struct {
	aug orchestrator.Augmentation
}

func (s stubTools) Gather(context.Context, string, string) orchestrator.Augmentation { return s.aug }

type agentFunc func(ctx context.Context, prompt string) (any, error)

func (f agentFunc) Generate(ctx context.Context, prompt string) (any, error) { return f(ctx, prompt) }

type replyModels struct {
	mu      sync.Mutex
	prompts []string
	models  []string
	reply   string
	err     error
}

func (r *replyModels) ForModel(_ context.Context, model string, temperature float64) (models.Agent, error) {
	r.mu.Lock()
	r.models = append(r.models, fmt.Sprintf("%s@%v", model, temperature))
	r.mu.Unlock()
	return agentFunc(func(_ context.Context, prompt string) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.prompts = append(r.prompts, prompt)
		if r.err != nil {
			return nil, r.err
		}
		return "  " + r.reply + "\n", nil
	}), nil
}

type recordingStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	saves   []*conversation.Conversation
	saveErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (r *recordingStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	r.mu.Lock()
	r.saves = append(r.saves, conv)
	r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.MemoryStore.Save(ctx, conv)
}

func (r *recordingStore) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

type fixture struct {
	ctrl   *Controller
	sel    *stubSelector
	models *replyModels
	store  *recordingStore
	states []State
	clock  time.Time
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		sel:    &stubSelector{pick: coach},
		models: &replyModels{reply: "Nice work today!"},
		store:  newRecordingStore(),
		clock:  time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	catalog, err := persona.NewCatalog([]persona.Persona{coach, sage})
	require.NoError(t, err)

	var mu sync.Mutex
	opts := Options{
		Selector: f.sel,
		Tools:    stubTools{},
		Models:   f.models,
		Store:    f.store,
		Catalog:  catalog,
		OnState: func(_ string, s State) {
			mu.Lock()
			f.states = append(f.states, s)
			mu.Unlock()
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl, err := New(opts)
	require.NoError(t, err)
	ctrl.now = func() time.Time { return f.clock }
	f.ctrl = ctrl
	return f
}

func TestNewValidatesCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Selector: &stubSelector{}, Tools: stubTools{}, Models: &replyModels{}})
	assert.ErrorContains(t, err, "conversation store")
}

func TestHandleMessageRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, reply.State)
	assert.Equal(t, "Nice work today!", reply.Text)
	assert.Equal(t, "Coach Mira", reply.Persona)
	assert.Nil(t, reply.Cause)

	require.Equal(t, 1, f.store.saveCount())
	saved := f.store.saves[0]
	require.Len(t, saved.Turns, 2)
	assert.Equal(t, conversation.RoleUser, saved.Turns[0].Role)
	assert.Equal(t, "hello", saved.Turns[0].Content)
	assert.Equal(t, conversation.RoleAssistant, saved.Turns[1].Role)
	assert.Equal(t, "Nice work today!", saved.Turns[1].Content)
	assert.Equal(t, "Coach Mira", saved.Turns[1].PersonaUsed)
	assert.Equal(t, 2, saved.Turns[1].PersonaVersion)
	assert.Equal(t, reply.ConversationID, saved.ID)
	assert.Equal(t, "chat-1", saved.OwnerID)
	assert.Equal(t, conversation.NewConversationID("chat-1", f.clock), saved.ID)

	assert.Equal(t, []State{StateIdle, StateAwaitingPersona, StateAwaitingTools, StateAwaitingReply, StatePersisted}, f.states)
	assert.Equal(t, []string{"claude-3-5-sonnet@0.7"}, f.models.models)

	active, ok := f.ctrl.ActivePersona("chat-1")
	require.True(t, ok)
	assert.Equal(t, "Coach Mira", active.Name)
}

func TestHandleMessagePassesActivePersonaToSelector(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ctrl.HandleMessage(ctx, "chat-1", "hello")
	require.NoError(t, err)
	_, err = f.ctrl.HandleMessage(ctx, "chat-1", "how did I sleep?")
	require.NoError(t, err)

	require.Len(t, f.sel.actives, 2)
	assert.Nil(t, f.sel.actives[0])
	require.NotNil(t, f.sel.actives[1])
	assert.Equal(t, "Coach Mira", f.sel.actives[1].Name)
	assert.Equal(t, []int{1, 3}, f.sel.lens, "selector sees the window including the new user turn")

	require.Equal(t, 2, f.store.saveCount())
	assert.Len(t, f.store.saves[1].Turns, 4)
}

func TestReplyPromptCarriesPersonaToolsAndHistory(t *testing.T) {
	aug := orchestrator.Augmentation{
		Calls:   []orchestrator.ToolCall{{ToolName: "fitness_history", Params: map[string]any{"kind": "sleep"}}},
		Results: []orchestrator.ToolResult{{ToolName: "fitness_history", Params: map[string]any{"kind": "sleep"}, Output: "slept 8h"}},
	}
	f := newFixture(t, func(o *Options) { o.Tools = stubTools{aug: aug} })

	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "how did I sleep?")
	require.NoError(t, err)
	assert.Equal(t, []string{"fitness_history"}, reply.Tools)

	require.Len(t, f.models.prompts, 1)
	prompt := f.models.prompts[0]
	assert.Contains(t, prompt, "You are a fitness coach.")
	assert.Contains(t, prompt, "Tone: upbeat")
	assert.Contains(t, prompt, "slept 8h")
	assert.Contains(t, prompt, `"content": "how did I sleep?"`)
}

func TestReplyPromptWithoutTools(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hi")
	require.NoError(t, err)
	assert.Contains(t, f.models.prompts[0], "(none)")
}

func TestSelectorErrorsFailTheTurn(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown persona", fmt.Errorf("%w: %q", selector.ErrUnknownPersona, "Dr. Nobody"), msgUnknownPersona},
		{"history too large", fmt.Errorf("%w: 12000 words", selector.ErrHistoryTooLarge), msgHistoryTooLarge},
		{"transport", errors.New("connection reset"), msgGenericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.sel.err = tt.err

			reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
			require.NoError(t, err)
			assert.Equal(t, StateFailed, reply.State)
			assert.Equal(t, tt.want, reply.Text)
			assert.ErrorIs(t, reply.Cause, tt.err)
			assert.Empty(t, f.models.prompts, "no reply generation after a selector failure")

			require.Equal(t, 1, f.store.saveCount())
			turns := f.store.saves[0].Turns
			require.Len(t, turns, 2)
			assert.Equal(t, conversation.RoleAssistant, turns[1].Role)
			assert.Equal(t, tt.want, turns[1].Content)
			assert.Empty(t, turns[1].PersonaUsed)
			assert.Equal(t, StateFailed, f.states[len(f.states)-1])

			_, ok := f.ctrl.ActivePersona("chat-1")
			assert.False(t, ok)
		})
	}
}

func TestFailedTurnLeavesConversationAppendable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.sel.err = selector.ErrUnknownPersona
	_, err := f.ctrl.HandleMessage(ctx, "chat-1", "hello")
	require.NoError(t, err)

	f.sel.err = nil
	reply, err := f.ctrl.HandleMessage(ctx, "chat-1", "try again")
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, reply.State)

	require.Equal(t, 2, f.store.saveCount())
	turns := f.store.saves[1].Turns
	require.Len(t, turns, 4)
	roles := []conversation.Role{turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role}
	assert.Equal(t, []conversation.Role{"user", "assistant", "user", "assistant"}, roles)
}

func TestReplyModelErrorFailsTheTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.models.err = errors.New("429 rate limited")

	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, reply.State)
	assert.Equal(t, msgGenericFailure, reply.Text)
	assert.ErrorContains(t, reply.Cause, "429")
	assert.Equal(t, 1, f.store.saveCount())
}

func TestEmptyReplyFailsTheTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.models.reply = ""

	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	assert.ErrorIs(t, reply.Cause, ErrEmptyReply)
}

func TestFactoryErrorFailsTheTurn(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Models = models.FactoryFunc(func(context.Context, string, float64) (models.Agent, error) {
			return nil, errors.New("missing api key")
		})
	})
	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, reply.State)
	assert.ErrorContains(t, reply.Cause, "missing api key")
}

func TestSaveErrorIsReturned(t *testing.T) {
	f := newFixture(t, nil)
	f.store.saveErr = errors.New("disk full")

	reply, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "hello")
	require.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, "Nice work today!", reply.Text)
	assert.Equal(t, StateFailed, reply.State)
	assert.Equal(t, 1, f.store.saveCount())
}

func TestEmptyMessageIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ctrl.HandleMessage(context.Background(), "chat-1", "  \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, f.store.saveCount())
	assert.Empty(t, f.ctrl.Owners())
}

func TestWindowBudgetAppliesToTurns(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.WindowBudget = 6 })
	f.models.reply = "one two three"
	ctx := context.Background()

	_, err := f.ctrl.HandleMessage(ctx, "chat-1", "a b c")
	require.NoError(t, err)
	_, err = f.ctrl.HandleMessage(ctx, "chat-1", "d e")
	require.NoError(t, err)

	turns := f.store.saves[1].Turns
	total := 0
	for _, tr := range turns {
		total += conversation.ApproxSize(tr.Content)
	}
	assert.LessOrEqual(t, total, 6)
	assert.Equal(t, "d e", turns[0].Content)
	assert.Len(t, turns, 2)
}

func TestResumeRestoresWindowAndPersona(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	stored := &conversation.Conversation{
		ID:        "conv-42",
		OwnerID:   "chat-1",
		CreatedAt: start,
		Turns: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "I feel stuck", Timestamp: start},
			{Role: conversation.RoleAssistant, Content: "Breathe.", PersonaUsed: "stoic sage", PersonaVersion: 1, Timestamp: start.Add(time.Second)},
		},
	}
	require.NoError(t, f.store.MemoryStore.Save(ctx, stored))

	conv, err := f.ctrl.Resume(ctx, "chat-1", "conv-42")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 2)
	assert.Equal(t, start.Add(time.Second), conv.Turns[1].Timestamp)

	active, ok := f.ctrl.ActivePersona("chat-1")
	require.True(t, ok)
	assert.Equal(t, "Stoic Sage", active.Name)

	reply, err := f.ctrl.HandleMessage(ctx, "chat-1", "still stuck")
	require.NoError(t, err)
	assert.Equal(t, "conv-42", reply.ConversationID)
	require.NotNil(t, f.sel.actives[0])
	assert.Equal(t, "Stoic Sage", f.sel.actives[0].Name)
	assert.Len(t, f.store.saves[0].Turns, 4)
}

func TestResumeUnknownConversation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ctrl.Resume(context.Background(), "chat-1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetStartsNewConversationAndArchives(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ArchiveOnReset = true })
	ctx := context.Background()

	first, err := f.ctrl.HandleMessage(ctx, "chat-1", "hello")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Reset(ctx, "chat-1"))
	_, ok := f.ctrl.ConversationID("chat-1")
	assert.False(t, ok)

	archived, ok := f.store.Archived(first.ConversationID)
	require.True(t, ok)
	assert.Len(t, archived.Turns, 2)

	f.clock = f.clock.Add(time.Minute)
	second, err := f.ctrl.HandleMessage(ctx, "chat-1", "hello again")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Nil(t, f.sel.actives[1], "a reset conversation has no active persona")

	assert.NoError(t, f.ctrl.Reset(ctx, "nobody"))
}

func TestTurnsOfOneOwnerAreSerialized(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.WindowBudget = 100000 })
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ctrl.HandleMessage(ctx, "chat-1", fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ctrl.HandleMessage(ctx, fmt.Sprintf("other-%d", i), "hi")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	id, ok := f.ctrl.ConversationID("chat-1")
	require.True(t, ok)
	conv, err := f.store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2*n)
	for i, tr := range conv.Turns {
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, tr.Role)
			assert.True(t, strings.HasPrefix(tr.Content, "message "))
		} else {
			assert.Equal(t, conversation.RoleAssistant, tr.Role)
		}
	}
	assert.Equal(t, 2*n, f.store.saveCount())
	assert.Len(t, f.ctrl.Owners(), n+1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_persona", StateAwaitingPersona.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateAwaitingReply.Terminal())
	assert.Equal(t, "unknown", State(99).String())
}
