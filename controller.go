// Package companion runs the per-turn pipeline of the personal companion
// bot: record the user's message, pick a persona, gather personal data with
// tools, generate the persona's reply and persist the conversation.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
	"github.com/Protocol-Lattice/go-companion/src/conversation/store"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/orchestrator"
	"github.com/Protocol-Lattice/go-companion/src/persona"
)

// PersonaSelector picks the persona for the next reply.
type PersonaSelector interface {
	Select(ctx context.Context, turns []conversation.Turn, active *persona.Persona) (persona.Persona, string, error)
}

// ToolGatherer collects the tool augmentation for a message. It never fails.
type ToolGatherer interface {
	Gather(ctx context.Context, ownerID, query string) orchestrator.Augmentation
}

// PersonaLookup resolves a stored persona name when a conversation is resumed.
type PersonaLookup interface {
	Lookup(name string) (persona.Persona, error)
}

// Options configure a Controller.
type Options struct {
	Selector PersonaSelector
	Tools    ToolGatherer
	Models   models.Factory
	Store    store.Store
	Catalog  PersonaLookup

	// WindowBudget is the context window size in words.
	WindowBudget int
	// ArchiveOnReset copies a conversation to the archive before Reset drops it.
	ArchiveOnReset bool
	// OnState, when set, observes every state a turn enters.
	OnState func(ownerID string, s State)
	Logger  *zap.Logger
}

// Reply is the outcome of one processed message.
type Reply struct {
	ConversationID string
	Text           string
	Persona        string
	Justification  string
	Tools          []string
	State          State
	// Cause is the error that failed the turn; nil when State is StatePersisted.
	Cause error
}

// Controller owns the live sessions and runs turns against them. Turns of
// one owner are serialized; different owners run in parallel.
type Controller struct {
	selector PersonaSelector
	tools    ToolGatherer
	models   models.Factory
	store    store.Store
	catalog  PersonaLookup

	archiveOnReset bool
	onState        func(string, State)
	log            *zap.Logger
	now            func() time.Time
	sessions       *sessionManager
}

// New creates a Controller with the provided options.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Selector == nil:
		return nil, errors.New("controller requires a persona selector")
	case opts.Tools == nil:
		return nil, errors.New("controller requires a tool orchestrator")
	case opts.Models == nil:
		return nil, errors.New("controller requires a model factory")
	case opts.Store == nil:
		return nil, errors.New("controller requires a conversation store")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		selector:       opts.Selector,
		tools:          opts.Tools,
		models:         opts.Models,
		store:          opts.Store,
		catalog:        opts.Catalog,
		archiveOnReset: opts.ArchiveOnReset,
		onState:        opts.OnState,
		log:            log,
		now:            time.Now,
	}
	c.sessions = newSessionManager(opts.WindowBudget, func() time.Time { return c.now() })
	return c, nil
}

// HandleMessage runs one turn for ownerID. A turn that fails after the user
// message was recorded still returns a Reply: its Text is the apology that
// was stored as the assistant turn and Cause holds the underlying error. The
// returned error is non-nil only for an empty message or a failed save.
func (c *Controller) HandleMessage(ctx context.Context, ownerID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	s := c.sessions.getOrCreate(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	started := c.now()
	reply := Reply{ConversationID: s.id}
	c.enter(s, StateIdle)

	s.window.Append(conversation.RoleUser, text, "", 0)
	c.enter(s, StateAwaitingPersona)

	chosen, justification, err := c.selector.Select(ctx, s.window.Turns(), s.window.ActivePersona())
	if err != nil {
		return c.fail(ctx, s, reply, fmt.Errorf("select persona: %w", err))
	}
	reply.Persona = chosen.Name
	reply.Justification = justification
	c.enter(s, StateAwaitingTools)

	aug := c.tools.Gather(ctx, s.ownerID, text)
	for _, call := range aug.Calls {
		reply.Tools = append(reply.Tools, call.ToolName)
	}
	c.enter(s, StateAwaitingReply)

	answer, err := c.generate(ctx, s, chosen, aug)
	if err != nil {
		return c.fail(ctx, s, reply, err)
	}

	s.window.Append(conversation.RoleAssistant, answer, chosen.Name, chosen.Version)
	active := chosen
	s.window.SetActivePersona(&active)
	reply.Text = answer

	if err := c.store.Save(ctx, s.snapshot()); err != nil {
		c.log.Error("conversation save failed", zap.String("conversation_id", s.id), zap.Error(err))
		reply.State = StateFailed
		reply.Cause = err
		c.enter(s, StateFailed)
		return reply, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	reply.State = StatePersisted
	c.enter(s, StatePersisted)

	c.log.Info("turn persisted",
		zap.String("conversation_id", s.id),
		zap.String("persona", chosen.Name),
		zap.Strings("tools", reply.Tools),
		zap.Int("window_turns", s.window.Len()),
		zap.Int("window_words", s.window.Size()),
		zap.Duration("elapsed", c.now().Sub(started)),
	)
	return reply, nil
}

func (c *Controller) generate(ctx context.Context, s *session, p persona.Persona, aug orchestrator.Augmentation) (string, error) {
	history, err := s.window.SerializeJSON()
	if err != nil {
		return "", fmt.Errorf("serialize window: %w", err)
	}
	model, err := c.models.ForModel(ctx, p.Model, p.Temperature)
	if err != nil {
		return "", fmt.Errorf("reply model %s: %w", p.Model, err)
	}
	answer, err := models.GenerateText(ctx, model, buildReplyPrompt(p, aug, history))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if answer == "" {
		return "", ErrEmptyReply
	}
	return answer, nil
}

// fail records the apology as the assistant turn so the conversation stays
// well formed, then persists it.
func (c *Controller) fail(ctx context.Context, s *session, reply Reply, cause error) (Reply, error) {
	c.log.Error("turn failed", zap.String("conversation_id", s.id), zap.Error(cause))

	msg := failureMessage(cause)
	s.window.Append(conversation.RoleAssistant, msg, "", 0)
	reply.Text = msg
	reply.State = StateFailed
	reply.Cause = cause
	c.enter(s, StateFailed)

	if err := c.store.Save(ctx, s.snapshot()); err != nil {
		c.log.Error("conversation save failed", zap.String("conversation_id", s.id), zap.Error(err))
		return reply, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return reply, nil
}

func (c *Controller) enter(s *session, st State) {
	s.state = st
	if c.onState != nil {
		c.onState(s.ownerID, st)
	}
}

// Resume replaces ownerID's live session with a stored conversation. The
// turns are replayed through the window, and the active persona is taken
// from the most recent assistant turn that names one.
func (c *Controller) Resume(ctx context.Context, ownerID, conversationID string) (*conversation.Conversation, error) {
	conv, err := c.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", conversationID, err)
	}
	ownerID = strings.TrimSpace(ownerID)
	if conv.OwnerID != "" && conv.OwnerID != ownerID {
		c.log.Warn("resuming conversation of another owner",
			zap.String("conversation_id", conv.ID), zap.String("owner", conv.OwnerID), zap.String("as", ownerID))
	}

	s := &session{
		id:        conv.ID,
		ownerID:   ownerID,
		createdAt: conv.CreatedAt,
		window:    conversation.NewWindow(c.sessions.budget),
	}
	for _, t := range conv.Turns {
		s.window.Restore(t)
	}
	if name := lastPersona(conv.Turns); name != "" && c.catalog != nil {
		if p, err := c.catalog.Lookup(name); err == nil {
			s.window.SetActivePersona(&p)
		} else {
			c.log.Warn("stored persona no longer in catalog", zap.String("persona", name), zap.Error(err))
		}
	}
	c.sessions.put(s)
	return s.snapshot(), nil
}

func lastPersona(turns []conversation.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == conversation.RoleAssistant && turns[i].PersonaUsed != "" {
			return turns[i].PersonaUsed
		}
	}
	return ""
}

// Reset drops ownerID's live session so the next message starts a new
// conversation. It waits for an in-flight turn of that owner to finish.
func (c *Controller) Reset(ctx context.Context, ownerID string) error {
	s, ok := c.sessions.remove(ownerID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.archiveOnReset || s.window.Len() == 0 {
		return nil
	}
	if err := c.store.Archive(ctx, s.id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("archive %s: %w", s.id, err)
	}
	c.log.Info("conversation archived", zap.String("conversation_id", s.id))
	return nil
}

// ConversationID returns the id of ownerID's live conversation, if any.
func (c *Controller) ConversationID(ownerID string) (string, bool) {
	s, ok := c.sessions.get(ownerID)
	if !ok {
		return "", false
	}
	return s.id, true
}

// ActivePersona returns the persona that answered ownerID's last turn.
func (c *Controller) ActivePersona(ownerID string) (persona.Persona, bool) {
	s, ok := c.sessions.get(ownerID)
	if !ok {
		return persona.Persona{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.window.ActivePersona(); p != nil {
		return *p, true
	}
	return persona.Persona{}, false
}

// Owners lists the owners with a live session, sorted.
func (c *Controller) Owners() []string { return c.sessions.owners() }
