package conversation

import (
	"encoding/json"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/persona"
)

// DefaultBudget is the window size, in words, used when none is configured.
const DefaultBudget = 3000

// Window holds the ordered turns of one conversation and keeps their total
// approximate size within budget by evicting from the head.
//
// A Window is not safe for concurrent use; callers serialize turns of one
// conversation.
type Window struct {
	turns  []Turn
	budget int
	size   int
	active *persona.Persona
	now    func() time.Time
}

// NewWindow returns an empty window. A non-positive budget selects DefaultBudget.
func NewWindow(budget int) *Window {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Window{budget: budget, now: time.Now}
}

// Append records a new turn and evicts the oldest turns while the window is
// over budget and more than one turn remains. A single turn larger than the
// whole budget is therefore kept alone until the next append.
func (w *Window) Append(role Role, content, personaUsed string, personaVersion int) Turn {
	t := Turn{
		Role:           role,
		Content:        content,
		PersonaUsed:    personaUsed,
		PersonaVersion: personaVersion,
		Timestamp:      w.now().UTC(),
	}
	w.push(t)
	return t
}

// Restore appends a previously persisted turn, keeping its timestamp.
// Eviction follows the same rule as Append.
func (w *Window) Restore(t Turn) {
	w.push(t)
}

func (w *Window) push(t Turn) {
	w.turns = append(w.turns, t)
	w.size += ApproxSize(t.Content)
	for w.size > w.budget && len(w.turns) > 1 {
		w.size -= ApproxSize(w.turns[0].Content)
		w.turns[0] = Turn{}
		w.turns = w.turns[1:]
	}
}

// Turns returns a copy of the turns currently in the window.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

func (w *Window) Len() int    { return len(w.turns) }
func (w *Window) Size() int   { return w.size }
func (w *Window) Budget() int { return w.budget }

// Serialize projects the window onto role/content pairs.
func (w *Window) Serialize() []Message {
	return Project(w.turns)
}

// SerializeJSON renders Serialize as indented JSON for prompt embedding.
func (w *Window) SerializeJSON() (string, error) {
	return MessagesJSON(w.Serialize())
}

// MessagesJSON renders messages as indented JSON.
func MessagesJSON(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ActivePersona is the persona that produced the latest persisted reply, or nil.
func (w *Window) ActivePersona() *persona.Persona { return w.active }

// SetActivePersona records the persona chosen for the latest turn.
func (w *Window) SetActivePersona(p *persona.Persona) { w.active = p }
