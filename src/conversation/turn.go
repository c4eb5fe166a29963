// Package conversation holds the turn model and the bounded context window
// a conversation is replayed through.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are never mutated once created.
type Turn struct {
	Role           Role      `json:"role" bson:"role"`
	Content        string    `json:"content" bson:"content"`
	PersonaUsed    string    `json:"persona_used,omitempty" bson:"persona_used,omitempty"`
	PersonaVersion int       `json:"persona_version,omitempty" bson:"persona_version,omitempty"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
}

// Conversation is the persisted form of a chat session.
type Conversation struct {
	ID        string    `json:"conversation_id" bson:"_id"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	Turns     []Turn    `json:"turns" bson:"turns"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Message is the role/content projection handed to prompts.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewConversationID derives a stable id from the owner and session start.
// The same inputs always produce the same id.
func NewConversationID(ownerID string, startedAt time.Time) string {
	name := strings.TrimSpace(ownerID) + "|" + startedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// LastUserMessage returns the content of the most recent user turn.
func LastUserMessage(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// ApproxSize is the word count of text: the number of whitespace-delimited
// tokens. It stands in for a real tokenizer when budgeting prompts.
func ApproxSize(text string) int {
	return len(strings.Fields(text))
}

// Project returns the role/content projection of turns in order.
func Project(turns []Turn) []Message {
	out := make([]Message, len(turns))
	for i, t := range turns {
		out[i] = Message{Role: t.Role, Content: t.Content}
	}
	return out
}
