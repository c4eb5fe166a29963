// Package store persists conversations. Saves are last-write-wins: a Save
// replaces whatever was stored under the same id.
package store

import (
	"context"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

// Store defines the interface for conversation storage operations.
type Store interface {
	// Save creates or replaces the conversation.
	Save(ctx context.Context, conv *conversation.Conversation) error

	// Load retrieves a conversation by ID.
	// Returns ErrNotFound if it does not exist.
	Load(ctx context.Context, id string) (*conversation.Conversation, error)

	// Delete removes a conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Archive copies a conversation to the archive, leaving the original in place.
	// Returns ErrNotFound if it does not exist.
	Archive(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
