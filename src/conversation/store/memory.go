package store

import (
	"context"
	"sync"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*conversation.Conversation
	archived map[string]*conversation.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*conversation.Conversation),
		archived: make(map[string]*conversation.Conversation),
	}
}

func (s *MemoryStore) Save(_ context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	s.archived[id] = cloneConversation(c)
	return nil
}

// Archived returns the archived copy of a conversation.
func (s *MemoryStore) Archived(id string) (*conversation.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.archived[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
