package companion

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

// session is the live state of one owner's conversation. mu serializes
// turns; everything below it is guarded by mu.
type session struct {
	mu sync.Mutex

	id        string
	ownerID   string
	createdAt time.Time
	window    *conversation.Window
	state     State
}

func (s *session) snapshot() *conversation.Conversation {
	return &conversation.Conversation{
		ID:        s.id,
		OwnerID:   s.ownerID,
		Turns:     s.window.Turns(),
		CreatedAt: s.createdAt,
	}
}

type sessionManager struct {
	budget int
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionManager(budget int, now func() time.Time) *sessionManager {
	return &sessionManager{
		budget:   budget,
		now:      now,
		sessions: make(map[string]*session),
	}
}

// getOrCreate returns the owner's session, starting a new conversation if
// there is none.
func (m *sessionManager) getOrCreate(ownerID string) *session {
	ownerID = strings.TrimSpace(ownerID)

	m.mu.RLock()
	s, ok := m.sessions[ownerID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[ownerID]; ok {
		return s
	}
	start := m.now().UTC()
	s = &session{
		id:        conversation.NewConversationID(ownerID, start),
		ownerID:   ownerID,
		createdAt: start,
		window:    conversation.NewWindow(m.budget),
	}
	m.sessions[ownerID] = s
	return s
}

func (m *sessionManager) get(ownerID string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[strings.TrimSpace(ownerID)]
	return s, ok
}

func (m *sessionManager) put(s *session) {
	m.mu.Lock()
	m.sessions[s.ownerID] = s
	m.mu.Unlock()
}

func (m *sessionManager) remove(ownerID string) (*session, bool) {
	ownerID = strings.TrimSpace(ownerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ownerID]
	delete(m.sessions, ownerID)
	return s, ok
}

func (m *sessionManager) owners() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
