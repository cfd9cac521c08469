package memory

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// RoleUser and RoleAssistant are the only roles stored per session.
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultMaxSessions = 1024
	defaultMaxTurns    = 20
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type session struct {
	mu    sync.Mutex
	turns []Turn
}

// Store caches per-session conversation history in process memory. The
// session count is bounded by LRU eviction of idle sessions; each session
// keeps only its most recent turns, oldest dropped first. Durable history
// lives elsewhere; this is the fast path consulted when a request carries
// no explicit history.
type Store struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
	maxTurns int
}

// NewStore builds a store capped at maxSessions sessions of maxTurns
// entries each. Zero values select the defaults.
func NewStore(maxSessions, maxTurns int) (*Store, error) {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	cache, err := lru.New[string, *session](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("memory: init session cache: %w", err)
	}
	return &Store{sessions: cache, maxTurns: maxTurns}, nil
}

// Append records a full exchange. The pair is added atomically so a
// concurrent reader never observes the question without its answer.
func (s *Store) Append(sessionID, userMessage, assistantMessage string) {
	sess := s.getOrCreate(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns,
		Turn{Role: RoleUser, Content: userMessage},
		Turn{Role: RoleAssistant, Content: assistantMessage},
	)
	if excess := len(sess.turns) - s.maxTurns; excess > 0 {
		sess.turns = append([]Turn(nil), sess.turns[excess:]...)
	}
}

// History returns a copy of the session's turns, oldest first. Unknown
// sessions yield an empty history.
func (s *Store) History(sessionID string) []Turn {
	s.mu.Lock()
	sess, ok := s.sessions.Get(sessionID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Clear drops a session's history entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(sessionID)
}

func (s *Store) getOrCreate(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(sessionID); ok {
		return sess
	}
	sess := &session{}
	s.sessions.Add(sessionID, sess)
	return sess
}
