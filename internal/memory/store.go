package memory

import (
	"sync"
	"time"
)

// Store owns every live conversation, keyed by conversation ID.
type Store struct {
	maxTurns int

	mu    sync.Mutex
	convs map[string]*Conversation
	now   func() time.Time
}

func NewStore(maxTurns int) *Store {
	return &Store{
		maxTurns: maxTurns,
		convs:    make(map[string]*Conversation),
		now:      time.Now,
	}
}

// GetOrCreate returns the conversation for id, creating an empty one if needed.
func (s *Store) GetOrCreate(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		c = NewConversation(id, s.maxTurns)
		c.now = s.now
		s.convs[id] = c
	}
	c.touch()
	return c
}

func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	return c, ok
}

// Delete drops a conversation. It reports whether one existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[id]
	delete(s.convs, id)
	return ok
}

// Sweep drops conversations idle for longer than idle and returns how many
// were removed. Conversations in the middle of a turn are kept.
func (s *Store) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.convs {
		if c.busy() || c.LastActive().After(cutoff) {
			continue
		}
		delete(s.convs, id)
		removed++
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
