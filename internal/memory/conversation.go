package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chris/taskbot/internal/domain"
)

// DefaultMaxTurns is used when a non-positive limit is given.
const DefaultMaxTurns = 20

// Conversation is the bounded turn history of one session. Appends and reads
// are serialized by mu; whole turns are serialized by Lock.
type Conversation struct {
	id       string
	maxTurns int

	mu         sync.RWMutex
	turns      []domain.Turn
	lastActive time.Time

	turn chan struct{}
	now  func() time.Time
}

func NewConversation(id string, maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Conversation{
		id:         id,
		maxTurns:   maxTurns,
		lastActive: time.Now(),
		turn:       make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) MaxTurns() int { return c.maxTurns }

// Append records a turn, evicting the oldest turns beyond the limit.
func (c *Conversation) Append(t domain.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
	if over := len(c.turns) - c.maxTurns; over > 0 {
		c.turns = append(c.turns[:0], c.turns[over:]...)
	}
	c.lastActive = c.now()
}

// History returns the most recent limit turns, oldest first. A non-positive
// limit returns every retained turn. The result is a copy.
func (c *Conversation) History(limit int) []domain.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(c.turns) {
		start = len(c.turns) - limit
	}
	out := make([]domain.Turn, len(c.turns)-start)
	copy(out, c.turns[start:])
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Conversation) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

func (c *Conversation) touch() {
	c.mu.Lock()
	c.lastActive = c.now()
	c.mu.Unlock()
}

// Lock acquires the turn lock, blocking until it is free or ctx is done.
// Waiters are admitted in arrival order. The returned func releases the lock.
func (c *Conversation) Lock(ctx context.Context) (unlock func(), err error) {
	select {
	case c.turn <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-c.turn }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("conversation %s lock: %w", c.id, ctx.Err())
	}
}

// busy reports whether a turn currently holds the lock.
func (c *Conversation) busy() bool {
	return len(c.turn) > 0
}
