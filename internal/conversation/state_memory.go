package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/clock"
)

// MemoryStateStore is a StateStore for tests and single-process demos.
type MemoryStateStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	states map[events.ConversationKey]*State
}

func NewMemoryStateStore(c clock.Clock) *MemoryStateStore {
	if c == nil {
		c = clock.New()
	}
	return &MemoryStateStore{clock: c, states: make(map[events.ConversationKey]*State)}
}

func (m *MemoryStateStore) Get(_ context.Context, key events.ConversationKey) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(key)
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStateStore) Put(_ context.Context, s *State, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if existing, ok := m.live(s.Key); ok {
		current = existing.Version
	}
	if current != s.Version {
		return ErrStateConflict
	}

	now := m.clock.Now()
	s.Version++
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
	m.states[s.Key] = s.Clone()
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, key events.ConversationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

// live returns the unexpired state for key, evicting it if expired.
func (m *MemoryStateStore) live(key events.ConversationKey) (*State, bool) {
	s, ok := m.states[key]
	if !ok {
		return nil, false
	}
	if !m.clock.Now().Before(s.ExpiresAt) {
		delete(m.states, key)
		return nil, false
	}
	return s, true
}
