package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wolfman30/salon-concierge/pkg/clock"
)

type memoryEntry struct {
	done      bool
	reply     json.RawMessage
	claimedAt time.Time
}

// MemoryLedger is the in-process ledger used by tests and single-node demos.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   clock.Clock
	lease   time.Duration
}

func NewMemoryLedger(c clock.Clock, lease time.Duration) *MemoryLedger {
	if c == nil {
		c = clock.New()
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &MemoryLedger{entries: make(map[string]*memoryEntry), clock: c, lease: lease}
}

func (l *MemoryLedger) Admit(_ context.Context, eventID string, _ ConversationKey) (Admission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e, ok := l.entries[eventID]
	if !ok {
		l.entries[eventID] = &memoryEntry{claimedAt: now}
		return Admission{Admitted: true}, nil
	}
	if !e.done && now.Sub(e.claimedAt) > l.lease {
		e.claimedAt = now
		return Admission{Admitted: true}, nil
	}
	return Admission{Finalized: e.done, Reply: append(json.RawMessage(nil), e.reply...)}, nil
}

func (l *MemoryLedger) Finalize(_ context.Context, eventID string, reply json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[eventID]
	if !ok {
		e = &memoryEntry{claimedAt: l.clock.Now()}
		l.entries[eventID] = e
	}
	e.done = true
	e.reply = append(json.RawMessage(nil), reply...)
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[eventID]; ok && !e.done {
		delete(l.entries, eventID)
	}
	return nil
}

func (l *MemoryLedger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, e := range l.entries {
		if e.claimedAt.Before(cutoff) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}
