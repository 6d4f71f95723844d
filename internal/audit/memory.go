package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRecorder keeps turns in process for demos running without Postgres.
type MemoryRecorder struct {
	mu    sync.Mutex
	turns []Turn
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) RecordTurn(_ context.Context, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.OfferedSlotIDs = append([]string(nil), t.OfferedSlotIDs...)
	m.mu.Lock()
	m.turns = append(m.turns, t)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, salonID, customerHandle string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	var out []Turn
	for i := len(m.turns) - 1; i >= 0; i-- {
		t := m.turns[i]
		if t.SalonID == salonID && t.CustomerHandle == customerHandle {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
