package store

import (
	"context"
	"sync"

	"github.com/sreforge/debate-engine/internal/eventstream"
)

// MemoryStore is an in-process SessionStore used as the default backend
// (spec.md §6 store.backend: "memory") and by tests of upstream
// components. Grounded on the teacher's internal/events/bus.go in-memory
// bookkeeping style, generalized to hold checkpoints as well as events.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	events      map[string][]eventstream.Event
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]Checkpoint),
		events:      make(map[string][]eventstream.Event),
	}
}

func (m *MemoryStore) SaveCheckpoint(_ context.Context, sessionID string, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[sessionID] = cp
	return nil
}

func (m *MemoryStore) LoadCheckpoint(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[sessionID]
	return cp, ok, nil
}

func (m *MemoryStore) AppendEvent(sessionID string, e eventstream.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[sessionID] = append(m.events[sessionID], e)
	return nil
}

func (m *MemoryStore) LoadEventsSince(sessionID, cursor string) ([]eventstream.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[sessionID]
	if cursor == "" {
		out := make([]eventstream.Event, len(all))
		copy(out, all)
		return out, nil
	}
	for i, e := range all {
		if e.EventID == cursor {
			out := make([]eventstream.Event, len(all[i+1:]))
			copy(out, all[i+1:])
			return out, nil
		}
	}
	out := make([]eventstream.Event, len(all))
	copy(out, all)
	return out, nil
}
