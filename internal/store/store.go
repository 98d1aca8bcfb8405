// Package store declares the SessionStore port (spec.md §6) the core
// depends on for checkpointing and event persistence, plus an in-memory
// reference implementation and a Redis-backed implementation.
//
// Grounded on the teacher pack's github.com/redis/go-redis/v9 dependency
// (present in the teacher's go.mod for its own session/cache layer) and
// on the teacher's internal/events append-only log shape, generalized
// from a process-local event bus to a durable, session-scoped store.
package store

import (
	"context"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/eventstream"
)

// Checkpoint is the unit persisted after every node completion
// (spec.md §4.2).
type Checkpoint struct {
	SessionID string
	Snapshot  debatestate.Snapshot
	LastNode  string
}

// SessionStore is the persistence port named in spec.md §6. Its
// AppendEvent/LoadEventsSince methods additionally satisfy
// eventstream.EventStore structurally, without this package importing
// eventstream for anything but the Event type.
type SessionStore interface {
	SaveCheckpoint(ctx context.Context, sessionID string, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, sessionID string) (Checkpoint, bool, error)
	AppendEvent(sessionID string, e eventstream.Event) error
	LoadEventsSince(sessionID string, cursor string) ([]eventstream.Event, error)
}
