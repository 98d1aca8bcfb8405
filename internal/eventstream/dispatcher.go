package eventstream

import (
	"sync"
	"time"
)

// DefaultQueueSize is the default bounded per-subscriber queue size
// before the drop-oldest overflow policy kicks in (spec.md §4.8).
const DefaultQueueSize = 256

// Dispatcher fans events out to live subscribers and a persistent event
// log, de-duplicating by EventID and preserving per-session FIFO
// production order (spec.md §4.8, §5).
type Dispatcher struct {
	store     EventStore
	queueSize int

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	seq  uint64
	seen map[string]bool
	subs []*subscription
}

type subscription struct {
	ch     chan Event
	closed bool
}

// NewDispatcher constructs a Dispatcher backed by the given persistence
// port. store may be nil for pure in-memory, ephemeral usage (e.g. unit
// tests of upstream components that don't care about persistence).
func NewDispatcher(store EventStore) *Dispatcher {
	return &Dispatcher{
		store:     store,
		queueSize: DefaultQueueSize,
		sessions:  make(map[string]*sessionState),
	}
}

func (d *Dispatcher) sessionFor(sessionID string) *sessionState {
	ss, ok := d.sessions[sessionID]
	if !ok {
		ss = &sessionState{seen: make(map[string]bool)}
		d.sessions[sessionID] = ss
	}
	return ss
}

// Emit assigns an EventID if missing, de-duplicates, persists, and fans
// the event out to all live subscribers of its session, in FIFO
// production order.
func (d *Dispatcher) Emit(e Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ss := d.sessionFor(e.SessionID)

	if e.EventID == "" {
		e.EventID = ComputeEventID(e.SessionID, e.node, ss.seq)
	}
	ss.seq++

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if ss.seen[e.EventID] {
		return nil // de-dup across live stream and persisted log
	}
	ss.seen[e.EventID] = true

	if d.store != nil {
		if err := d.store.AppendEvent(e.SessionID, e); err != nil {
			return err
		}
	}

	for _, sub := range ss.subs {
		d.deliver(ss, sub, e)
	}
	return nil
}

// deliver sends e to sub, applying drop-oldest overflow with a
// stream_lag notice when the subscriber's queue is full — it must be
// called while d.mu is held so stream_lag events themselves stay FIFO
// with the event that triggered them.
func (d *Dispatcher) deliver(ss *sessionState, sub *subscription, e Event) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- e:
		return
	default:
	}

	// Queue full: drop the two oldest buffered events to make room, then
	// emit a stream_lag notice ahead of the new event so the subscriber
	// knows it missed something.
	for i := 0; i < 2; i++ {
		select {
		case <-sub.ch:
		default:
		}
	}
	lag := Event{
		EventID:   ComputeEventID(e.SessionID, "dispatcher.stream_lag", ss.seq),
		SessionID: e.SessionID,
		Timestamp: time.Now(),
		Type:      TypeStreamLag,
		Payload:   map[string]any{"reason": "slow_consumer_drop_oldest"},
	}
	select {
	case sub.ch <- lag:
	default:
	}
	select {
	case sub.ch <- e:
	default:
	}
}

// Subscribe registers a live subscriber for sessionID and replays the
// persisted tail since resumeCursor (the last event_id the caller saw),
// then joins the live stream. The returned func unsubscribes and closes
// the channel.
func (d *Dispatcher) Subscribe(sessionID, resumeCursor string) (<-chan Event, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ss := d.sessionFor(sessionID)
	sub := &subscription{ch: make(chan Event, d.queueSize)}
	ss.subs = append(ss.subs, sub)

	if d.store != nil {
		backlog, err := d.store.LoadEventsSince(sessionID, resumeCursor)
		if err == nil {
			for _, e := range backlog {
				select {
				case sub.ch <- e:
				default:
					// Backlog exceeds queue size; the caller will observe a
					// gap-free prefix plus a stream_lag on the live side.
				}
			}
		}
	}

	unsubscribe := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		sub.closed = true
		close(sub.ch)
		for i, s := range ss.subs {
			if s == sub {
				ss.subs = append(ss.subs[:i], ss.subs[i+1:]...)
				break
			}
		}
	}

	return sub.ch, unsubscribe
}

// EmitFrom is a convenience used by node executors: it stamps the node
// name used for deterministic id derivation before calling Emit.
func (d *Dispatcher) EmitFrom(node string, e Event) error {
	e.node = node
	return d.Emit(e)
}

// CloseSession releases bookkeeping for a finished session. Safe to call
// even if subscribers remain; they are individually unsubscribed via
// their own unsubscribe func, not forced closed here, so a subscriber
// observing the terminal event is never racily cut off.
func (d *Dispatcher) CloseSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ss, ok := d.sessions[sessionID]; ok && len(ss.subs) == 0 {
		delete(d.sessions, sessionID)
	}
}
