package eventstream

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory EventStore test double.
type memStore struct {
	mu     sync.Mutex
	events map[string][]Event
}

func newMemStore() *memStore { return &memStore{events: make(map[string][]Event)} }

func (m *memStore) AppendEvent(sessionID string, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[sessionID] = append(m.events[sessionID], e)
	return nil
}

func (m *memStore) LoadEventsSince(sessionID, cursor string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.events[sessionID]
	if cursor == "" {
		out := make([]Event, len(all))
		copy(out, all)
		return out, nil
	}
	for i, e := range all {
		if e.EventID == cursor {
			out := make([]Event, len(all[i+1:]))
			copy(out, all[i+1:])
			return out, nil
		}
	}
	out := make([]Event, len(all))
	copy(out, all)
	return out, nil
}

// TestDuplicateSuppression is scenario 2 from spec.md §8: injecting the
// same event envelope twice yields exactly one subscriber delivery and
// one persisted entry.
func TestDuplicateSuppression(t *testing.T) {
	store := newMemStore()
	d := NewDispatcher(store)

	ch, unsub := d.Subscribe("s1", "")
	defer unsub()

	dup := Event{EventID: "forced-dup", SessionID: "s1", Type: TypeAgentChatMessage, Payload: map[string]any{"x": 1}}
	require.NoError(t, d.Emit(dup))
	require.NoError(t, d.Emit(dup))

	<-ch // drain the single delivered event so the test below only counts persistence

	persisted, err := store.LoadEventsSince("s1", "")
	require.NoError(t, err)

	count := 0
	for _, pe := range persisted {
		if pe.EventID == "forced-dup" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// TestEventIDDeterministicAcrossRestarts is the spec.md §8 property:
// event_ids are unique within a session and identical across restarts.
func TestEventIDDeterministicAcrossRestarts(t *testing.T) {
	id1 := ComputeEventID("session-1", "aggregate", 3)
	id2 := ComputeEventID("session-1", "aggregate", 3)
	id3 := ComputeEventID("session-1", "aggregate", 4)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := Event{
		EventID:   "evt-1",
		SessionID: "s1",
		Type:      TypeResultReady,
		Phase:     "report",
		AgentName: "JudgeAgent",
		Payload:   map[string]any{"confidence": 0.9},
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(b, &back))

	b2, err := json.Marshal(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(b2))
}

func TestSubscribeResumeCursorReplaysTailThenJoinsLive(t *testing.T) {
	store := newMemStore()
	d := NewDispatcher(store)

	require.NoError(t, d.EmitFrom("n", Event{SessionID: "s1", Type: TypePhaseChanged, Payload: map[string]any{"i": 1}}))
	first := mustLoadOne(t, store, "s1")

	require.NoError(t, d.EmitFrom("n", Event{SessionID: "s1", Type: TypePhaseChanged, Payload: map[string]any{"i": 2}}))

	ch, unsub := d.Subscribe("s1", first.EventID)
	defer unsub()

	got := <-ch
	assert.Equal(t, 2, got.Payload["i"])

	require.NoError(t, d.EmitFrom("n", Event{SessionID: "s1", Type: TypePhaseChanged, Payload: map[string]any{"i": 3}}))
	got2 := <-ch
	assert.Equal(t, 3, got2.Payload["i"])
}

func mustLoadOne(t *testing.T, store *memStore, sessionID string) Event {
	t.Helper()
	evs, err := store.LoadEventsSince(sessionID, "")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	return evs[0]
}
