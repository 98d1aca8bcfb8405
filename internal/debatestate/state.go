// Package debatestate implements the shared DebateState described in
// spec.md §3/§4.1: an append-only, reducer-mutated record of a debate
// session. All mutation goes through Apply, which enforces invariants
// I1 (evidence references must resolve) and I3 (monotone phase order)
// before any field is merged; fields that pass are combined with the
// commutative per-field reducer named in spec.md §3.
//
// Reducer functions are grounded on
// _examples/original_source/backend/app/runtime/langgraph/state.py
// (merge_agent_outputs, extend_evidence_chain, merge_claims, merge_context,
// take_latest, increment_counter), translated from Python dict/list
// reducers into typed Go equivalents.
package debatestate

import (
	"maps"
	"sync"
	"time"
)

// State is the single shared, mutable debate record for one session. It
// is mutated exclusively by the graph executor's single pump goroutine
// (spec.md §5); the mutex here guards against the bookkeeping case of a
// concurrent read (e.g. a status endpoint) racing the pump, not against
// concurrent writers — there is only ever one.
type State struct {
	mu sync.RWMutex

	Messages     []Message
	messageIDs   map[string]bool
	Context      map[string]any
	Commands     map[string]Command
	Feedback     map[string]Feedback
	Evidence     []Evidence
	evidenceIDs  map[string]bool
	AgentOutputs map[string]any
	Route        Route
	Metrics      Metrics
	FinalResult  *FinalResult
}

// New returns an initialized, empty State positioned at PhaseInit.
func New() *State {
	return &State{
		messageIDs:   make(map[string]bool),
		Context:      make(map[string]any),
		Commands:     make(map[string]Command),
		Feedback:     make(map[string]Feedback),
		evidenceIDs:  make(map[string]bool),
		AgentOutputs: make(map[string]any),
		Route:        Route{CurrentPhase: PhaseInit},
		Metrics: Metrics{
			PhaseLatenciesMs: make(map[string]int64),
			RetryCounts:      make(map[string]int),
			TimeoutCounts:    make(map[string]int),
			TokenTotals:      make(map[string]int),
		},
	}
}

// Delta is a partial state update. Only non-nil/non-zero fields are
// applied; each field is combined with its declared reducer.
type Delta struct {
	Messages     []Message
	Context      map[string]any
	Commands     map[string]Command
	Feedback     map[string]Feedback
	Evidence     []Evidence
	AgentOutputs map[string]any
	Route        *RouteDelta
	Metrics      *MetricsDelta
	FinalResult  *FinalResult
}

// RouteDelta replaces the Route wholesale (reducer: replace), but Apply
// validates the phase transition it implies before committing it.
type RouteDelta struct {
	CurrentPhase Phase
	NextNode     string
	LoopRound    int
}

// MetricsDelta is element-wise added onto State.Metrics.
type MetricsDelta struct {
	PhaseLatenciesMs map[string]int64
	RetryCounts      map[string]int
	TimeoutCounts    map[string]int
	TokenTotals      map[string]int
}

// Snapshot is a deep-enough copy of State suitable for checkpointing and
// for safe concurrent reads; it does not share mutable maps/slices with
// the live State.
type Snapshot struct {
	Messages     []Message
	Context      map[string]any
	Commands     map[string]Command
	Feedback     map[string]Feedback
	Evidence     []Evidence
	AgentOutputs map[string]any
	Route        Route
	Metrics      Metrics
	FinalResult  *FinalResult
	TakenAt      time.Time
}

// Apply merges delta into the state. It fails with
// *InvalidStateDeltaError without mutating anything if the delta would
// violate invariant I1 (unknown evidence id referenced by feedback or
// final_result) or invariant I3 (illegal phase transition), or if it
// attempts to set final_result a second time or outside the judgment
// phase (invariant I4's "only by judgment phase" half).
func (s *State) Apply(delta Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(delta); err != nil {
		return err
	}

	s.applyMessages(delta.Messages)
	s.Context = mergeContext(s.Context, delta.Context)
	for k, v := range delta.Commands {
		s.Commands[k] = v
	}
	for k, v := range delta.Feedback {
		s.Feedback[k] = v
	}
	s.applyEvidence(delta.Evidence)
	for k, v := range delta.AgentOutputs {
		s.AgentOutputs[k] = v
	}
	if delta.Route != nil {
		s.Route = Route{
			CurrentPhase: delta.Route.CurrentPhase,
			NextNode:     delta.Route.NextNode,
			LoopRound:    delta.Route.LoopRound,
		}
	}
	if delta.Metrics != nil {
		s.applyMetrics(*delta.Metrics)
	}
	if delta.FinalResult != nil {
		fr := *delta.FinalResult
		s.FinalResult = &fr
	}
	return nil
}

// validate checks I1/I3/I4-write-gate before any mutation occurs, so
// Apply is all-or-nothing.
func (s *State) validate(delta Delta) error {
	if delta.Route != nil {
		if !IsValidPhase(delta.Route.CurrentPhase) {
			return invalidDelta("unknown phase %q", delta.Route.CurrentPhase)
		}
		if !IsMonotoneAdvance(s.Route.CurrentPhase, delta.Route.CurrentPhase) {
			return invalidDelta("illegal phase transition %q -> %q", s.Route.CurrentPhase, delta.Route.CurrentPhase)
		}
	}

	if delta.FinalResult != nil {
		if s.FinalResult != nil {
			return invalidDelta("final_result already set (set-once)")
		}
		currentPhase := s.Route.CurrentPhase
		if delta.Route != nil {
			currentPhase = delta.Route.CurrentPhase
		}
		if currentPhase != PhaseJudgment {
			return invalidDelta("final_result may only be written by the judgment phase, got phase %q", currentPhase)
		}
	}

	// I1: every evidence_id referenced by feedback.evidence_refs or
	// final_result.evidence_chain must exist in evidence (existing or
	// newly introduced by this same delta).
	known := make(map[string]bool, len(s.evidenceIDs)+len(delta.Evidence))
	for id := range s.evidenceIDs {
		known[id] = true
	}
	for _, ev := range delta.Evidence {
		id := ev.EvidenceID
		if id == "" {
			id = ComputeEvidenceID(ev.SourceKind, ev.SourceRef, ev.Description)
		}
		known[id] = true
	}

	for agent, fb := range delta.Feedback {
		for id := range fb.EvidenceRefs {
			if !known[id] {
				return invalidDelta("feedback for %q references unknown evidence_id %q", agent, id)
			}
		}
	}
	if delta.FinalResult != nil {
		for _, id := range delta.FinalResult.EvidenceChain {
			if !known[id] {
				return invalidDelta("final_result references unknown evidence_id %q", id)
			}
		}
	}

	return nil
}

func (s *State) applyMessages(msgs []Message) {
	for _, m := range msgs {
		if m.ID != "" && s.messageIDs[m.ID] {
			continue // de-dup by id
		}
		if m.ID != "" {
			s.messageIDs[m.ID] = true
		}
		s.Messages = append(s.Messages, m)
	}
}

func (s *State) applyEvidence(evs []Evidence) {
	for _, ev := range evs {
		if ev.EvidenceID == "" {
			ev.EvidenceID = ComputeEvidenceID(ev.SourceKind, ev.SourceRef, ev.Description)
		}
		ev.SourceRef = CanonicalizeSourceRef(ev.SourceRef)
		if s.evidenceIDs[ev.EvidenceID] {
			continue // de-dup by evidence_id
		}
		s.evidenceIDs[ev.EvidenceID] = true
		s.Evidence = append(s.Evidence, ev)
	}
}

func (s *State) applyMetrics(d MetricsDelta) {
	for k, v := range d.PhaseLatenciesMs {
		s.Metrics.PhaseLatenciesMs[k] += v
	}
	for k, v := range d.RetryCounts {
		s.Metrics.RetryCounts[k] += v
	}
	for k, v := range d.TimeoutCounts {
		s.Metrics.TimeoutCounts[k] += v
	}
	for k, v := range d.TokenTotals {
		s.Metrics.TokenTotals[k] += v
	}
}

// mergeContext implements the context reducer: shallow merge with
// last-writer-wins per key, except that when a key's value is a
// map[string]any on both sides, that single key's map is itself deep
// merged (grounded on original_source's merge_context; see SPEC_FULL.md
// §3 for why this does not contradict spec.md's "shallow merge" text).
func mergeContext(left, right map[string]any) map[string]any {
	if right == nil {
		return left
	}
	if left == nil {
		left = make(map[string]any)
	}
	result := make(map[string]any, len(left)+len(right))
	for k, v := range left {
		result[k] = v
	}
	for k, v := range right {
		if existing, ok := result[k]; ok {
			if em, eok := existing.(map[string]any); eok {
				if nm, nok := v.(map[string]any); nok {
					result[k] = mergeContext(em, nm)
					continue
				}
			}
		}
		result[k] = v
	}
	return result
}

// Snapshot returns a point-in-time copy of the state for checkpointing.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)

	ctx := make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		ctx[k] = v
	}

	cmds := make(map[string]Command, len(s.Commands))
	for k, v := range s.Commands {
		cmds[k] = v
	}

	fb := make(map[string]Feedback, len(s.Feedback))
	for k, v := range s.Feedback {
		fb[k] = v
	}

	ev := make([]Evidence, len(s.Evidence))
	copy(ev, s.Evidence)

	out := make(map[string]any, len(s.AgentOutputs))
	for k, v := range s.AgentOutputs {
		out[k] = v
	}

	var fr *FinalResult
	if s.FinalResult != nil {
		f := *s.FinalResult
		fr = &f
	}

	metrics := s.Metrics
	metrics.PhaseLatenciesMs = maps.Clone(s.Metrics.PhaseLatenciesMs)
	metrics.RetryCounts = maps.Clone(s.Metrics.RetryCounts)
	metrics.TimeoutCounts = maps.Clone(s.Metrics.TimeoutCounts)
	metrics.TokenTotals = maps.Clone(s.Metrics.TokenTotals)

	return Snapshot{
		Messages:     msgs,
		Context:      ctx,
		Commands:     cmds,
		Feedback:     fb,
		Evidence:     ev,
		AgentOutputs: out,
		Route:        s.Route,
		Metrics:      metrics,
		FinalResult:  fr,
		TakenAt:      time.Now(),
	}
}

// Restore replaces the live state's contents with a previously taken
// Snapshot, used by checkpoint recovery (spec.md §4.2 "Checkpointing").
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Messages = append([]Message(nil), snap.Messages...)
	s.messageIDs = make(map[string]bool, len(s.Messages))
	for _, m := range s.Messages {
		if m.ID != "" {
			s.messageIDs[m.ID] = true
		}
	}

	s.Context = make(map[string]any, len(snap.Context))
	for k, v := range snap.Context {
		s.Context[k] = v
	}

	s.Commands = make(map[string]Command, len(snap.Commands))
	for k, v := range snap.Commands {
		s.Commands[k] = v
	}

	s.Feedback = make(map[string]Feedback, len(snap.Feedback))
	for k, v := range snap.Feedback {
		s.Feedback[k] = v
	}

	s.Evidence = append([]Evidence(nil), snap.Evidence...)
	s.evidenceIDs = make(map[string]bool, len(s.Evidence))
	for _, e := range s.Evidence {
		s.evidenceIDs[e.EvidenceID] = true
	}

	s.AgentOutputs = make(map[string]any, len(snap.AgentOutputs))
	for k, v := range snap.AgentOutputs {
		s.AgentOutputs[k] = v
	}

	s.Route = snap.Route
	s.Metrics = snap.Metrics
	if snap.FinalResult != nil {
		f := *snap.FinalResult
		s.FinalResult = &f
	} else {
		s.FinalResult = nil
	}
}

// PendingAgents returns the names of agents with a Command for the
// current round that have not yet posted Feedback for that round —
// used to check invariant I2 ("a round is complete only when every
// agent commanded in that round has posted feedback or been marked
// degraded by timeout").
func (s *State) PendingAgents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []string
	for name, cmd := range s.Commands {
		fb, ok := s.Feedback[name]
		if !ok || fb.Round < cmd.IssuedRound {
			pending = append(pending, name)
		}
	}
	return pending
}

// RoundComplete reports whether invariant I2 is currently satisfied.
func (s *State) RoundComplete() bool {
	return len(s.PendingAgents()) == 0
}
