package debatestate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_MessageDeduplication(t *testing.T) {
	s := New()
	msg := Message{ID: "m1", Role: RoleSpecialist, AgentName: "LogAgent", Phase: PhaseAnalysis, Content: "hello"}

	require.NoError(t, s.Apply(Delta{Messages: []Message{msg}}))
	require.NoError(t, s.Apply(Delta{Messages: []Message{msg}}))

	assert.Len(t, s.Messages, 1)
}

func TestApply_EvidenceDeduplicationAcrossSpecialists(t *testing.T) {
	s := New()
	ev := NewEvidence(SourceLog, "  App.LOG   Line 42  ", "nil pointer at line 42", StrengthStrong, "LogAgent")
	evDup := NewEvidence(SourceLog, "app.log line 42", "nil pointer at line 42", StrengthMedium, "DomainAgent")

	require.Equal(t, ev.EvidenceID, evDup.EvidenceID, "canonicalized source_ref must collide")

	require.NoError(t, s.Apply(Delta{Evidence: []Evidence{ev}}))
	require.NoError(t, s.Apply(Delta{Evidence: []Evidence{evDup}}))

	assert.Len(t, s.Evidence, 1)
}

func TestApply_RejectsUnknownEvidenceRef(t *testing.T) {
	s := New()
	err := s.Apply(Delta{
		Feedback: map[string]Feedback{
			"LogAgent": {Round: 1, Status: FeedbackOK, EvidenceRefs: map[string]bool{"ev-doesnotexist": true}},
		},
	})
	require.Error(t, err)
	var invErr *InvalidStateDeltaError
	assert.ErrorAs(t, err, &invErr)
}

func TestApply_PhaseOrderMonotone(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseAssetMapping}}))
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseAnalysis}}))

	// Cannot skip backward to init.
	err := s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseInit}})
	require.Error(t, err)

	// Critique <-> rebuttal loop is legal.
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseCritique}}))
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseRebuttal}}))
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseCritique, LoopRound: 1}}))
}

func TestApply_FinalResultSetOnceAndOnlyInJudgment(t *testing.T) {
	s := New()
	ev1 := NewEvidence(SourceLog, "log:1", "desc1", StrengthStrong, "LogAgent")
	ev2 := NewEvidence(SourceMetric, "metric:cpu", "desc2", StrengthMedium, "MetricsAgent")
	require.NoError(t, s.Apply(Delta{Evidence: []Evidence{ev1, ev2}}))

	// Wrong phase: must fail.
	err := s.Apply(Delta{FinalResult: &FinalResult{RootCause: "x", Confidence: 0.9, EvidenceChain: []string{ev1.EvidenceID, ev2.EvidenceID}}})
	require.Error(t, err)

	advanceToJudgment(t, s)

	require.NoError(t, s.Apply(Delta{
		Route:       &RouteDelta{CurrentPhase: PhaseJudgment},
		FinalResult: &FinalResult{RootCause: "disk full", Confidence: 0.9, EvidenceChain: []string{ev1.EvidenceID, ev2.EvidenceID}},
	}))

	// Set-once: a second write must fail even with the same phase.
	err = s.Apply(Delta{
		Route:       &RouteDelta{CurrentPhase: PhaseJudgment},
		FinalResult: &FinalResult{RootCause: "y", Confidence: 0.5, EvidenceChain: []string{ev1.EvidenceID}},
	})
	require.Error(t, err)
}

func advanceToJudgment(t *testing.T, s *State) {
	t.Helper()
	for _, p := range []Phase{PhaseAssetMapping, PhaseAnalysis, PhaseJudgment} {
		require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: p}}))
	}
}

// TestApply_CommutativeMergeOnDisjointKeys is the property test from
// spec.md §8: "For all sequences of parallel deltas applied to disjoint
// state keys, the final state is independent of merge order."
func TestApply_CommutativeMergeOnDisjointKeys(t *testing.T) {
	build := func(order []int) *State {
		s := New()
		deltas := []Delta{
			{AgentOutputs: map[string]any{"LogAgent": "log output"}},
			{AgentOutputs: map[string]any{"CodeAgent": "code output"}},
			{Feedback: map[string]Feedback{"LogAgent": {Round: 1, Status: FeedbackOK}}},
			{Feedback: map[string]Feedback{"CodeAgent": {Round: 1, Status: FeedbackOK}}},
		}
		for _, i := range order {
			require.NoError(t, s.Apply(deltas[i]))
		}
		return s
	}

	base := build([]int{0, 1, 2, 3})
	for trial := 0; trial < 20; trial++ {
		order := rand.Perm(4)
		other := build(order)
		assert.Equal(t, base.AgentOutputs, other.AgentOutputs)
		assert.Equal(t, base.Feedback, other.Feedback)
	}
}

func TestApply_MetricsElementWiseAdd(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(Delta{Metrics: &MetricsDelta{RetryCounts: map[string]int{"analysis": 1}}}))
	require.NoError(t, s.Apply(Delta{Metrics: &MetricsDelta{RetryCounts: map[string]int{"analysis": 2}}}))
	assert.Equal(t, 3, s.Metrics.RetryCounts["analysis"])
}

func TestApply_ContextLastWriterWinsWithNestedMerge(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(Delta{Context: map[string]any{
		"asset_mapping": map[string]any{"service": "checkout", "tier": "frontend"},
	}}))
	require.NoError(t, s.Apply(Delta{Context: map[string]any{
		"asset_mapping": map[string]any{"tier": "backend"},
		"raw_log_excerpt": "...",
	}}))

	am := s.Context["asset_mapping"].(map[string]any)
	assert.Equal(t, "checkout", am["service"])
	assert.Equal(t, "backend", am["tier"])
	assert.Equal(t, "...", s.Context["raw_log_excerpt"])
}

func TestRoundComplete(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(Delta{Commands: map[string]Command{
		"LogAgent":  {IssuedRound: 1},
		"CodeAgent": {IssuedRound: 1},
	}}))
	assert.False(t, s.RoundComplete())

	require.NoError(t, s.Apply(Delta{Feedback: map[string]Feedback{
		"LogAgent": {Round: 1, Status: FeedbackOK},
	}}))
	assert.False(t, s.RoundComplete())

	require.NoError(t, s.Apply(Delta{Feedback: map[string]Feedback{
		"CodeAgent": {Round: 1, Status: FeedbackDegraded},
	}}))
	assert.True(t, s.RoundComplete())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	ev := NewEvidence(SourceLog, "log:1", "desc", StrengthStrong, "LogAgent")
	require.NoError(t, s.Apply(Delta{
		Evidence: []Evidence{ev},
		Route:    &RouteDelta{CurrentPhase: PhaseAssetMapping},
		Messages: []Message{{ID: "m1", Content: "hi"}},
	}))

	snap := s.Snapshot()

	fresh := New()
	fresh.Restore(snap)

	assert.Equal(t, s.Evidence, fresh.Evidence)
	assert.Equal(t, s.Route, fresh.Route)
	assert.Equal(t, s.Messages, fresh.Messages)

	// Mutating the live state after taking the snapshot must not affect it.
	require.NoError(t, s.Apply(Delta{Route: &RouteDelta{CurrentPhase: PhaseAnalysis}}))
	assert.Equal(t, PhaseAssetMapping, snap.Route.CurrentPhase)
}
