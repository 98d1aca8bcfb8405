package graph

import "github.com/sreforge/debate-engine/internal/debatestate"

// phaseWorkNode names the node that performs the substantive work for
// each phase once its prerequisites (asset mapping present, a pending
// command issued) are satisfied. Report has no pending-command gate: the
// report node runs unconditionally once the phase is entered, and
// transitions itself straight to terminal on success (spec.md §4.10).
var phaseWorkNode = map[debatestate.Phase]string{
	debatestate.PhaseAnalysis:     "aggregate",
	debatestate.PhaseCritique:     "aggregate",
	debatestate.PhaseRebuttal:     "aggregate",
	debatestate.PhaseJudgment:     "judge",
	debatestate.PhaseVerification: "verify",
}

// DefaultRoute implements spec.md §4.2's routing function: a pure
// function of state consulting route.current_phase, pending-feedback
// completeness, and the supervisor's command queue. Tie-break:
// lexicographic over node name is applied by graph.Graph.NodeNames for
// callers that enumerate nodes; this function itself only ever has one
// legal next node for a given state, since each phase maps to exactly
// one work node plus supervisor_decide.
func DefaultRoute(s *debatestate.State) (string, bool) {
	phase := s.Route.CurrentPhase

	if phase == debatestate.PhaseTerminal {
		return "", false
	}
	if phase == debatestate.PhaseInit {
		return "init_session", true
	}
	if phase == debatestate.PhaseAssetMapping {
		if _, ok := s.Context["asset_mapping"]; !ok {
			return "collect_assets", true
		}
		return "supervisor_decide", true
	}
	if phase == debatestate.PhaseReport {
		return "report", true
	}

	work, ok := phaseWorkNode[phase]
	if !ok {
		return "supervisor_decide", true
	}

	if !s.RoundComplete() {
		return work, true
	}
	return "supervisor_decide", true
}
