package debatestate

// Phase names a stage in the debate, per spec.md §3/§4.2.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseAssetMapping Phase = "asset_mapping"
	PhaseAnalysis     Phase = "analysis"
	PhaseCritique     Phase = "critique"
	PhaseRebuttal     Phase = "rebuttal"
	PhaseJudgment     Phase = "judgment"
	PhaseVerification Phase = "verification"
	PhaseReport       Phase = "report"
	PhaseTerminal     Phase = "terminal"
)

// phaseOrder is the monotone phase sequence of invariant I3. Index ties
// are used to check forward progress; the critique/rebuttal pair is the
// only cycle, handled separately via loop_round.
var phaseOrder = map[Phase]int{
	PhaseInit:         0,
	PhaseAssetMapping: 1,
	PhaseAnalysis:     2,
	PhaseCritique:     3,
	PhaseRebuttal:     4,
	PhaseJudgment:     5,
	PhaseVerification: 6,
	PhaseReport:       7,
	PhaseTerminal:     8,
}

// IsValidPhase reports whether p is one of the enumerated phases.
func IsValidPhase(p Phase) bool {
	_, ok := phaseOrder[p]
	return ok
}

// IsMonotoneAdvance reports whether moving from `from` to `to` respects
// invariant I3: phase order is monotone; a phase may repeat only within
// the critique/rebuttal loop.
func IsMonotoneAdvance(from, to Phase) bool {
	if from == to {
		// Only the critique/rebuttal loop may revisit its own phase via a
		// same-phase delta (e.g. re-issuing commands mid-phase).
		return from == PhaseCritique || from == PhaseRebuttal
	}
	fi, fok := phaseOrder[from]
	ti, tok := phaseOrder[to]
	if !fok || !tok {
		return false
	}
	if ti > fi {
		return true
	}
	// The only legal backward move is rebuttal -> critique (another loop round).
	return from == PhaseRebuttal && to == PhaseCritique
}

// IsAdjacentPhase reports whether b is the same phase as a or one step
// away in phaseOrder, used by the Agent Runner's prompt builder to
// restrict rolling context to "this agent's phase and adjacent phases"
// (spec.md §4.5).
func IsAdjacentPhase(a, b Phase) bool {
	ai, aok := phaseOrder[a]
	bi, bok := phaseOrder[b]
	if !aok || !bok {
		return false
	}
	diff := ai - bi
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}
