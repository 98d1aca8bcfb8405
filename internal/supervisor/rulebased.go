package supervisor

import (
	"context"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

// confidenceThresholdLow is spec.md §4.4's fixed routing threshold:
// "analysis.done -> critique if any specialist confidence < 0.4".
const confidenceThresholdLow = 0.4

const (
	taskAnalysis            = "analysis"
	taskDefendUnderCritique = "defend analysis under critique"
	taskRebutCritique       = "rebut critique"
	taskSynthesizeJudgment  = "synthesize final root cause"
	taskVerifyFinalResult   = "verify final result"

	roleJudgeAgent        = "JudgeAgent"
	roleVerificationAgent = "VerificationAgent"
)

// RuleBased implements the deterministic phase-progression decider,
// grounded on original_source's RuleBasedRouter (its
// `_fallback_supervisor_route` + `_route_guardrail` pair, here collapsed
// into one pure function since this package owns the guardrail itself
// via Router.Decide's I3 check).
type RuleBased struct {
	maxRounds int
}

// NewRuleBased constructs a RuleBased decider bound to a session's
// max_rounds bound.
func NewRuleBased(maxRounds int) *RuleBased {
	return &RuleBased{maxRounds: maxRounds}
}

func (r *RuleBased) Decide(_ context.Context, snap debatestate.Snapshot) (Decision, error) {
	switch snap.Route.CurrentPhase {
	case debatestate.PhaseInit:
		return Decision{NextPhase: debatestate.PhaseAssetMapping, Rationale: "session start"}, nil

	case debatestate.PhaseAssetMapping:
		if !hasUsableMapping(snap) {
			return Decision{Defer: true}, nil
		}
		return Decision{
			NextPhase: debatestate.PhaseAnalysis,
			Commands:  commandsFor(snap, taskAnalysis, "LogAgent", "DomainAgent", "CodeAgent"),
			Rationale: "asset mapping complete with a usable mapping",
		}, nil

	case debatestate.PhaseAnalysis:
		if !roundComplete(snap, "LogAgent", "DomainAgent", "CodeAgent") {
			return Decision{Defer: true}, nil
		}
		challenged := lowConfidenceOrConflictingAgents(snap)
		if len(challenged) == 0 {
			return Decision{
				NextPhase: debatestate.PhaseJudgment,
				Commands:  commandsFor(snap, taskSynthesizeJudgment, roleJudgeAgent),
				Rationale: "analysis settled with no conflicts",
			}, nil
		}
		return Decision{
			NextPhase: debatestate.PhaseCritique,
			Commands:  commandsFor(snap, taskDefendUnderCritique, challenged...),
			Rationale: "low confidence or conflicting claims after analysis",
		}, nil

	case debatestate.PhaseCritique:
		challenged := agentsCommandedWithTask(snap, taskDefendUnderCritique)
		if len(challenged) == 0 || !roundComplete(snap, challenged...) {
			return Decision{Defer: true}, nil
		}
		return Decision{
			NextPhase: debatestate.PhaseRebuttal,
			Commands:  commandsFor(snap, taskRebutCritique, challenged...),
			Rationale: "critique round complete, issuing rebuttal commands",
		}, nil

	case debatestate.PhaseRebuttal:
		rebutting := agentsCommandedWithTask(snap, taskRebutCritique)
		if len(rebutting) == 0 || !roundComplete(snap, rebutting...) {
			return Decision{Defer: true}, nil
		}
		if snap.Route.LoopRound >= r.maxRounds || judgeReady(snap) {
			return Decision{
				NextPhase: debatestate.PhaseJudgment,
				Commands:  commandsFor(snap, taskSynthesizeJudgment, roleJudgeAgent),
				Rationale: "round budget exhausted or judge-ready",
			}, nil
		}
		return Decision{
			NextPhase: debatestate.PhaseCritique,
			Commands:  commandsFor(snap, taskDefendUnderCritique, rebutting...),
			Rationale: "another critique/rebuttal round",
		}, nil

	case debatestate.PhaseJudgment:
		if snap.FinalResult == nil {
			return Decision{Defer: true}, nil
		}
		return Decision{
			NextPhase: debatestate.PhaseVerification,
			Commands:  commandsFor(snap, taskVerifyFinalResult, roleVerificationAgent),
			Rationale: "judgment complete",
		}, nil

	case debatestate.PhaseVerification:
		if !roundComplete(snap, roleVerificationAgent) {
			return Decision{Defer: true}, nil
		}
		return Decision{NextPhase: debatestate.PhaseReport, Rationale: "verification complete"}, nil

	case debatestate.PhaseReport:
		return Decision{NextPhase: debatestate.PhaseTerminal, Rationale: "report complete"}, nil

	default:
		return Decision{Defer: true}, nil
	}
}

func hasUsableMapping(snap debatestate.Snapshot) bool {
	v, ok := snap.Context["asset_mapping"]
	if !ok {
		return false
	}
	m, ok := v.(map[string]any)
	return ok && len(m) > 0
}

func roundComplete(snap debatestate.Snapshot, agents ...string) bool {
	for _, a := range agents {
		fb, ok := snap.Feedback[a]
		cmd, hasCmd := snap.Commands[a]
		if !hasCmd {
			continue
		}
		if !ok || fb.Round < cmd.IssuedRound {
			return false
		}
	}
	return true
}

// lowConfidenceOrConflictingAgents returns the names of specialists whose
// analysis feedback should be challenged: confidence below
// confidenceThresholdLow, or — once a confidence-weighted majority
// conclusion exists (weightedMajorityChoice) — every specialist whose
// conclusion doesn't match it. Deferring real semantic conflict
// detection to the judge (spec.md §4.5 step 5 leaves claim reconciliation
// to the judgment phase); this only decides whether to route through
// critique first.
func lowConfidenceOrConflictingAgents(snap debatestate.Snapshot) []string {
	seen := make(map[string]bool)
	var low []string
	conclusionOf := make(map[string]string)
	confidenceOf := make(map[string]float64)

	for name, fb := range snap.Feedback {
		confidenceOf[name] = fb.Confidence
		if fb.Confidence < confidenceThresholdLow {
			low = append(low, name)
			seen[name] = true
		}
	}
	for name, out := range snap.AgentOutputs {
		if m, ok := out.(map[string]any); ok {
			if c, ok := m["conclusion"].(string); ok && c != "" {
				conclusionOf[name] = c
			}
		}
	}

	if majority, ok := weightedMajorityChoice(conclusionOf, confidenceOf); ok {
		for name, c := range conclusionOf {
			if c != majority && !seen[name] {
				low = append(low, name)
				seen[name] = true
			}
		}
	}

	return low
}

func agentsCommandedWithTask(snap debatestate.Snapshot, task string) []string {
	var out []string
	for name, cmd := range snap.Commands {
		if cmd.Task == task {
			out = append(out, name)
		}
	}
	return out
}

// judgeReady implements spec.md §4.4's "judge-readiness heuristic (all
// open_questions addressed)".
func judgeReady(snap debatestate.Snapshot) bool {
	for _, fb := range snap.Feedback {
		if len(fb.OpenQuestions) > 0 {
			return false
		}
	}
	return true
}

// commandsFor builds a uniform Command for each target agent, used by
// transitions that hand off a fresh round to a fixed specialist set.
func commandsFor(snap debatestate.Snapshot, task string, agents ...string) map[string]debatestate.Command {
	cmds := make(map[string]debatestate.Command, len(agents))
	for _, a := range agents {
		cmds[a] = debatestate.Command{
			IssuedRound: snap.Route.LoopRound + 1,
			Task:        task,
			UseTool:     debatestate.ToolOptional,
		}
	}
	return cmds
}
