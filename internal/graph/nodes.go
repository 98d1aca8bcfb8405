package graph

import (
	"context"
	"time"

	"github.com/sreforge/debate-engine/internal/agentrunner"
	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/phaseexec"
	"github.com/sreforge/debate-engine/internal/reportguard"
	"github.com/sreforge/debate-engine/internal/supervisor"
)

// funcNode adapts a plain function to Node, matching spec.md §4.2's
// "Node contract: async (state) -> delta" without requiring every node
// to be its own named type.
type funcNode struct {
	name string
	run  func(ctx context.Context, s *debatestate.State) (debatestate.Delta, error)
}

func (n funcNode) Name() string { return n.name }
func (n funcNode) Run(ctx context.Context, s *debatestate.State) (debatestate.Delta, error) {
	return n.run(ctx, s)
}

// NewFuncNode builds a Node from a name and a run function, for nodes
// simple enough not to warrant a dedicated type.
func NewFuncNode(name string, run func(ctx context.Context, s *debatestate.State) (debatestate.Delta, error)) Node {
	return funcNode{name: name, run: run}
}

// InitSessionNode advances route from init to asset_mapping and emits
// session_started, per spec.md's registered node list.
func InitSessionNode(sessionID string, emit func(eventstream.Event) error) Node {
	return NewFuncNode("init_session", func(_ context.Context, s *debatestate.State) (debatestate.Delta, error) {
		_ = emitEvent(emit, sessionID, eventstream.TypeSessionStarted, "init", nil)
		return debatestate.Delta{
			Route: &debatestate.RouteDelta{CurrentPhase: debatestate.PhaseAssetMapping},
		}, nil
	})
}

// CollectAssetsNode derives a minimal asset_mapping from the incident's
// service and environment fields, per spec.md's
// "has_usable_mapping" precondition on the rule-based supervisor's first
// transition.
func CollectAssetsNode(sessionID string, inc incident.Incident, emit func(eventstream.Event) error) Node {
	return NewFuncNode("collect_assets", func(_ context.Context, s *debatestate.State) (debatestate.Delta, error) {
		mapping := map[string]any{
			"service":     inc.Service,
			"environment": inc.Environment,
		}
		_ = emitEvent(emit, sessionID, eventstream.TypeAssetInterfaceMappingComplete, "asset_mapping", mapping)
		return debatestate.Delta{
			Context: map[string]any{"asset_mapping": mapping},
		}, nil
	})
}

// SupervisorDecideNode consults the Supervisor Router for the next
// phase and per-agent commands, applying them as a single delta
// (spec.md §4.4).
func SupervisorDecideNode(sessionID string, router *supervisor.Router, emit func(eventstream.Event) error) Node {
	return NewFuncNode("supervisor_decide", func(ctx context.Context, s *debatestate.State) (debatestate.Delta, error) {
		snap := s.Snapshot()
		decision, err := router.Decide(ctx, snap)
		if err != nil {
			return debatestate.Delta{}, err
		}

		_ = emitEvent(emit, sessionID, eventstream.TypePhaseChanged, string(decision.NextPhase), map[string]any{
			"rationale": decision.Rationale,
		})
		for agent, cmd := range decision.Commands {
			_ = emitEvent(emit, sessionID, eventstream.TypeAgentCommandIssued, string(decision.NextPhase), map[string]any{
				"agent_name": agent, "task": cmd.Task,
			})
		}

		loopRound := snap.Route.LoopRound
		if decision.NextPhase == debatestate.PhaseCritique || decision.NextPhase == debatestate.PhaseRebuttal {
			loopRound++
		}

		return debatestate.Delta{
			Commands: decision.Commands,
			Route: &debatestate.RouteDelta{
				CurrentPhase: decision.NextPhase,
				LoopRound:    loopRound,
			},
		}, nil
	})
}

// AggregateNode fans the current round's pending specialist commands out
// through the Phase Executor and Agent Runner concurrently, merging
// every settled delta, per spec.md §4.3. It stands in for the "one
// agent_<name>_node per specialist" the spec names, since their actual
// execution is the Phase Executor's bounded concurrent fan-out rather
// than independent graph hops.
func AggregateNode(sessionID string, executor *phaseexec.Executor, runner *agentrunner.Runner, timeouts map[string]time.Duration, retries map[string]incident.RetryProfile, emit func(eventstream.Event) error) Node {
	return NewFuncNode("aggregate", func(ctx context.Context, s *debatestate.State) (debatestate.Delta, error) {
		snap := s.Snapshot()
		phase := string(snap.Route.CurrentPhase)

		var tasks []phaseexec.Task
		for agentName, cmd := range snap.Commands {
			fb, has := snap.Feedback[agentName]
			if has && fb.Round >= cmd.IssuedRound {
				continue // already settled this round
			}
			agentName := agentName
			tasks = append(tasks, phaseexec.Task{
				AgentName: agentName,
				Run: func(taskCtx context.Context) (debatestate.Delta, error) {
					outcome, err := runner.Run(taskCtx, sessionID, agentrunner.Role(agentName), snap, timeouts[phase], retries[phase], emit)
					return outcome.Delta, err
				},
			})
		}

		if len(tasks) == 0 {
			return debatestate.Delta{}, nil
		}

		settled := executor.FanOut(ctx, sessionID, tasks, timeouts[phase])

		if err := ctx.Err(); err != nil {
			return debatestate.Delta{}, err
		}

		merged := debatestate.Delta{
			Feedback:     map[string]debatestate.Feedback{},
			AgentOutputs: map[string]any{},
		}
		for _, r := range settled {
			_ = emitEvent(emit, sessionID, eventstream.TypeAgentRound, phase, map[string]any{
				"agent_name": r.AgentName, "outcome": string(r.Outcome),
			})
			merged.Messages = append(merged.Messages, r.Delta.Messages...)
			merged.Evidence = append(merged.Evidence, r.Delta.Evidence...)
			for k, v := range r.Delta.Feedback {
				merged.Feedback[k] = v
			}
			for k, v := range r.Delta.AgentOutputs {
				merged.AgentOutputs[k] = v
			}
		}
		return merged, nil
	})
}

// JudgeNode and VerifyNode are thin wrappers that route
// through AggregateNode's same specialist-invocation machinery for the
// single-agent JudgeAgent/VerificationAgent roles, keeping the judgment
// and verification phases in the same fan-out shape as analysis even
// though each phase only ever has one command outstanding.
func JudgeNode(sessionID string, executor *phaseexec.Executor, runner *agentrunner.Runner, timeouts map[string]time.Duration, retries map[string]incident.RetryProfile, emit func(eventstream.Event) error) Node {
	inner := AggregateNode(sessionID, executor, runner, timeouts, retries, emit)
	return NewFuncNode("judge", func(ctx context.Context, s *debatestate.State) (debatestate.Delta, error) {
		delta, err := inner.Run(ctx, s)
		if err != nil {
			return delta, err
		}
		if out, ok := delta.AgentOutputs[string(agentrunner.RoleJudgeAgent)]; ok {
			known := append(append([]debatestate.Evidence{}, s.Snapshot().Evidence...), delta.Evidence...)
			if fr := finalResultFrom(out, known); fr != nil {
				delta.FinalResult = fr
				_ = emitEvent(emit, sessionID, eventstream.TypeResultReady, "judgment", map[string]any{
					"root_cause": fr.RootCause,
				})
			}
		}
		return delta, nil
	})
}

// finalResultFrom translates the JudgeAgent's parsed structured output
// into a debatestate.FinalResult, returning nil when the judge produced
// no root_cause (e.g. a degraded round), in which case invariant I4's
// set-once write is simply skipped for this round. evidence_chain
// entries are resolved against known evidence by evidence_id or by
// canonicalized source_ref, since the judge LLM cites source references
// in free text rather than reproducing the content-derived hash.
func finalResultFrom(parsedFields any, known []debatestate.Evidence) *debatestate.FinalResult {
	m, ok := parsedFields.(map[string]any)
	if !ok {
		return nil
	}
	rootCause, _ := m["root_cause"].(string)
	if rootCause == "" {
		rootCause, _ = m["conclusion"].(string)
	}
	if rootCause == "" {
		return nil
	}

	confidence, _ := m["confidence"].(float64)
	impact, _ := m["impact"].(string)
	fix, _ := m["fix_recommendation"].(string)
	plan, _ := m["verification_plan"].(string)
	risk, _ := m["risk_level"].(string)

	byID := make(map[string]bool, len(known))
	byRef := make(map[string]string, len(known))
	for _, ev := range known {
		byID[ev.EvidenceID] = true
		byRef[debatestate.CanonicalizeSourceRef(ev.SourceRef)] = ev.EvidenceID
	}

	var chain []string
	if raw, ok := m["evidence_chain"].([]any); ok {
		for _, v := range raw {
			s, ok := v.(string)
			if !ok || s == "" {
				continue
			}
			if byID[s] {
				chain = append(chain, s)
				continue
			}
			if id, ok := byRef[debatestate.CanonicalizeSourceRef(s)]; ok {
				chain = append(chain, id)
			}
		}
	}

	return &debatestate.FinalResult{
		RootCause:         rootCause,
		Confidence:        confidence,
		EvidenceChain:     chain,
		Impact:            impact,
		FixRecommendation: fix,
		VerificationPlan:  plan,
		RiskLevel:         risk,
	}
}

func VerifyNode(sessionID string, executor *phaseexec.Executor, runner *agentrunner.Runner, timeouts map[string]time.Duration, retries map[string]incident.RetryProfile, emit func(eventstream.Event) error) Node {
	n := AggregateNode(sessionID, executor, runner, timeouts, retries, emit)
	return NewFuncNode("verify", n.Run)
}

// ReportNode runs the Report Guard against the session's final_result
// before the session would hand off to the external Report Service
// (spec.md §4.10). A rejection is returned as a *reportguard.RejectionError,
// which the caller (internal/session) maps to a FAILED session status
// with error_code=NO_VALID_CONCLUSION.
func ReportNode(sessionID string, cfg reportguard.Config, emit func(eventstream.Event) error) Node {
	return NewFuncNode("report", func(_ context.Context, s *debatestate.State) (debatestate.Delta, error) {
		snap := s.Snapshot()
		if snap.FinalResult == nil {
			return debatestate.Delta{}, &reportguard.RejectionError{
				ErrorCode: reportguard.ErrorCodeNoValidConclusion,
				Reason:    "no final_result was produced by the judgment phase",
				RetryHint: "retry the judgment phase",
			}
		}
		if err := reportguard.Validate(*snap.FinalResult, snap.Evidence, cfg); err != nil {
			return debatestate.Delta{}, err
		}
		_ = emitEvent(emit, sessionID, eventstream.TypeSessionCompleted, "report", map[string]any{
			"root_cause": snap.FinalResult.RootCause,
		})
		return debatestate.Delta{
			Route: &debatestate.RouteDelta{CurrentPhase: debatestate.PhaseTerminal},
		}, nil
	})
}

// TerminalNode is a no-op sink; the routing function returns END once
// route.current_phase reaches terminal, so this node's Run is never
// actually invoked in normal operation, but it is registered so the
// graph's node map stays total over every phase name.
func TerminalNode() Node {
	return NewFuncNode("terminal", func(_ context.Context, _ *debatestate.State) (debatestate.Delta, error) {
		return debatestate.Delta{}, nil
	})
}

func emitEvent(emit func(eventstream.Event) error, sessionID string, typ eventstream.Type, phase string, payload map[string]any) error {
	if emit == nil {
		return nil
	}
	return emit(eventstream.Event{SessionID: sessionID, Type: typ, Phase: phase, Payload: payload})
}
