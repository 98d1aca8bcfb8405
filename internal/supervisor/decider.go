// Package supervisor implements the Supervisor Router (spec.md §4.4):
// two layered deciders — a deterministic rule-based decider and an
// LLM-dynamic decider — composed according to a session's supervisor_mode
// (rule/llm/hybrid), the Open Question spec.md leaves unresolved. In
// hybrid mode the rule-based decider is tried first and the LLM-dynamic
// decider is consulted only when it defers or is rejected.
//
// Grounded on
// _examples/original_source/.../runtime/langgraph/routing_strategy.py
// (RoutingStrategy protocol, RuleBasedRouter, DynamicLLMRouter,
// HybridRouter, StrategyResult), translated from the original's
// orchestrator-threaded Protocol classes into a Go Decider interface
// plus three concrete implementations wired by incident.SupervisorMode.
package supervisor

import (
	"context"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

// Decision is a supervisor's routing output: which agents act next and
// what to command them, per spec.md §4.4's supervisor->specialist
// command protocol fields.
type Decision struct {
	NextPhase debatestate.Phase
	Commands  map[string]debatestate.Command
	Rationale string
	Defer     bool // true means "no opinion, try the next decider"
}

// Decider is one layer of the Supervisor Router.
type Decider interface {
	Decide(ctx context.Context, snap debatestate.Snapshot) (Decision, error)
}

// ErrNoDecision is returned by Router.Decide when every configured
// Decider defers.
type ErrNoDecision struct{}

func (ErrNoDecision) Error() string { return "supervisor: no decider produced a decision" }

// Router tries its deciders in order, per spec.md §4.4: "Two layered
// deciders, tried in order". A decider whose Decision violates
// invariant I3 is rejected and the router falls through to the next
// decider — spec.md §4.4: "Must reject a decision that violates the
// phase-order invariant (falls back to rule-based default)".
type Router struct {
	deciders []Decider
}

// NewRouter builds a Router from an ordered decider list.
func NewRouter(deciders ...Decider) *Router {
	return &Router{deciders: deciders}
}

func (r *Router) Decide(ctx context.Context, snap debatestate.Snapshot) (Decision, error) {
	for _, d := range r.deciders {
		decision, err := d.Decide(ctx, snap)
		if err != nil || decision.Defer {
			continue
		}
		if !debatestate.IsMonotoneAdvance(snap.Route.CurrentPhase, decision.NextPhase) {
			continue // reject: would violate I3, fall through to next decider
		}
		return decision, nil
	}
	return Decision{}, ErrNoDecision{}
}
