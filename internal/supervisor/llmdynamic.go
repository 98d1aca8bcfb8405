package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/sreforge/debate-engine/internal/agentrunner"
	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
)

// supervisorPrompt is the fixed system prompt for the judge/supervisor
// LLM consulted by LLMDynamic, grounded on original_source's
// `_run_problem_analysis_supervisor_router` prompt shape: current phase,
// pending feedback, and a request for a structured next-step decision.
const supervisorPrompt = `You are the debate supervisor. Given the current phase and the ` +
	`specialists' feedback so far, decide the single next phase to advance to ` +
	`and which agents (if any) should receive a fresh command. Respond as a ` +
	`single JSON object with keys "next_phase", "agents" (array of agent ` +
	`names), "task", and "rationale". If you have no opinion, respond with ` +
	`{"defer": true}.`

// LLMDynamic is the LLM-consulting decider: in hybrid mode it is invoked
// only when RuleBased defers or is rejected, and in llm mode it is tried
// first (see NewForMode). Grounded on original_source's DynamicLLMRouter.decide,
// which delegates to the orchestrator's supervisor-router LLM call plus
// `_route_from_commander_output` parsing.
type LLMDynamic struct {
	gateway *llmgateway.Gateway
	modelID string
	timeout time.Duration
	retry   incident.RetryProfile
}

// NewLLMDynamic constructs an LLMDynamic decider.
func NewLLMDynamic(gateway *llmgateway.Gateway, modelID string, timeout time.Duration, retry incident.RetryProfile) *LLMDynamic {
	return &LLMDynamic{gateway: gateway, modelID: modelID, timeout: timeout, retry: retry}
}

func (d *LLMDynamic) Decide(ctx context.Context, snap debatestate.Snapshot) (Decision, error) {
	prompt := supervisorPrompt + "\n\n" + agentrunner.BuildPrompt(
		agentrunner.Descriptor{Role: agentrunner.RoleSupervisorAgent, SystemPrompt: supervisorPrompt},
		"SupervisorAgent", snap, debatestate.Command{IssuedRound: snap.Route.LoopRound},
	)

	resp, err := d.gateway.Call(ctx, "", string(snap.Route.CurrentPhase), "SupervisorAgent",
		llmgateway.Request{ModelID: d.modelID, Messages: []llmgateway.Message{{Role: "system", Content: prompt}}},
		d.timeout, d.retry)
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: llm dynamic decider call failed: %w", err)
	}

	parsed := agentrunner.ParseStructuredOutput(resp.Content)
	if !parsed.StructuredOK {
		return Decision{Defer: true}, nil
	}
	if v, ok := parsed.Fields["defer"].(bool); ok && v {
		return Decision{Defer: true}, nil
	}

	nextPhase, _ := parsed.Fields["next_phase"].(string)
	if nextPhase == "" || !debatestate.IsValidPhase(debatestate.Phase(nextPhase)) {
		return Decision{Defer: true}, nil
	}

	rationale, _ := parsed.Fields["rationale"].(string)
	task, _ := parsed.Fields["task"].(string)

	var agentNames []string
	if raw, ok := parsed.Fields["agents"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok && s != "" {
				agentNames = append(agentNames, s)
			}
		}
	}

	var commands map[string]debatestate.Command
	if len(agentNames) > 0 {
		commands = make(map[string]debatestate.Command, len(agentNames))
		for _, name := range agentNames {
			commands[name] = debatestate.Command{
				IssuedRound: snap.Route.LoopRound + 1,
				Task:        task,
				UseTool:     debatestate.ToolOptional,
			}
		}
	}

	return Decision{
		NextPhase: debatestate.Phase(nextPhase),
		Commands:  commands,
		Rationale: rationale,
	}, nil
}
