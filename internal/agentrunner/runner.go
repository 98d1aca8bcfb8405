package agentrunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
	"github.com/sreforge/debate-engine/internal/toolctx"
)

// Runner executes the per-invocation Agent Runner pipeline described in
// spec.md §4.5: prompt construction, tool gating, LLM call, parsing,
// evidence extraction, and feedback composition.
type Runner struct {
	registry *Registry
	gateway  *llmgateway.Gateway
	tools    *toolctx.Service
	modelID  string
}

// New constructs a Runner.
func New(registry *Registry, gateway *llmgateway.Gateway, tools *toolctx.Service, modelID string) *Runner {
	return &Runner{registry: registry, gateway: gateway, tools: tools, modelID: modelID}
}

// Outcome is the result of one agent invocation: the Delta to apply to
// shared state (which carries the chat message to append) and whether
// the run failed on a non-retryable configuration error.
type Outcome struct {
	Delta        debatestate.Delta
	FailedConfig bool // non-retryable configuration error (spec.md §4.5 "status=failed")
}

// ErrUnknownRole is returned when no Descriptor is registered for the
// requested Role — a non-retryable configuration error.
var ErrUnknownRole = errors.New("agentrunner: unknown agent role")

// ErrNoCommand is returned when the supervisor issued no command for a
// role this round — a non-retryable configuration error.
var ErrNoCommand = errors.New("agentrunner: no command issued for this round")

// Run executes one specialist invocation for round cmd.IssuedRound,
// producing a Feedback record and, on success, Evidence and an
// agent_outputs entry, per spec.md §4.5's five numbered steps. emit may
// be nil; the returned error is non-nil only for configuration failures
// and an exhausted LLM Gateway call, so phaseexec's settle-all fan-in can
// tell those apart from a degraded-but-settled round.
func (r *Runner) Run(ctx context.Context, sessionID string, role Role, snap debatestate.Snapshot, timeout time.Duration, retry incident.RetryProfile, emit func(eventstream.Event) error) (Outcome, error) {
	desc, ok := r.registry.Get(role)
	if !ok {
		return Outcome{FailedConfig: true, Delta: debatestate.Delta{
			Feedback: map[string]debatestate.Feedback{
				string(role): {Status: debatestate.FeedbackFailed, Summary: ErrUnknownRole.Error()},
			},
		}}, ErrUnknownRole
	}

	cmd, hasCmd := snap.Commands[string(role)]
	if !hasCmd {
		return Outcome{FailedConfig: true, Delta: debatestate.Delta{
			Feedback: map[string]debatestate.Feedback{
				string(role): {Status: debatestate.FeedbackFailed, Summary: ErrNoCommand.Error()},
			},
		}}, ErrNoCommand
	}

	toolContext, degraded, reason := r.gateTools(ctx, sessionID, string(snap.Route.CurrentPhase), role, desc, cmd, emit)
	if degraded {
		return Outcome{Delta: debatestate.Delta{
			Feedback: map[string]debatestate.Feedback{
				string(role): {Round: cmd.IssuedRound, Status: debatestate.FeedbackDegraded, Summary: reason},
			},
		}}, nil
	}

	prompt := BuildPrompt(desc, string(role), snap, cmd)
	if toolContext != "" {
		prompt += "\n# Tool results\n" + toolContext
	}

	resp, err := r.gateway.Call(ctx, sessionID, string(snap.Route.CurrentPhase), string(role),
		llmgateway.Request{ModelID: r.modelID, Messages: []llmgateway.Message{{Role: "system", Content: prompt}}},
		timeout, retry)
	if err != nil {
		return Outcome{Delta: debatestate.Delta{
			Feedback: map[string]debatestate.Feedback{
				string(role): {Round: cmd.IssuedRound, Status: debatestate.FeedbackDegraded, Summary: fmt.Sprintf("llm gateway exhausted: %v", err)},
			},
		}}, err
	}

	parsed := ParseStructuredOutput(resp.Content)
	evidence := ExtractEvidence(parsed.Fields, string(role))

	fb := composeFeedback(cmd.IssuedRound, parsed, evidence)

	msg := debatestate.Message{
		Role:      debatestate.RoleSpecialist,
		AgentName: string(role),
		Phase:     snap.Route.CurrentPhase,
		Content:   chatMessageOf(parsed.Fields, resp.Content),
		Timestamp: time.Now(),
	}

	_ = emitEvent(emit, sessionID, eventstream.TypeAgentChatMessage, string(snap.Route.CurrentPhase), string(role), map[string]any{
		"content": msg.Content,
	})

	return Outcome{Delta: debatestate.Delta{
		Messages:     []debatestate.Message{msg},
		Evidence:     evidence,
		AgentOutputs: map[string]any{string(role): parsed.Fields},
		Feedback:     map[string]debatestate.Feedback{string(role): fb},
	}}, nil
}

// gateTools resolves the command's tool policy against the agent's own
// AllowedTools and the Tool Context Service, returning rendered tool
// context text, or (degraded=true, reason) when use_tool=required and
// every allowed tool is unavailable, per spec.md §4.5 step 2 / §4.6
// stage 1. The descriptor's AllowedTools is the per-role allow-list the
// gate consults; cmd.ToolTargets, when the supervisor populates it,
// narrows that set further for this round but is never itself the sole
// source of targets.
func (r *Runner) gateTools(ctx context.Context, sessionID, phase string, role Role, desc Descriptor, cmd debatestate.Command, emit func(eventstream.Event) error) (string, bool, string) {
	if cmd.UseTool == debatestate.ToolForbidden || len(desc.AllowedTools) == 0 {
		return "", false, ""
	}

	targets := desc.AllowedTools
	if len(cmd.ToolTargets) > 0 {
		narrowed := make([]toolctx.Kind, 0, len(targets))
		for _, kind := range targets {
			if cmd.ToolTargets[string(kind)] {
				narrowed = append(narrowed, kind)
			}
		}
		targets = narrowed
	}
	if len(targets) == 0 {
		if cmd.UseTool == debatestate.ToolRequired {
			return "", true, "all required tools unavailable"
		}
		return "", false, ""
	}

	_ = emitEvent(emit, sessionID, eventstream.TypeAgentToolContextPrepared, phase, string(role), map[string]any{
		"tool_kinds": toolKindNames(targets),
	})

	var rendered string
	successCount := 0
	for _, kind := range targets {
		res, err := r.tools.Invoke(ctx, sessionID, string(role), kind, toolctx.UsePolicy(cmd.UseTool), targets, map[string]any{"focus": cmd.Focus})
		_ = emitEvent(emit, sessionID, eventstream.TypeAgentToolIO, phase, string(role), map[string]any{
			"tool_kind": string(kind), "status": string(res.Status), "summary": res.Summary,
		})
		if err == nil && res.Status == toolctx.StatusOK {
			successCount++
			rendered += fmt.Sprintf("- %s: %s\n", kind, res.Summary)
		}
	}

	if cmd.UseTool == debatestate.ToolRequired && successCount == 0 {
		return "", true, "all required tools unavailable"
	}

	return rendered, false, ""
}

func toolKindNames(kinds []toolctx.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func emitEvent(emit func(eventstream.Event) error, sessionID string, typ eventstream.Type, phase, agentName string, payload map[string]any) error {
	if emit == nil {
		return nil
	}
	return emit(eventstream.Event{SessionID: sessionID, Type: typ, Phase: phase, AgentName: agentName, Payload: payload})
}

func composeFeedback(round int, parsed ParsedOutput, evidence []debatestate.Evidence) debatestate.Feedback {
	refs := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		refs[ev.EvidenceID] = true
	}

	status := debatestate.FeedbackOK
	if !parsed.StructuredOK {
		status = debatestate.FeedbackDegraded
	}

	return debatestate.Feedback{
		Round:         round,
		Status:        status,
		Summary:       stringField(parsed.Fields, "conclusion", stringField(parsed.Fields, "analysis", "")),
		EvidenceRefs:  refs,
		Confidence:    floatField(parsed.Fields, "confidence", 0.5),
		MissingInfo:   stringListField(parsed.Fields, "missing_info"),
		OpenQuestions: stringListField(parsed.Fields, "open_questions"),
		StructuredOK:  parsed.StructuredOK,
	}
}

func chatMessageOf(fields map[string]any, fallback string) string {
	if s := stringField(fields, "chat_message", ""); s != "" {
		return s
	}
	return fallback
}

func stringField(fields map[string]any, key, def string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func floatField(fields map[string]any, key string, def float64) float64 {
	if v, ok := fields[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func stringListField(fields map[string]any, key string) []string {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
