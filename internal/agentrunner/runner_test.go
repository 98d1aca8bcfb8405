package agentrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
	"github.com/sreforge/debate-engine/internal/metrics"
	"github.com/sreforge/debate-engine/internal/toolctx"
)

func init() { metrics.Init() }

type fakeProvider struct{ content string }

func (p fakeProvider) Complete(context.Context, llmgateway.Request) (llmgateway.Response, error) {
	return llmgateway.Response{Content: p.content, Usage: llmgateway.Usage{PromptTokens: 5, CompletionTokens: 5}}, nil
}

func baseSnapshot(cmd debatestate.Command) debatestate.Snapshot {
	return debatestate.Snapshot{
		Context:  map[string]any{"incident_summary": "service X is crashing"},
		Commands: map[string]debatestate.Command{string(RoleLogAgent): cmd},
		Route:    debatestate.Route{CurrentPhase: debatestate.PhaseAnalysis},
	}
}

func TestRunnerHappyPath(t *testing.T) {
	gw := llmgateway.New(fakeProvider{content: `{"chat_message": "found it", "analysis": "oom", "confidence": 0.8, "evidence_chain": ["log line 42: oom-killer invoked"]}`}, nil)
	tools := toolctx.NewService(nil, nil)
	runner := New(NewRegistry(), gw, tools, "model-x")

	cmd := debatestate.Command{IssuedRound: 1, Task: "find root cause", UseTool: debatestate.ToolForbidden}
	snap := baseSnapshot(cmd)

	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{MaxRetries: 0}, nil)

	require.NoError(t, err)
	require.False(t, outcome.FailedConfig)
	fb := outcome.Delta.Feedback[string(RoleLogAgent)]
	assert.Equal(t, debatestate.FeedbackOK, fb.Status)
	assert.Equal(t, 0.8, fb.Confidence)
	require.Len(t, outcome.Delta.Evidence, 1)
	assert.Equal(t, debatestate.SourceLog, outcome.Delta.Evidence[0].SourceKind)
}

func TestRunnerMissingCommandIsFailedConfig(t *testing.T) {
	gw := llmgateway.New(fakeProvider{}, nil)
	runner := New(NewRegistry(), gw, toolctx.NewService(nil, nil), "model-x")

	snap := debatestate.Snapshot{Route: debatestate.Route{CurrentPhase: debatestate.PhaseAnalysis}}
	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{}, nil)

	require.ErrorIs(t, err, ErrNoCommand)
	assert.True(t, outcome.FailedConfig)
	assert.Equal(t, debatestate.FeedbackFailed, outcome.Delta.Feedback[string(RoleLogAgent)].Status)
}

func TestRunnerRequiredToolUnavailableDegrades(t *testing.T) {
	gw := llmgateway.New(fakeProvider{content: "unused"}, nil)
	tools := toolctx.NewService(map[string]bool{}, nil) // nothing enabled
	runner := New(NewRegistry(), gw, tools, "model-x")

	cmd := debatestate.Command{
		IssuedRound: 1,
		UseTool:     debatestate.ToolRequired,
		ToolTargets: map[string]bool{string(toolctx.KindLocalLogReader): true},
	}
	snap := baseSnapshot(cmd)

	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{}, nil)
	require.NoError(t, err)
	fb := outcome.Delta.Feedback[string(RoleLogAgent)]
	assert.Equal(t, debatestate.FeedbackDegraded, fb.Status)
	assert.Contains(t, fb.Summary, "unavailable")
}

// TestRunnerGatesToolsFromDescriptorWithoutToolTargets confirms the
// capability gate fires purely from the role's own Descriptor.AllowedTools
// when the supervisor issues a command with use_tool=optional and never
// populates ToolTargets — the shape every live rule-based/LLM-dynamic
// command currently takes.
func TestRunnerGatesToolsFromDescriptorWithoutToolTargets(t *testing.T) {
	gw := llmgateway.New(fakeProvider{content: `{"chat_message": "ok", "analysis": "oom", "confidence": 0.5}`}, nil)
	tools := toolctx.NewService(map[string]bool{string(toolctx.KindLocalLogReader): true, string(toolctx.KindMetricsSnapshotAnalyzer): true}, nil)
	tools.Register(toolctx.NewStub(toolctx.KindLocalLogReader, toolctx.Result{Status: toolctx.StatusOK, Summary: "log reader ok"}, nil))
	tools.Register(toolctx.NewStub(toolctx.KindMetricsSnapshotAnalyzer, toolctx.Result{Status: toolctx.StatusOK, Summary: "metrics ok"}, nil))
	runner := New(NewRegistry(), gw, tools, "model-x")

	var captured []eventstream.Event
	emit := func(e eventstream.Event) error {
		captured = append(captured, e)
		return nil
	}

	cmd := debatestate.Command{IssuedRound: 1, UseTool: debatestate.ToolOptional}
	snap := baseSnapshot(cmd)

	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{}, emit)
	require.NoError(t, err)
	assert.Equal(t, debatestate.FeedbackOK, outcome.Delta.Feedback[string(RoleLogAgent)].Status)

	require.Len(t, tools.AuditTrail("s1"), 2, "both of LogAgent's allowed tools should have been invoked")

	var sawPrepared, sawIO int
	for _, e := range captured {
		switch e.Type {
		case eventstream.TypeAgentToolContextPrepared:
			sawPrepared++
		case eventstream.TypeAgentToolIO:
			sawIO++
		}
	}
	assert.Equal(t, 1, sawPrepared)
	assert.Equal(t, 2, sawIO)
}

// TestRunnerToolTargetsNarrowsDescriptorAllowList confirms that when the
// supervisor does populate ToolTargets, it narrows (rather than replaces)
// the descriptor's own allow-list.
func TestRunnerToolTargetsNarrowsDescriptorAllowList(t *testing.T) {
	gw := llmgateway.New(fakeProvider{content: `{"chat_message": "ok", "analysis": "oom"}`}, nil)
	tools := toolctx.NewService(map[string]bool{string(toolctx.KindLocalLogReader): true, string(toolctx.KindMetricsSnapshotAnalyzer): true}, nil)
	tools.Register(toolctx.NewStub(toolctx.KindLocalLogReader, toolctx.Result{Status: toolctx.StatusOK, Summary: "log reader ok"}, nil))
	tools.Register(toolctx.NewStub(toolctx.KindMetricsSnapshotAnalyzer, toolctx.Result{Status: toolctx.StatusOK, Summary: "metrics ok"}, nil))
	runner := New(NewRegistry(), gw, tools, "model-x")

	cmd := debatestate.Command{
		IssuedRound: 1,
		UseTool:     debatestate.ToolOptional,
		ToolTargets: map[string]bool{string(toolctx.KindLocalLogReader): true},
	}
	snap := baseSnapshot(cmd)

	_, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{}, nil)
	require.NoError(t, err)

	require.Len(t, tools.AuditTrail("s1"), 1, "only the narrowed target should have been invoked")
	assert.Equal(t, string(toolctx.KindLocalLogReader), tools.AuditTrail("s1")[0].Action)
}

func TestRunnerUnknownRoleReturnsError(t *testing.T) {
	gw := llmgateway.New(fakeProvider{}, nil)
	runner := New(NewRegistry(), gw, toolctx.NewService(nil, nil), "model-x")

	snap := debatestate.Snapshot{Route: debatestate.Route{CurrentPhase: debatestate.PhaseAnalysis}}
	outcome, err := runner.Run(context.Background(), "s1", Role("NotARole"), snap, time.Second, incident.RetryProfile{}, nil)

	require.ErrorIs(t, err, ErrUnknownRole)
	assert.True(t, outcome.FailedConfig)
}

// TestRunnerGatewayExhaustionReturnsError confirms an exhausted LLM
// Gateway call surfaces as a non-nil error alongside the degraded
// Outcome, so phaseexec's settle-all fan-in can classify it as
// failed/timed_out instead of silently reporting completed.
func TestRunnerGatewayExhaustionReturnsError(t *testing.T) {
	gw := llmgateway.New(alwaysFailProvider{}, nil)
	runner := New(NewRegistry(), gw, toolctx.NewService(nil, nil), "model-x")

	cmd := debatestate.Command{IssuedRound: 1, UseTool: debatestate.ToolForbidden}
	snap := baseSnapshot(cmd)

	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{MaxRetries: 0}, nil)
	require.Error(t, err)
	assert.Equal(t, debatestate.FeedbackDegraded, outcome.Delta.Feedback[string(RoleLogAgent)].Status)
}

type alwaysFailProvider struct{}

func (alwaysFailProvider) Complete(context.Context, llmgateway.Request) (llmgateway.Response, error) {
	return llmgateway.Response{}, errors.New("permanent upstream failure")
}

func TestRunnerUnparsableOutputDegrades(t *testing.T) {
	gw := llmgateway.New(fakeProvider{content: "   "}, nil)
	runner := New(NewRegistry(), gw, toolctx.NewService(nil, nil), "model-x")

	cmd := debatestate.Command{IssuedRound: 1, UseTool: debatestate.ToolForbidden}
	snap := baseSnapshot(cmd)

	outcome, err := runner.Run(context.Background(), "s1", RoleLogAgent, snap, time.Second, incident.RetryProfile{}, nil)
	require.NoError(t, err)
	fb := outcome.Delta.Feedback[string(RoleLogAgent)]
	assert.Equal(t, debatestate.FeedbackDegraded, fb.Status)
	assert.False(t, fb.StructuredOK)
}
