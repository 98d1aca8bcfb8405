package phaseexec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

func TestFanOutSettlesAllEvenOnFailureAndTimeout(t *testing.T) {
	e := New(2)

	tasks := []Task{
		{AgentName: "LogAgent", Run: func(ctx context.Context) (debatestate.Delta, error) {
			return debatestate.Delta{AgentOutputs: map[string]any{"LogAgent": "ok"}}, nil
		}},
		{AgentName: "DomainAgent", Run: func(ctx context.Context) (debatestate.Delta, error) {
			return debatestate.Delta{}, errors.New("boom")
		}},
		{AgentName: "CodeAgent", Run: func(ctx context.Context) (debatestate.Delta, error) {
			<-ctx.Done()
			return debatestate.Delta{}, ctx.Err()
		}},
	}

	settled := e.FanOut(context.Background(), "s1", tasks, 20*time.Millisecond)
	require.Len(t, settled, 3)

	byName := map[string]Settled{}
	for _, s := range settled {
		byName[s.AgentName] = s
	}

	assert.Equal(t, OutcomeCompleted, byName["LogAgent"].Outcome)
	assert.Equal(t, OutcomeFailed, byName["DomainAgent"].Outcome)
	assert.Equal(t, OutcomeTimedOut, byName["CodeAgent"].Outcome)
	assert.Equal(t, debatestate.FeedbackDegraded, byName["DomainAgent"].Delta.Feedback["DomainAgent"].Status)
	assert.Equal(t, debatestate.FeedbackDegraded, byName["CodeAgent"].Delta.Feedback["CodeAgent"].Status)
}

func TestFanOutPreservesTasksOwnFeedbackOnFailure(t *testing.T) {
	e := New(2)

	tasks := []Task{
		{AgentName: "LogAgent", Run: func(ctx context.Context) (debatestate.Delta, error) {
			return debatestate.Delta{
				Feedback: map[string]debatestate.Feedback{
					"LogAgent": {Status: debatestate.FeedbackFailed, Summary: "unknown agent role"},
				},
			}, errors.New("agentrunner: unknown agent role")
		}},
	}

	settled := e.FanOut(context.Background(), "s1", tasks, 0)
	require.Len(t, settled, 1)

	assert.Equal(t, OutcomeFailed, settled[0].Outcome)
	assert.Equal(t, debatestate.FeedbackFailed, settled[0].Delta.Feedback["LogAgent"].Status)
	assert.Equal(t, "unknown agent role", settled[0].Delta.Feedback["LogAgent"].Summary)
}

func TestFanOutRespectsConcurrencyLimit(t *testing.T) {
	e := New(1)

	var running int32
	var maxObserved int32
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = Task{AgentName: "agent", Run: func(ctx context.Context) (debatestate.Delta, error) {
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&maxObserved) {
				atomic.StoreInt32(&maxObserved, n)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return debatestate.Delta{}, nil
		}}
	}

	e.FanOut(context.Background(), "s1", tasks, 0)
	assert.LessOrEqual(t, int(maxObserved), 1)
}

func TestLexicographicByAgent(t *testing.T) {
	settled := []Settled{{AgentName: "DomainAgent"}, {AgentName: "CodeAgent"}, {AgentName: "LogAgent"}}
	sorted := LexicographicByAgent(settled)
	assert.Equal(t, []string{"CodeAgent", "DomainAgent", "LogAgent"},
		[]string{sorted[0].AgentName, sorted[1].AgentName, sorted[2].AgentName})
}
