// Package phaseexec implements the Phase Executor (spec.md §4.3): given
// a set of target agents for the current phase, schedules them for
// concurrent execution bounded by a configured concurrency limit, and
// fans in with settle-all semantics — no specialist's failure or
// timeout aborts its siblings.
//
// Grounded on the teacher's internal/debate/protocol/protocol.go
// (PhaseConfig.MaxParallelism, DebateMetrics aggregate-add pattern) for
// the bounded-fan-out shape, and on
// _examples/original_source/.../runtime/langgraph/phase_executor.py
// (asyncio.gather(..., return_exceptions=True) with per-task fallback
// turns) for the settle-all/degrade-don't-fail semantics, translated
// into Go's bounded-goroutine-pool idiom using the teacher's
// golang.org/x/sync dependency.
package phaseexec

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/obs"
)

// Outcome classifies how one target's invocation settled, per spec.md
// §4.3.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
)

// Task is one specialist invocation to schedule; Run must itself honor
// ctx cancellation/deadline.
type Task struct {
	AgentName string
	Run       func(ctx context.Context) (debatestate.Delta, error)
}

// Settled is one task's fan-in result.
type Settled struct {
	AgentName string
	Outcome   Outcome
	Delta     debatestate.Delta
	Err       error
}

// Executor bounds concurrent specialist execution to a fixed limit.
type Executor struct {
	concurrencyLimit int
}

// New constructs an Executor with the given concurrency limit (spec.md
// §4.3 default 4).
func New(concurrencyLimit int) *Executor {
	if concurrencyLimit < 1 {
		concurrencyLimit = 1
	}
	return &Executor{concurrencyLimit: concurrencyLimit}
}

// FanOut runs every task concurrently, bounded by the Executor's
// concurrency limit, waits for all to settle, and returns results
// ordered by settlement time (spec.md §4.3: "messages are appended in
// the order specialists settle").
func (e *Executor) FanOut(ctx context.Context, sessionID string, tasks []Task, perTaskTimeout time.Duration) []Settled {
	sem := semaphore.NewWeighted(int64(e.concurrencyLimit))
	results := make(chan Settled, len(tasks))

	for _, task := range tasks {
		task := task
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- Settled{AgentName: task.AgentName, Outcome: OutcomeFailed, Err: err}
				return
			}
			defer sem.Release(1)

			results <- e.runOne(ctx, sessionID, task, perTaskTimeout)
		}()
	}

	settled := make([]Settled, 0, len(tasks))
	for i := 0; i < len(tasks); i++ {
		settled = append(settled, <-results)
	}

	// Settlement order through the results channel is already
	// production order; re-sorting defensively only breaks ties when two
	// results race onto the channel at the same instant, which Go's
	// channel semantics already serialize in receive order, so no further
	// sort is needed beyond the deterministic tie-break spec.md names for
	// routing (lexicographic by agent name) when used by callers that need it.
	return settled
}

// LexicographicByAgent is a stable-sort helper callers use when a
// deterministic order beyond settlement order is required, e.g. in
// tests, per spec.md §4.2's node-selection tie-break.
func LexicographicByAgent(settled []Settled) []Settled {
	out := make([]Settled, len(settled))
	copy(out, settled)
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out
}

func (e *Executor) runOne(ctx context.Context, sessionID string, task Task, perTaskTimeout time.Duration) Settled {
	taskCtx := ctx
	var cancel context.CancelFunc
	if perTaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, perTaskTimeout)
		defer cancel()
	}

	delta, err := task.Run(taskCtx)
	if err == nil {
		return Settled{AgentName: task.AgentName, Outcome: OutcomeCompleted, Delta: delta}
	}

	// A task's own delta may already carry a feedback record richer than
	// the generic one synthesized below (e.g. agentrunner's FailedConfig
	// summary); only fall back to the generic one when it didn't.
	_, hasFeedback := delta.Feedback[task.AgentName]

	if taskCtx.Err() == context.DeadlineExceeded {
		obs.Session(sessionID).WithField("agent_name", task.AgentName).Warn("specialist timed out")
		if !hasFeedback {
			delta = degradedDelta(task.AgentName, "timeout, please continue without this input")
		}
		return Settled{AgentName: task.AgentName, Outcome: OutcomeTimedOut, Delta: delta, Err: err}
	}

	obs.Session(sessionID).WithField("agent_name", task.AgentName).WithError(err).Warn("specialist failed")
	if !hasFeedback {
		delta = degradedDelta(task.AgentName, err.Error())
	}
	return Settled{AgentName: task.AgentName, Outcome: OutcomeFailed, Delta: delta, Err: err}
}

// degradedDelta synthesizes the standard degraded feedback entry spec.md
// §4.3 requires for timed_out/failed outcomes.
func degradedDelta(agentName, summary string) debatestate.Delta {
	return debatestate.Delta{
		Feedback: map[string]debatestate.Feedback{
			agentName: {Status: debatestate.FeedbackDegraded, Summary: summary},
		},
	}
}
