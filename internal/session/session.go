// Package session implements the Session Service (spec.md §4.9): the
// lifecycle wrapper that creates a debate session, launches its graph
// executor as a background task, exposes a subscribable event stream,
// and supports cooperative cancellation, checkpoint resume, and a
// retry-failed-only recovery path.
//
// Grounded on teacher internal/debate/orchestrator/adapter.go's
// legacy<->new config bridging pattern, generalized here to wiring a
// session's incident.SessionConfig into the concrete component graph,
// and on original_source's backend/app/services/debate_service.py
// (DebateService) for the lifecycle method set and semantics.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sreforge/debate-engine/internal/agentrunner"
	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/graph"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
	"github.com/sreforge/debate-engine/internal/metrics"
	"github.com/sreforge/debate-engine/internal/obs"
	"github.com/sreforge/debate-engine/internal/phaseexec"
	"github.com/sreforge/debate-engine/internal/reportguard"
	"github.com/sreforge/debate-engine/internal/store"
	"github.com/sreforge/debate-engine/internal/supervisor"
	"github.com/sreforge/debate-engine/internal/toolctx"
)

// ErrSessionNotFound is returned by any Service method addressing an
// unknown session id.
var ErrSessionNotFound = errors.New("session: not found")

// ErrNothingToRetry is returned by RetryFailedOnly when no agent in the
// session's last round settled as failed or degraded.
var ErrNothingToRetry = errors.New("session: no failed or degraded agents to retry")

// ErrFinalResultTimeout is returned by FinalResult when the caller-
// supplied timeout elapses, or the session's run ends, before a
// final_result is written.
var ErrFinalResultTimeout = errors.New("session: timed out waiting for final_result")

// Deps bundles the shared, long-lived collaborators a Service wires into
// every session's component graph. One Deps is normally shared across
// all sessions in a process.
type Deps struct {
	Store      store.SessionStore
	Dispatcher *eventstream.Dispatcher
	Gateway    *llmgateway.Gateway
	Tools      *toolctx.Service
	Registry   *agentrunner.Registry
	ModelID    string
}

type liveSession struct {
	mu      sync.Mutex
	session *incident.Session
	state   *debatestate.State
	cancel  context.CancelFunc
	done    chan struct{}
}

// Service is the Session Service named in spec.md §4.9.
type Service struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*liveSession
	audit    *auditLog
}

// New constructs a Service bound to deps.
func New(deps Deps) *Service {
	return &Service{deps: deps, sessions: make(map[string]*liveSession), audit: newAuditLog()}
}

// Create allocates a new Session bound to inc, validating cfg eagerly
// per spec.md §7's "invalid configuration is a fatal error surfaced
// immediately". The session starts PENDING and is not yet running.
func (s *Service) Create(inc incident.Incident, cfg incident.SessionConfig) (*incident.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &incident.Session{
		ID:        inc.ID,
		Incident:  inc,
		Status:    incident.StatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &liveSession{session: sess, state: debatestate.New()}
	s.audit.record(sess.ID, AuditSessionCreated, fmt.Sprintf("incident=%s service=%s severity=%s", inc.ID, inc.Service, inc.Severity))
	return sess, nil
}

func (s *Service) get(sessionID string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

// Start launches the graph executor for sessionID as a background task
// (spec.md §4.9) and returns immediately; the session transitions
// PENDING -> RUNNING before the goroutine is spawned.
func (s *Service) Start(ctx context.Context, sessionID string) error {
	ls, err := s.get(sessionID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if err := ls.session.Transition(incident.StatusRunning); err != nil {
		ls.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	ls.done = make(chan struct{})
	inc := ls.session.Incident
	cfg := ls.session.Config
	st := ls.state
	ls.mu.Unlock()

	s.audit.record(sessionID, AuditSessionStarted, "graph executor launched at init_session")
	g := s.buildGraph(sessionID, inc, cfg)
	go s.pump(ctx, sessionID, ls, func() (string, error) { return g.Run(runCtx, sessionID, st, "init_session") })
	return nil
}

// pump runs runGraph to completion (or cancellation/failure) and
// reconciles the session's terminal status, per spec.md §4.9/§7.
func (s *Service) pump(_ context.Context, sessionID string, ls *liveSession, runGraph func() (string, error)) {
	defer close(ls.done)

	logger := obs.Session(sessionID)
	_, err := runGraph()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch {
	case errors.Is(err, graph.ErrCancelled):
		_ = ls.session.Transition(incident.StatusCancelled)
		s.audit.record(sessionID, AuditSessionCancelled, "graph executor observed cancellation")
		_ = s.deps.Dispatcher.EmitFrom("session", eventstream.Event{
			SessionID: sessionID, Type: eventstream.TypeSessionCancelled,
		})
	case err != nil:
		var rej *reportguard.RejectionError
		code, msg, hint := "INTERNAL_ERROR", err.Error(), ""
		if errors.As(err, &rej) {
			code, msg, hint = rej.ErrorCode, rej.Reason, rej.RetryHint
			s.audit.record(sessionID, AuditReportRejected, fmt.Sprintf("%s: %s", code, msg))
		}
		ls.session.ErrorCode, ls.session.ErrorMsg, ls.session.RetryHint = code, msg, hint
		if terr := ls.session.Transition(incident.StatusFailed); terr != nil {
			logger.WithError(terr).Warn("session: could not transition to failed")
		}
		s.audit.record(sessionID, AuditSessionFailed, fmt.Sprintf("%s: %s", code, msg))
		_ = s.deps.Dispatcher.EmitFrom("session", eventstream.Event{
			SessionID: sessionID, Type: eventstream.TypeSessionFailed,
			Payload: map[string]any{"error_code": code, "reason": msg},
		})
	default:
		if terr := ls.session.Transition(incident.StatusCompleted); terr != nil {
			logger.WithError(terr).Warn("session: could not transition to completed")
		}
		s.audit.record(sessionID, AuditSessionCompleted, "graph executor reached terminal")
	}
}

// buildGraph assembles the per-session component graph: Supervisor
// Router, Phase Executor, Agent Runner, and Report Guard all wired
// through sessionID-scoped node closures (spec.md §4.2).
func (s *Service) buildGraph(sessionID string, inc incident.Incident, cfg incident.SessionConfig) *graph.Graph {
	emitFor := func(node string) func(eventstream.Event) error {
		return func(e eventstream.Event) error { return s.deps.Dispatcher.EmitFrom(node, e) }
	}

	timeouts := make(map[string]time.Duration, len(cfg.PerPhaseTimeoutMs))
	for phase, ms := range cfg.PerPhaseTimeoutMs {
		timeouts[phase] = time.Duration(ms) * time.Millisecond
	}

	router := supervisor.NewForMode(cfg.SupervisorMode, supervisor.NewRuleBased(cfg.MaxRounds),
		s.deps.Gateway, s.deps.ModelID, timeouts["supervisor"], cfg.PerPhaseRetry["supervisor"])

	executor := phaseexec.New(cfg.ConcurrencyLimit)
	runner := agentrunner.New(s.deps.Registry, s.deps.Gateway, s.deps.Tools, s.deps.ModelID)

	reportCfg := reportguard.Config{
		BlockedConclusionPhrases:  cfg.BlockedConclusionPhrases,
		EvidenceSourceKindMinimum: cfg.EvidenceSourceKindMinimum,
	}

	metrics.Init()

	return graph.New(graph.DefaultRoute, s.deps.Store,
		graph.InitSessionNode(sessionID, emitFor("init_session")),
		graph.CollectAssetsNode(sessionID, inc, emitFor("collect_assets")),
		graph.SupervisorDecideNode(sessionID, router, emitFor("supervisor_decide")),
		graph.AggregateNode(sessionID, executor, runner, timeouts, cfg.PerPhaseRetry, emitFor("aggregate")),
		graph.JudgeNode(sessionID, executor, runner, timeouts, cfg.PerPhaseRetry, emitFor("judge")),
		graph.VerifyNode(sessionID, executor, runner, timeouts, cfg.PerPhaseRetry, emitFor("verify")),
		graph.ReportNode(sessionID, reportCfg, emitFor("report")),
		graph.TerminalNode(),
	)
}

// Subscribe yields sessionID's event stream, resuming after
// resumeCursor (spec.md §4.9/§4.8). The returned func unsubscribes.
func (s *Service) Subscribe(sessionID, resumeCursor string) (<-chan eventstream.Event, func()) {
	return s.deps.Dispatcher.Subscribe(sessionID, resumeCursor)
}

// Cancel flips sessionID's cooperative cancel flag (spec.md §4.9); the
// session transitions to CANCELLED once the graph executor observes
// ctx.Err() at its next suspension point.
func (s *Service) Cancel(sessionID string) error {
	ls, err := s.get(sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.cancel == nil {
		return fmt.Errorf("session: %q is not running", sessionID)
	}
	ls.cancel()
	return nil
}

// Resume loads the last checkpoint for sessionID from the SessionStore
// and resumes the graph executor from its last_node, used for recovery
// after a process restart (spec.md §4.2/§4.9). The session must already
// be known to this Service via Create; Resume only replays persisted
// state into it.
func (s *Service) Resume(ctx context.Context, sessionID string) error {
	ls, err := s.get(sessionID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if ls.session.Status == incident.StatusPending {
		if terr := ls.session.Transition(incident.StatusRunning); terr != nil {
			ls.mu.Unlock()
			return terr
		}
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	ls.done = make(chan struct{})
	inc, cfg, st := ls.session.Incident, ls.session.Config, ls.state
	ls.mu.Unlock()

	g := s.buildGraph(sessionID, inc, cfg)
	go s.pump(ctx, sessionID, ls, func() (string, error) { return g.Resume(runCtx, sessionID, st) })
	return nil
}

// RetryFailedOnly reissues commands only for agents whose last feedback
// in the current round settled as failed or degraded, preserving every
// other agent's already-settled feedback and evidence, then resumes the
// graph pump from the current phase's work node (spec.md §4.9).
func (s *Service) RetryFailedOnly(ctx context.Context, sessionID string) error {
	ls, err := s.get(sessionID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	st := ls.state
	inc, cfg := ls.session.Incident, ls.session.Config
	ls.mu.Unlock()

	snap := st.Snapshot()
	retryCmds := make(map[string]debatestate.Command)
	for agent, fb := range snap.Feedback {
		cmd, has := snap.Commands[agent]
		if !has || fb.Round < cmd.IssuedRound {
			continue // already pending this round
		}
		if fb.Status == debatestate.FeedbackFailed || fb.Status == debatestate.FeedbackDegraded {
			next := cmd
			next.IssuedRound = cmd.IssuedRound + 1
			retryCmds[agent] = next
		}
	}
	if len(retryCmds) == 0 {
		return ErrNothingToRetry
	}
	if err := st.Apply(debatestate.Delta{Commands: retryCmds}); err != nil {
		return err
	}
	retried := make([]string, 0, len(retryCmds))
	for agent := range retryCmds {
		retried = append(retried, agent)
	}
	s.audit.record(sessionID, AuditRetryIssued, fmt.Sprintf("agents=%v", retried))

	ls.mu.Lock()
	if err := ls.session.Transition(incident.StatusRunning); err != nil && ls.session.Status != incident.StatusRunning {
		ls.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	ls.done = make(chan struct{})
	ls.mu.Unlock()

	work, ok := graph.DefaultRoute(st)
	if !ok {
		work = "supervisor_decide"
	}
	g := s.buildGraph(sessionID, inc, cfg)
	go s.pump(ctx, sessionID, ls, func() (string, error) { return g.Run(runCtx, sessionID, st, work) })
	return nil
}

// FinalResult blocks up to timeout waiting for sessionID's debate to
// reach a non-nil final_result, per spec.md §4.9's "fetch-final-result
// ... may block up to a caller-supplied timeout".
func (s *Service) FinalResult(ctx context.Context, sessionID string, timeout time.Duration) (debatestate.FinalResult, error) {
	ls, err := s.get(sessionID)
	if err != nil {
		return debatestate.FinalResult{}, err
	}

	if fr := ls.state.Snapshot().FinalResult; fr != nil {
		return *fr, nil
	}

	ls.mu.Lock()
	done := ls.done
	ls.mu.Unlock()

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if fr := ls.state.Snapshot().FinalResult; fr != nil {
			return *fr, nil
		}
		select {
		case <-deadline.Done():
			return debatestate.FinalResult{}, ErrFinalResultTimeout
		case <-done:
			if fr := ls.state.Snapshot().FinalResult; fr != nil {
				return *fr, nil
			}
			return debatestate.FinalResult{}, ErrFinalResultTimeout
		case <-ticker.C:
		}
	}
}

// Status returns the current incident.Session record for sessionID.
func (s *Service) Status(sessionID string) (incident.Session, error) {
	ls, err := s.get(sessionID)
	if err != nil {
		return incident.Session{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return *ls.session, nil
}
