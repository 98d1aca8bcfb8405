package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreforge/debate-engine/internal/agentrunner"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
	"github.com/sreforge/debate-engine/internal/metrics"
	"github.com/sreforge/debate-engine/internal/store"
	"github.com/sreforge/debate-engine/internal/toolctx"
)

func init() { metrics.Init() }

// fakeProvider returns canned structured output keyed by which
// Descriptor system prompt appears in the request, giving every
// specialist the same conclusion so the rule-based supervisor routes
// straight through analysis -> judgment without a critique round.
type fakeProvider struct{}

func (fakeProvider) Complete(_ context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	content := req.Messages[0].Content
	switch {
	case strings.Contains(content, "You are LogAgent"):
		return llmgateway.Response{Content: `{"conclusion":"checkout service db pool exhausted under load","confidence":0.9,"evidence_chain":["checkout.log:102"]}`}, nil
	case strings.Contains(content, "You are DomainAgent"):
		return llmgateway.Response{Content: `{"conclusion":"checkout service db pool exhausted under load","confidence":0.9,"evidence_chain":["runbook:RB-55"]}`}, nil
	case strings.Contains(content, "You are CodeAgent"):
		return llmgateway.Response{Content: `{"conclusion":"checkout service db pool exhausted under load","confidence":0.9,"evidence_chain":[]}`}, nil
	case strings.Contains(content, "You are the JudgeAgent"):
		return llmgateway.Response{Content: `{"root_cause":"checkout service db connection pool exhausted under peak load","confidence":0.85,"evidence_chain":["checkout.log:102","runbook:RB-55"],"impact":"checkout unavailable","fix_recommendation":"raise pool size and add backpressure","verification_plan":"watch pool saturation metric post-fix","risk_level":"medium"}`}, nil
	case strings.Contains(content, "You are the VerificationAgent"):
		return llmgateway.Response{Content: `{"conclusion":"verified","confidence":0.9}`}, nil
	default:
		return llmgateway.Response{Content: `{"defer": true}`}, nil
	}
}

// blockingProvider hangs until ctx is cancelled, used to exercise
// cooperative cancellation mid-phase.
type blockingProvider struct{}

func (blockingProvider) Complete(ctx context.Context, _ llmgateway.Request) (llmgateway.Response, error) {
	<-ctx.Done()
	return llmgateway.Response{}, ctx.Err()
}

func testDeps(provider llmgateway.Provider) Deps {
	mem := store.NewMemoryStore()
	return Deps{
		Store:      mem,
		Dispatcher: eventstream.NewDispatcher(mem),
		Gateway:    llmgateway.New(provider, nil),
		Tools:      toolctx.NewService(map[string]bool{}, nil),
		Registry:   agentrunner.NewRegistry(),
		ModelID:    "test-model",
	}
}

func testIncident() incident.Incident {
	return incident.Incident{
		ID:          "inc-1",
		Title:       "checkout outage",
		Severity:    incident.SeverityHigh,
		Service:     "checkout",
		Environment: "prod",
		CreatedAt:   time.Now(),
	}
}

func testConfig() incident.SessionConfig {
	cfg := incident.DefaultSessionConfig()
	cfg.SupervisorMode = incident.SupervisorModeRule
	cfg.MaxRounds = 2
	for phase := range cfg.PerPhaseTimeoutMs {
		cfg.PerPhaseTimeoutMs[phase] = 2000
	}
	return cfg
}

func TestSessionRunsEndToEndToCompletion(t *testing.T) {
	svc := New(testDeps(fakeProvider{}))

	sess, err := svc.Create(testIncident(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, incident.StatusPending, sess.Status)

	require.NoError(t, svc.Start(context.Background(), sess.ID))

	fr, err := svc.FinalResult(context.Background(), sess.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, fr.RootCause, "pool exhausted")
	assert.Len(t, fr.EvidenceChain, 2)

	require.Eventually(t, func() bool {
		st, err := svc.Status(sess.ID)
		return err == nil && st.Status == incident.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	svc := New(testDeps(fakeProvider{}))
	cfg := testConfig()
	cfg.MaxRounds = 0
	_, err := svc.Create(testIncident(), cfg)
	assert.Error(t, err)
}

func TestStartUnknownSessionReturnsErrSessionNotFound(t *testing.T) {
	svc := New(testDeps(fakeProvider{}))
	err := svc.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCancelTransitionsSessionToCancelled(t *testing.T) {
	svc := New(testDeps(blockingProvider{}))

	sess, err := svc.Create(testIncident(), testConfig())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background(), sess.ID))

	require.Eventually(t, func() bool {
		return svc.Cancel(sess.ID) == nil
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		st, err := svc.Status(sess.ID)
		return err == nil && st.Status == incident.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeReceivesSessionStartedEvent(t *testing.T) {
	svc := New(testDeps(fakeProvider{}))
	sess, err := svc.Create(testIncident(), testConfig())
	require.NoError(t, err)

	ch, unsubscribe := svc.Subscribe(sess.ID, "")
	defer unsubscribe()

	require.NoError(t, svc.Start(context.Background(), sess.ID))

	select {
	case e := <-ch:
		assert.Equal(t, eventstream.TypeSessionStarted, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session_started event")
	}
}

func TestFinalResultTimesOutBeforeCompletion(t *testing.T) {
	svc := New(testDeps(blockingProvider{}))
	sess, err := svc.Create(testIncident(), testConfig())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background(), sess.ID))

	_, err = svc.FinalResult(context.Background(), sess.ID, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrFinalResultTimeout)

	_ = svc.Cancel(sess.ID)
}
