package llmgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/metrics"
	"github.com/sreforge/debate-engine/internal/obs"
)

// Gateway is the single choke point every model call passes through
// (spec.md §4.5). It wraps a Provider with retry, a per-model_id circuit
// breaker, a per-phase timeout, and paired llm_request_* event emission.
type Gateway struct {
	provider Provider
	breakers *breakerRegistry
	dispatch func(eventstream.Event) error
}

// New constructs a Gateway. dispatch is typically a closure over
// (*eventstream.Dispatcher).EmitFrom bound to a fixed node name; it may
// be nil in tests that don't care about the event stream.
func New(provider Provider, dispatch func(eventstream.Event) error) *Gateway {
	return &Gateway{
		provider: provider,
		breakers: newBreakerRegistry(DefaultCircuitBreakerConfig()),
		dispatch: dispatch,
	}
}

// CircuitState reports the current breaker state for a model_id.
func (g *Gateway) CircuitState(modelID string) CircuitState {
	return g.breakers.state(modelID)
}

// Call executes req against Gateway's Provider, applying the supplied
// per-phase timeout and retry profile and the model_id's circuit
// breaker, emitting llm_request_started/completed/failed/timeout events
// and token usage metrics along the way (spec.md §4.5).
func (g *Gateway) Call(ctx context.Context, sessionID, phase, agentName string, req Request, timeout time.Duration, retry incident.RetryProfile) (Response, error) {
	logEntry := obs.WithAgent(obs.WithPhase(obs.Session(sessionID), phase), agentName)

	requestID := uuid.New().String()
	start := time.Now()

	b := g.breakers.get(req.ModelID)
	if err := b.beforeCall(); err != nil {
		g.emit(sessionID, phase, agentName, eventstream.TypeLLMRequestFailed, map[string]any{
			"request_id": requestID, "model_id": req.ModelID, "error": err.Error(), "circuit": string(b.currentState()),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		return Response{}, err
	}

	g.emit(sessionID, phase, agentName, eventstream.TypeLLMRequestStarted, map[string]any{
		"request_id": requestID, "model_id": req.ModelID,
	})

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg := FromProfile(retry)
	resp, err := executeWithRetry(callCtx, cfg, func(attemptCtx context.Context, attempt int) (Response, error) {
		return g.provider.Complete(attemptCtx, req)
	}, func(attempt int, retryErr error) {
		metrics.RetryTotal.WithLabelValues(phase).Inc()
		logEntry.WithError(retryErr).Warnf("llm call attempt %d failed, retrying", attempt+1)
	})

	b.afterCall(err)
	g.updateCircuitGauge(req.ModelID, b.currentState())

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			metrics.TimeoutTotal.WithLabelValues(phase).Inc()
			g.emit(sessionID, phase, agentName, eventstream.TypeLLMRequestTimeout, map[string]any{
				"request_id": requestID, "model_id": req.ModelID,
				"latency_ms": time.Since(start).Milliseconds(),
			})
			return Response{}, fmt.Errorf("llmgateway: call to %s timed out after %s: %w", req.ModelID, timeout, err)
		}
		g.emit(sessionID, phase, agentName, eventstream.TypeLLMRequestFailed, map[string]any{
			"request_id": requestID, "model_id": req.ModelID, "error": err.Error(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		return Response{}, err
	}

	metrics.TokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	g.emit(sessionID, phase, agentName, eventstream.TypeLLMRequestCompleted, map[string]any{
		"request_id":        requestID,
		"model_id":          req.ModelID,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"latency_ms":        time.Since(start).Milliseconds(),
	})

	return resp, nil
}

func (g *Gateway) updateCircuitGauge(modelID string, state CircuitState) {
	var v float64
	switch state {
	case CircuitClosed:
		v = 0
	case CircuitHalfOpen:
		v = 1
	case CircuitOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(modelID).Set(v)
}

func (g *Gateway) emit(sessionID, phase, agentName string, typ eventstream.Type, payload map[string]any) {
	if g.dispatch == nil {
		return
	}
	_ = g.dispatch(eventstream.Event{
		SessionID: sessionID,
		Type:      typ,
		Phase:     phase,
		AgentName: agentName,
		Payload:   payload,
	})
}
