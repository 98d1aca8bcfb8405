package llmgateway

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is one of the three states a model's breaker can be in,
// grounded on the teacher's CircuitState (internal/llm/circuit_breaker.go).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// ErrCircuitOpen is returned when a model_id's circuit is open.
var ErrCircuitOpen = errors.New("llmgateway: circuit open for model")

// CircuitBreakerConfig configures one model_id's breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultCircuitBreakerConfig matches the teacher's DefaultCircuitBreakerConfig.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

type breaker struct {
	mu                   sync.Mutex
	config               CircuitBreakerConfig
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailure          time.Time
}

// breakerRegistry holds one breaker per model_id, grounded on the
// teacher's CircuitBreakerManager.
type breakerRegistry struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*breaker
}

func newBreakerRegistry(cfg CircuitBreakerConfig) *breakerRegistry {
	return &breakerRegistry{config: cfg, breakers: make(map[string]*breaker)}
}

func (r *breakerRegistry) get(modelID string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[modelID]
	if !ok {
		b = &breaker{config: r.config, state: CircuitClosed}
		r.breakers[modelID] = b
	}
	return b
}

func (r *breakerRegistry) state(modelID string) CircuitState {
	return r.get(modelID).currentState()
}

func (b *breaker) currentState() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// beforeCall reports whether a call should proceed, transitioning
// open->half_open once OpenTimeout has elapsed.
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if time.Since(b.lastFailure) > b.config.OpenTimeout {
			b.state = CircuitHalfOpen
			b.consecutiveSuccesses = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
		b.lastFailure = time.Now()
		switch b.state {
		case CircuitClosed:
			if b.consecutiveFailures >= b.config.FailureThreshold {
				b.state = CircuitOpen
			}
		case CircuitHalfOpen:
			b.state = CircuitOpen
		}
		return
	}

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++
	if b.state == CircuitHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.state = CircuitClosed
	}
}
