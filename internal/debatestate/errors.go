package debatestate

import "fmt"

// InvalidStateDeltaError is returned by Apply when a delta would violate
// an invariant (I1: unknown evidence id referenced; I3: illegal phase
// transition) or attempts to overwrite an already-set final_result.
type InvalidStateDeltaError struct {
	Reason string
}

func (e *InvalidStateDeltaError) Error() string {
	return fmt.Sprintf("invalid state delta: %s", e.Reason)
}

func invalidDelta(format string, args ...any) *InvalidStateDeltaError {
	return &InvalidStateDeltaError{Reason: fmt.Sprintf(format, args...)}
}
