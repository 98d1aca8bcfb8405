package toolctx

import "context"

// Stub is a deterministic Tool test double, grounded on the teacher's
// example GitHandler/TestHandler concrete handlers (internal/tools/handler.go).
// Concrete tool bodies (a real log reader, repo search, etc.) are
// external collaborators per spec.md §1; this stub stands in for them
// in tests.
type Stub struct {
	kind   Kind
	result Result
	err    error
}

// NewStub constructs a Stub that always returns result/err from Invoke.
func NewStub(kind Kind, result Result, err error) *Stub {
	return &Stub{kind: kind, result: result, err: err}
}

func (s *Stub) Kind() Kind { return s.kind }

func (s *Stub) Invoke(_ context.Context, _ map[string]any) (Result, error) {
	return s.result, s.err
}
