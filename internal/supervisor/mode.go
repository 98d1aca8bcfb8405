package supervisor

import (
	"time"

	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
)

// NewForMode composes a Router according to a session's supervisor_mode
// (spec.md §4.4's Open Question, resolved in SPEC_FULL.md): "rule" uses
// only the deterministic decider, "llm" tries the LLM-dynamic decider
// first (falling back to rule-based when it defers, errors, or returns
// an I3 violation, via Router.Decide's fallthrough), and "hybrid" tries
// rule-based first and consults the LLM only when it defers — matching
// original_source's HybridRouter ordering once the preseed/consensus/
// budget shortcuts it applies are themselves expressed as RuleBased's
// early transitions.
func NewForMode(mode incident.SupervisorMode, ruleBased *RuleBased, gateway *llmgateway.Gateway, modelID string, timeout time.Duration, retry incident.RetryProfile) *Router {
	llmDynamic := NewLLMDynamic(gateway, modelID, timeout, retry)

	switch mode {
	case incident.SupervisorModeLLM:
		return NewRouter(llmDynamic, ruleBased)
	case incident.SupervisorModeRule:
		return NewRouter(ruleBased)
	default: // hybrid, or unset
		return NewRouter(ruleBased, llmDynamic)
	}
}
