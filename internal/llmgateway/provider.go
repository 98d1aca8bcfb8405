// Package llmgateway implements the LLM Gateway (spec.md §4.5): a single
// choke point for every model call an agent or the judge makes, adding
// retry with exponential backoff and jitter, per-phase timeout profiles,
// a circuit breaker per model_id, and paired llm_request_* event
// emission with token usage accounting.
//
// Retry and circuit breaker mechanics are grounded on the teacher's
// internal/llm/retry.go and internal/llm/circuit_breaker.go, generalized
// from an HTTP-response-shaped retry loop to one keyed on a provider-
// agnostic Call, and from a per-provider breaker wrapping one
// LLMProvider to a registry keyed by model_id (spec.md: "circuit breaker
// per model_id").
package llmgateway

import "context"

// Message is one turn in a model call's conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single model invocation.
type Request struct {
	ModelID     string    `json:"model_id"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model call's output.
type Response struct {
	ModelID string `json:"model_id"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Provider is the thing a Gateway calls through; concrete
// implementations adapt a specific model API.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
