// Package incident defines the immutable input to a debate session and the
// session lifecycle wrapper around it.
package incident

import "time"

// Severity classifies how urgent an incident is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Incident is the opaque, immutable input a debate session is bound to.
// It is produced by an external collaborator (the incident facade) and
// never mutated by the core.
type Incident struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	LogContent  string    `json:"log_content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status represents a Session's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
	StatusCompleted Status = "COMPLETED"
)

// validTransitions encodes invariant I5: PENDING -> RUNNING -> {COMPLETED,FAILED,CANCELLED}.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusRunning: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// session status transition under invariant I5. Terminal states have no
// outgoing transitions.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsTerminal reports whether a status has no further legal transitions.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RetryProfile configures LLM Gateway retry/timeout behaviour for one phase.
type RetryProfile struct {
	MaxRetries     int     `json:"max_retries"`
	BackoffBaseMs  int     `json:"backoff_base_ms"`
	Jitter         float64 `json:"jitter"`
	FatalOnExhaust bool    `json:"fatal_on_exhaust"`
}

// SupervisorMode selects which decider(s) the Supervisor Router consults.
type SupervisorMode string

const (
	SupervisorModeRule   SupervisorMode = "rule"
	SupervisorModeLLM    SupervisorMode = "llm"
	SupervisorModeHybrid SupervisorMode = "hybrid"
)

// SessionConfig is the configuration snapshot captured at session start
// (spec.md §6 "Configuration envelope"). It is immutable for the lifetime
// of the session — no runtime mutation, per spec.md §9 design notes.
type SessionConfig struct {
	MaxRounds                  int                     `json:"max_rounds"`
	ConcurrencyLimit           int                     `json:"concurrency_limit"`
	PerPhaseTimeoutMs          map[string]int          `json:"per_phase_timeout_ms"`
	PerPhaseRetry              map[string]RetryProfile `json:"per_phase_retry"`
	SupervisorMode             SupervisorMode          `json:"supervisor_mode"`
	ToolsEnabled               map[string]bool         `json:"tools_enabled"`
	BlockedConclusionPhrases   []string                `json:"blocked_conclusion_phrases"`
	EvidenceSourceKindMinimum  int                     `json:"evidence_source_kind_minimum"`
	JudgeReadinessLoopOverride bool                    `json:"-"`
}

// DefaultSessionConfig returns a SessionConfig matching spec.md's stated
// defaults (concurrency_limit=4, evidence_source_kind_minimum=2, etc.).
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxRounds:        3,
		ConcurrencyLimit: 4,
		PerPhaseTimeoutMs: map[string]int{
			"analysis":     60_000,
			"critique":     60_000,
			"rebuttal":     60_000,
			"judgment":     180_000,
			"verification": 180_000,
			"supervisor":   30_000,
		},
		PerPhaseRetry: map[string]RetryProfile{
			"analysis":     {MaxRetries: 2, BackoffBaseMs: 500, Jitter: 0.2},
			"critique":     {MaxRetries: 2, BackoffBaseMs: 500, Jitter: 0.2},
			"rebuttal":     {MaxRetries: 2, BackoffBaseMs: 500, Jitter: 0.2},
			"judgment":     {MaxRetries: 1, BackoffBaseMs: 1000, Jitter: 0.2},
			"verification": {MaxRetries: 1, BackoffBaseMs: 1000, Jitter: 0.2},
			"supervisor":   {MaxRetries: 1, BackoffBaseMs: 500, Jitter: 0.2},
		},
		SupervisorMode: SupervisorModeHybrid,
		ToolsEnabled: map[string]bool{
			"local_log_reader":           true,
			"domain_table_lookup":        true,
			"source_repo_search":         true,
			"change_window_scanner":      true,
			"metrics_snapshot_analyzer":  true,
			"runbook_case_library":       true,
		},
		BlockedConclusionPhrases: []string{
			"insufficient information",
			"needs further analysis",
			"unknown",
			"需要进一步分析",
		},
		EvidenceSourceKindMinimum: 2,
	}
}

// Validate enforces the configuration-error class of failures from
// spec.md §7: invalid max_rounds is a fatal configuration error surfaced
// immediately, not absorbed as a degradation.
func (c SessionConfig) Validate() error {
	if c.MaxRounds < 1 || c.MaxRounds > 8 {
		return &ConfigError{Field: "max_rounds", Reason: "must be between 1 and 8"}
	}
	if c.ConcurrencyLimit < 1 || c.ConcurrencyLimit > 16 {
		return &ConfigError{Field: "concurrency_limit", Reason: "must be between 1 and 16"}
	}
	if c.EvidenceSourceKindMinimum < 1 {
		return &ConfigError{Field: "evidence_source_kind_minimum", Reason: "must be at least 1"}
	}
	switch c.SupervisorMode {
	case SupervisorModeRule, SupervisorModeLLM, SupervisorModeHybrid, "":
	default:
		return &ConfigError{Field: "supervisor_mode", Reason: "must be rule, llm, or hybrid"}
	}
	return nil
}

// ConfigError is a fatal, immediately-surfaced configuration error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration for " + e.Field + ": " + e.Reason
}

// Session binds one Incident to a debate run.
type Session struct {
	ID         string
	Incident   Incident
	Status     Status
	Round      int
	Config     SessionConfig
	LastNode   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ErrorCode  string
	ErrorMsg   string
	RetryHint  string
}

// Transition attempts to move the session to `to`, enforcing invariant I5.
func (s *Session) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return &IllegalTransitionError{From: s.Status, To: to}
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// IllegalTransitionError reports a rejected session status transition.
type IllegalTransitionError struct {
	From, To Status
}

func (e *IllegalTransitionError) Error() string {
	return "illegal session transition from " + string(e.From) + " to " + string(e.To)
}
