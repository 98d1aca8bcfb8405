package debatestate

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleSpecialist Role = "specialist"
	RoleSystem     Role = "system"
)

// Message is one append-only conversational turn.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	AgentName string    `json:"agent_name"`
	Phase     Phase     `json:"phase"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolPermission is the `use_tool` field of the supervisor/specialist
// command protocol (spec.md §4.4).
type ToolPermission string

const (
	ToolForbidden ToolPermission = "forbidden"
	ToolOptional  ToolPermission = "optional"
	ToolRequired  ToolPermission = "required"
)

// Command is the supervisor->specialist message (spec.md §4.4).
type Command struct {
	IssuedRound           int            `json:"issued_round"`
	Task                  string         `json:"task"`
	Focus                 string         `json:"focus"`
	ExpectedOutputSchemaID string        `json:"expected_output_schema_id"`
	UseTool               ToolPermission `json:"use_tool"`
	ToolTargets           map[string]bool `json:"tool_targets"`
	DeadlineMs            int            `json:"deadline_ms"`
}

// FeedbackStatus is the outcome of one agent's invocation for a round.
type FeedbackStatus string

const (
	FeedbackOK       FeedbackStatus = "ok"
	FeedbackDegraded FeedbackStatus = "degraded"
	FeedbackFailed   FeedbackStatus = "failed"
)

// Feedback is the specialist->supervisor message (spec.md §4.4).
type Feedback struct {
	Round        int            `json:"round"`
	Status       FeedbackStatus `json:"status"`
	Summary      string         `json:"summary"`
	EvidenceRefs map[string]bool `json:"evidence_refs"`
	Confidence   float64        `json:"confidence"`
	MissingInfo  []string       `json:"missing_info"`
	OpenQuestions []string      `json:"open_questions"`
	StructuredOK bool           `json:"structured_ok"`
}

// SourceKind classifies where a piece of Evidence came from.
type SourceKind string

const (
	SourceLog     SourceKind = "log"
	SourceCode    SourceKind = "code"
	SourceDomain  SourceKind = "domain"
	SourceMetric  SourceKind = "metric"
	SourceChange  SourceKind = "change"
	SourceRunbook SourceKind = "runbook"
	SourceTrace   SourceKind = "trace"
)

// Strength is a qualitative confidence rating on a piece of Evidence.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// Evidence is a citeable fact with a stable, content-derived identity.
type Evidence struct {
	EvidenceID      string     `json:"evidence_id"`
	SourceKind      SourceKind `json:"source_kind"`
	SourceRef       string     `json:"source_ref"`
	Description     string     `json:"description"`
	Strength        Strength   `json:"strength"`
	ProducingAgent  string     `json:"producing_agent"`
}

// Route holds the current position of the debate within the phase graph.
type Route struct {
	CurrentPhase Phase  `json:"current_phase"`
	NextNode     string `json:"next_node"`
	LoopRound    int    `json:"loop_round"`
}

// Metrics accumulates counters across the whole session.
type Metrics struct {
	PhaseLatenciesMs map[string]int64 `json:"phase_latencies_ms"`
	RetryCounts      map[string]int   `json:"retry_counts"`
	TimeoutCounts    map[string]int   `json:"timeout_counts"`
	TokenTotals      map[string]int   `json:"token_totals"`
}

// FinalResult is the adjudicated conclusion, written once by the judgment
// phase (invariant I4).
type FinalResult struct {
	RootCause         string   `json:"root_cause"`
	Confidence        float64  `json:"confidence"`
	EvidenceChain     []string `json:"evidence_chain"`
	Impact            string   `json:"impact"`
	FixRecommendation string   `json:"fix_recommendation"`
	VerificationPlan  string   `json:"verification_plan"`
	RiskLevel         string   `json:"risk_level"`
}
