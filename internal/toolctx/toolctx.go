// Package toolctx implements the Tool Context Service (spec.md §4.6): a
// fixed enumeration of tools gated by a three-stage capability check,
// with a per-invocation audit trail.
//
// The registry/invoke shape is grounded on the teacher's
// internal/tools/handler.go (ToolHandler/ToolRegistry), generalized from
// an open-ended named-handler registry (git, tests, ...) to the spec's
// fixed six-tool enumeration with its gate. Audit records are grounded
// on the teacher's internal/debate/audit/provenance.go
// (AuditEntry/ProvenanceTracker), generalized from a free-form event
// audit trail to the narrower per-invocation record spec.md names.
package toolctx

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind enumerates the fixed tool set named in spec.md §4.6.
type Kind string

const (
	KindLocalLogReader        Kind = "local_log_reader"
	KindDomainTableLookup     Kind = "domain_table_lookup"
	KindSourceRepoSearch      Kind = "source_repo_search"
	KindChangeWindowScanner   Kind = "change_window_scanner"
	KindMetricsSnapshotAnalyzer Kind = "metrics_snapshot_analyzer"
	KindRunbookCaseLibrary    Kind = "runbook_case_library"
)

// AllKinds lists the fixed tool enumeration, used to build the default
// registry. ToolsEnabled keys are not validated against it.
var AllKinds = []Kind{
	KindLocalLogReader, KindDomainTableLookup, KindSourceRepoSearch,
	KindChangeWindowScanner, KindMetricsSnapshotAnalyzer, KindRunbookCaseLibrary,
}

// Status is the outcome of one invocation.
type Status string

const (
	StatusOK               Status = "ok"
	StatusDisabled         Status = "disabled"
	StatusUnavailable      Status = "unavailable"
	StatusSkipped          Status = "skipped"
	StatusSkippedByCommand Status = "skipped_by_command"
	StatusError            Status = "error"
)

// Result is a tool invocation's outcome, spec.md §4.6.
type Result struct {
	Status      Status         `json:"status"`
	Summary     string         `json:"summary"`
	DataPreview map[string]any `json:"data_preview,omitempty"`
	DataFull    map[string]any `json:"data_full,omitempty"`
	Audit       []Record       `json:"audit"`
}

// Tool is one member of the fixed enumeration.
type Tool interface {
	Kind() Kind
	Invoke(ctx context.Context, params map[string]any) (Result, error)
}

// UsePolicy mirrors debatestate.Command's use_tool field.
type UsePolicy string

const (
	UseForbidden UsePolicy = "forbidden"
	UseOptional  UsePolicy = "optional"
	UseRequired  UsePolicy = "required"
)

// ErrToolCapabilityDenied is returned when any of the three gate stages
// rejects an invocation (spec.md §4.6).
var ErrToolCapabilityDenied = errors.New("toolctx: tool capability denied")

// Record is one audit entry, grounded on the teacher's AuditEntry.
type Record struct {
	Timestamp         time.Time      `json:"timestamp"`
	Action            string         `json:"action"`
	Status            Status         `json:"status"`
	ParametersRedacted map[string]any `json:"parameters_redacted"`
	OutcomeSummary    string         `json:"outcome_summary"`
}

// RoleAllowList maps a Kind to the set of agent roles permitted to
// invoke it (gate stage 3).
type RoleAllowList map[Kind]map[string]bool

// Service is the gated entry point every agent invocation of a tool
// passes through.
type Service struct {
	mu       sync.RWMutex
	tools    map[Kind]Tool
	enabled  map[Kind]bool
	allow    RoleAllowList
	audit    map[string][]Record // keyed by session_id
}

// NewService constructs a Service from the global enabled-tools config
// (gate stage 1) and a role allow-list (gate stage 3).
func NewService(enabled map[string]bool, allow RoleAllowList) *Service {
	en := make(map[Kind]bool, len(enabled))
	for k, v := range enabled {
		en[Kind(k)] = v
	}
	return &Service{
		tools:   make(map[Kind]Tool),
		enabled: en,
		allow:   allow,
		audit:   make(map[string][]Record),
	}
}

// Register adds a concrete Tool implementation for its Kind.
func (s *Service) Register(t Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Kind()] = t
}

// Invoke runs the three-stage gate (enabled, command policy, role
// allow-list) and, if it passes, calls the tool, recording exactly one
// audit record regardless of outcome.
func (s *Service) Invoke(ctx context.Context, sessionID, agentRole string, kind Kind, policy UsePolicy, targets []Kind, params map[string]any) (Result, error) {
	redacted := redact(params)

	if !s.isEnabled(kind) {
		return s.deny(sessionID, kind, redacted, StatusDisabled, "tool disabled in global config")
	}

	if policy == UseForbidden || !containsKind(targets, kind) {
		return s.deny(sessionID, kind, redacted, StatusSkippedByCommand, "command does not target this tool")
	}

	if !s.roleAllowed(kind, agentRole) {
		return s.deny(sessionID, kind, redacted, StatusSkippedByCommand, "agent role not in tool allow-list")
	}

	s.mu.RLock()
	tool, ok := s.tools[kind]
	s.mu.RUnlock()
	if !ok {
		return s.record(sessionID, kind, redacted, Result{Status: StatusUnavailable, Summary: "tool not registered"}, nil)
	}

	res, err := tool.Invoke(ctx, params)
	if err != nil {
		res = Result{Status: StatusError, Summary: err.Error()}
	}
	return s.record(sessionID, kind, redacted, res, err)
}

func (s *Service) isEnabled(kind Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[kind]
}

func (s *Service) roleAllowed(kind Kind, role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allow, ok := s.allow[kind]
	if !ok {
		return true // no allow-list configured for this tool means unrestricted
	}
	return allow[role]
}

func (s *Service) deny(sessionID string, kind Kind, redacted map[string]any, status Status, summary string) (Result, error) {
	res := Result{Status: status, Summary: summary}
	_, _ = s.record(sessionID, kind, redacted, res, ErrToolCapabilityDenied)
	return res, ErrToolCapabilityDenied
}

func (s *Service) record(sessionID string, kind Kind, redacted map[string]any, res Result, err error) (Result, error) {
	rec := Record{
		Timestamp:          time.Now(),
		Action:             string(kind),
		Status:             res.Status,
		ParametersRedacted: redacted,
		OutcomeSummary:     res.Summary,
	}
	s.mu.Lock()
	s.audit[sessionID] = append(s.audit[sessionID], rec)
	s.mu.Unlock()

	res.Audit = append(res.Audit, rec)
	return res, err
}

// AuditTrail returns every recorded invocation for a session, in
// production order. The Agent Runner's prompt builder does not read it,
// so audit records do not appear in later rounds' prompts.
func (s *Service) AuditTrail(sessionID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.audit[sessionID]))
	copy(out, s.audit[sessionID])
	return out
}

func containsKind(targets []Kind, kind Kind) bool {
	for _, t := range targets {
		if t == kind {
			return true
		}
	}
	return false
}

// redact strips values for parameter keys that look sensitive, keeping
// the audit record free of secrets while still naming what was passed.
func redact(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case "api_key", "token", "secret", "password", "credential":
			out[k] = "[redacted]"
		default:
			out[k] = v
		}
	}
	return out
}
