// Package reportguard implements the Report Guard (spec.md §4.10):
// validates a FinalResult against the effective-conclusion rules before
// the report node hands off to the external Report Service.
//
// Grounded on teacher internal/debate/gates/approval_gate.go (a
// config-driven pass/fail checkpoint gating progression to the next
// phase, generalized here from a blocking human-approval wait to an
// immediate automatic rule check) and
// internal/debate/evaluation/benchmark_bridge.go's pass/fail rubric
// evaluation pattern for the blocked-phrase/evidence-count rule set.
package reportguard

import (
	"context"
	"strconv"
	"strings"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

// ReportRenderer is the external port named in spec.md §6
// ("ReportRenderer: async render(final_result) -> report_document").
// Rendering a report document from an already-validated FinalResult is
// the incident/report HTTP facade's job (spec.md §1's external
// collaborator), so only the port is declared here, not a renderer body.
type ReportRenderer interface {
	Render(ctx context.Context, fr debatestate.FinalResult) (string, error)
}

// Config is the Report Guard's rule parameters, drawn from
// incident.SessionConfig (spec.md §6).
type Config struct {
	BlockedConclusionPhrases  []string
	EvidenceSourceKindMinimum int
}

// ErrorCodeNoValidConclusion is the stable error_code surfaced to the session on
// rejection, per spec.md §4.10/§7.
const ErrorCodeNoValidConclusion = "NO_VALID_CONCLUSION"

// RejectionError is returned by Validate on failure; its RetryHint is
// caller-facing per spec.md §4.10 ("a caller-facing retry hint").
type RejectionError struct {
	ErrorCode string
	Reason    string
	RetryHint string
}

func (e *RejectionError) Error() string { return e.ErrorCode + ": " + e.Reason }

// Validate checks fr against the effective-conclusion rules. All
// evidence referenced by fr.EvidenceChain must additionally resolve
// against the session's known evidence so the evidence-kind-diversity
// count reflects real citations, not just how many ids happen to appear
// in the chain.
func Validate(fr debatestate.FinalResult, known []debatestate.Evidence, cfg Config) error {
	if strings.TrimSpace(fr.RootCause) == "" {
		return reject("root_cause is empty")
	}
	lower := strings.ToLower(fr.RootCause)
	for _, phrase := range cfg.BlockedConclusionPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return reject("root_cause matches a blocked non-conclusion phrase: " + phrase)
		}
	}
	if fr.Confidence <= 0 {
		return reject("confidence must be greater than zero")
	}

	minimum := cfg.EvidenceSourceKindMinimum
	if minimum < 1 {
		minimum = 1
	}

	kindByID := make(map[string]debatestate.SourceKind, len(known))
	for _, ev := range known {
		kindByID[ev.EvidenceID] = ev.SourceKind
	}

	kinds := make(map[debatestate.SourceKind]bool)
	citedCount := 0
	for _, id := range fr.EvidenceChain {
		if kind, ok := kindByID[id]; ok {
			citedCount++
			kinds[kind] = true
		}
	}

	if citedCount < 2 {
		return reject("evidence_chain must cite at least 2 known evidence items")
	}
	if len(kinds) < minimum {
		return reject("evidence_chain must span at least " + strconv.Itoa(minimum) + " distinct source_kinds")
	}

	return nil
}

func reject(reason string) error {
	return &RejectionError{
		ErrorCode: ErrorCodeNoValidConclusion,
		Reason:    reason,
		RetryHint: "ask the judge to re-synthesize with a stronger evidence chain spanning at least two source kinds",
	}
}
