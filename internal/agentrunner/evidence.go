package agentrunner

import (
	"strings"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

// sourceRefHints maps substrings that might appear in a claim's source
// reference to the SourceKind it implies; every extracted evidence
// item's source_kind is inferred this way. Grounded on spec.md §3's
// fixed source_kind enumeration.
var sourceRefHints = []struct {
	needle string
	kind   debatestate.SourceKind
}{
	{"log", debatestate.SourceLog},
	{".go:", debatestate.SourceCode},
	{".py:", debatestate.SourceCode},
	{"commit", debatestate.SourceChange},
	{"deploy", debatestate.SourceChange},
	{"runbook", debatestate.SourceRunbook},
	{"trace", debatestate.SourceTrace},
	{"metric", debatestate.SourceMetric},
}

func inferSourceKind(ref string) debatestate.SourceKind {
	lower := strings.ToLower(ref)
	for _, hint := range sourceRefHints {
		if strings.Contains(lower, hint.needle) {
			return hint.kind
		}
	}
	return debatestate.SourceDomain
}

// ExtractEvidence builds Evidence records for each claim in
// parsed.evidence_chain that carries a source reference, canonicalizing
// and hashing to produce evidence_id, per spec.md §4.5 step 4.
func ExtractEvidence(parsed map[string]any, producingAgent string) []debatestate.Evidence {
	raw, ok := parsed["evidence_chain"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	var out []debatestate.Evidence
	for _, item := range items {
		ref, ok := item.(string)
		if !ok || strings.TrimSpace(ref) == "" {
			continue
		}
		kind := inferSourceKind(ref)
		out = append(out, debatestate.NewEvidence(kind, ref, ref, debatestate.StrengthMedium, producingAgent))
	}
	return out
}
