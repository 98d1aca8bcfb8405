package debatestate

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// CanonicalizeSourceRef normalizes a source_ref so that equivalent
// references (differing only in surrounding whitespace, internal
// whitespace runs, or case) collapse to the same Evidence identity, per
// spec.md §4.1 ("reducer for evidence additionally canonicalizes
// source_ref before hashing").
func CanonicalizeSourceRef(ref string) string {
	fields := strings.Fields(strings.ToLower(ref))
	return strings.Join(fields, " ")
}

// ComputeEvidenceID derives the stable content hash identity for a piece
// of evidence from its source_kind, canonicalized source_ref, and
// description, per spec.md §3 ("evidence_id (stable hash of
// source+content)").
func ComputeEvidenceID(kind SourceKind, sourceRef, description string) string {
	canon := CanonicalizeSourceRef(sourceRef)
	h := xxhash.New()
	_, _ = h.Write([]byte(string(kind)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(canon))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.TrimSpace(description)))
	return fmt.Sprintf("ev-%016x", h.Sum64())
}

// NewEvidence builds an Evidence record with a computed EvidenceID.
func NewEvidence(kind SourceKind, sourceRef, description string, strength Strength, producingAgent string) Evidence {
	return Evidence{
		EvidenceID:     ComputeEvidenceID(kind, sourceRef, description),
		SourceKind:     kind,
		SourceRef:      CanonicalizeSourceRef(sourceRef),
		Description:    description,
		Strength:       strength,
		ProducingAgent: producingAgent,
	}
}
