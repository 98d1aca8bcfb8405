package reportguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

func knownEvidence() []debatestate.Evidence {
	return []debatestate.Evidence{
		{EvidenceID: "e1", SourceKind: debatestate.SourceLog},
		{EvidenceID: "e2", SourceKind: debatestate.SourceCode},
		{EvidenceID: "e3", SourceKind: debatestate.SourceLog},
	}
}

func TestValidateAcceptsTwoSourceKinds(t *testing.T) {
	fr := debatestate.FinalResult{
		RootCause:     "database connection pool exhaustion",
		Confidence:    0.8,
		EvidenceChain: []string{"e1", "e2"},
	}
	err := Validate(fr, knownEvidence(), Config{EvidenceSourceKindMinimum: 2})
	assert.NoError(t, err)
}

func TestValidateRejectsEmptyRootCause(t *testing.T) {
	err := Validate(debatestate.FinalResult{Confidence: 0.5, EvidenceChain: []string{"e1", "e2"}}, knownEvidence(), Config{EvidenceSourceKindMinimum: 2})
	require.Error(t, err)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ErrorCodeNoValidConclusion, rej.ErrorCode)
}

func TestValidateRejectsBlockedPhrase(t *testing.T) {
	fr := debatestate.FinalResult{RootCause: "insufficient information to conclude", Confidence: 0.5, EvidenceChain: []string{"e1", "e2"}}
	err := Validate(fr, knownEvidence(), Config{BlockedConclusionPhrases: []string{"insufficient information"}, EvidenceSourceKindMinimum: 2})
	assert.Error(t, err)
}

func TestValidateRejectsZeroConfidence(t *testing.T) {
	fr := debatestate.FinalResult{RootCause: "oom kill", Confidence: 0, EvidenceChain: []string{"e1", "e2"}}
	err := Validate(fr, knownEvidence(), Config{EvidenceSourceKindMinimum: 2})
	assert.Error(t, err)
}

func TestValidateRejectsSingleSourceKindRegardlessOfCount(t *testing.T) {
	fr := debatestate.FinalResult{RootCause: "oom kill", Confidence: 0.9, EvidenceChain: []string{"e1", "e3"}}
	err := Validate(fr, knownEvidence(), Config{EvidenceSourceKindMinimum: 2})
	assert.Error(t, err)
}

func TestValidateRejectsFewerThanTwoCitedEvidenceItems(t *testing.T) {
	fr := debatestate.FinalResult{RootCause: "oom kill", Confidence: 0.9, EvidenceChain: []string{"e1"}}
	err := Validate(fr, knownEvidence(), Config{EvidenceSourceKindMinimum: 2})
	assert.Error(t, err)
}
