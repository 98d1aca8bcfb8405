package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedMajorityChoicePicksHighestConfidenceSum(t *testing.T) {
	choices := map[string]string{"a": "x", "b": "x", "c": "y"}
	confidence := map[string]float64{"a": 0.3, "b": 0.3, "c": 0.9}
	choice, ok := weightedMajorityChoice(choices, confidence)
	assert.True(t, ok)
	assert.Equal(t, "y", choice)
}

func TestWeightedMajorityChoiceUnanimousIsNotATie(t *testing.T) {
	choices := map[string]string{"a": "x", "b": "x"}
	confidence := map[string]float64{"a": 0.5, "b": 0.5}
	choice, ok := weightedMajorityChoice(choices, confidence)
	assert.True(t, ok)
	assert.Equal(t, "x", choice)
}

func TestWeightedMajorityChoiceTrueTieIsNotDecided(t *testing.T) {
	choices := map[string]string{"a": "x", "b": "y"}
	confidence := map[string]float64{"a": 0.5, "b": 0.5}
	_, ok := weightedMajorityChoice(choices, confidence)
	assert.False(t, ok)
}

func TestWeightedMajorityChoiceEmptyInputHasNoWinner(t *testing.T) {
	_, ok := weightedMajorityChoice(nil, nil)
	assert.False(t, ok)
}
