package supervisor

// weightedMajorityChoice picks the argmax choice under the MiniMax
// confidence-weighted voting formula L* = argmax sum(confidence_i *
// 1[choice_i == L]), grounded on the teacher's
// internal/debate/voting/weighted_voting.go WeightedVotingSystem.Calculate,
// collapsed from its full tie-break/historical-accuracy machinery to the
// single confidence weight the Supervisor Router has available
// (specialist Feedback.Confidence). ok is false when no choice carries a
// strict plurality (a true tie), in which case the caller should not
// treat any single agent as "the majority".
func weightedMajorityChoice(choices map[string]string, confidence map[string]float64) (string, bool) {
	scores := make(map[string]float64)
	for agent, choice := range choices {
		if choice == "" {
			continue
		}
		scores[choice] += confidence[agent]
	}

	var best string
	var bestScore float64
	first, tie := true, false
	for choice, score := range scores {
		switch {
		case first || score > bestScore:
			best, bestScore, tie, first = choice, score, false, false
		case score == bestScore:
			tie = true
		}
	}
	return best, best != "" && !tie
}
