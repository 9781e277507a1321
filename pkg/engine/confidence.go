package engine

// AdjustConfidence applies the severity and agreement boosts once.
// Rules are cumulative within a call and every score is capped at 100.
func AdjustConfidence(f ConsensusFinding) ConsensusFinding {
	if f.Severity == SeverityCritical && f.Score < 80 {
		f.Score = clampScore(f.Score + 20)
		f.Tier = TierHigh
	}
	if f.Severity == SeverityHigh && f.Score < 70 {
		f.Score = clampScore(f.Score + 10)
		if f.Tier < TierMedium {
			f.Tier = TierMedium
		}
	}
	if len(f.Tools) >= 2 {
		f.Score = clampScore(f.Score + 15)
		f.Tier = f.Tier.Upgrade()
	}
	return f
}

// Analysis is the output of Engine.Analyze.
type Analysis struct {
	// Candidates holds every merged finding after confidence adjustment,
	// before false positive reduction.
	Candidates []ConsensusFinding `json:"candidates"`
	Findings   []ConsensusFinding `json:"findings"`
	Stats      Stats              `json:"stats"`
	Filtered   int                `json:"filtered"`
}

// Analyze runs Combine, AdjustConfidence and ReduceFalsePositives in order
// and keeps the pre-filter list for auditing.
func (e *Engine) Analyze(findingsBySource map[string][]Finding) Analysis {
	res := e.Combine(findingsBySource)

	candidates := make([]ConsensusFinding, len(res.Findings))
	for i, f := range res.Findings {
		candidates[i] = AdjustConfidence(f)
	}
	SortFindings(candidates)

	kept := ReduceFalsePositives(candidates)
	return Analysis{
		Candidates: candidates,
		Findings:   kept,
		Stats:      res.Stats,
		Filtered:   len(candidates) - len(kept),
	}
}
