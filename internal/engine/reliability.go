package engine

import (
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// Score derives the overall consensus score and reliability label from the
// oracle responses. Oracles that failed contribute nothing and shrink the
// effective sample rather than dragging the numerator down. The label is
// advisory only and never overrides the policy short-circuit.
func Score(results []models.OracleResult) (float64, models.Reliability) {
	responded := 0
	sum := 0.0
	for _, r := range results {
		if !r.Succeeded {
			continue
		}
		responded++
		sum += r.Confidence
	}
	if responded == 0 {
		return 0, models.ReliabilityLow
	}

	score := utils.Clamp01(sum / float64(responded))
	switch {
	case score > 0.8 && responded >= 3:
		return score, models.ReliabilityHigh
	case score > 0.6:
		return score, models.ReliabilityMedium
	default:
		return score, models.ReliabilityLow
	}
}
