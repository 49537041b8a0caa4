package engine

import (
	"fmt"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/version"
)

// suggestVersion finds the next patch release not present in any version set
// the oracles reported. The union of reported versions approximates the
// burned set; versions mentioned by several oracles carry more trust but a
// single mention is enough to avoid suggesting it.
func suggestVersion(candidate string, results []models.OracleResult) string {
	mentions := reconcileVersions(results)
	burned := make(map[string]struct{}, len(mentions)+1)
	for v := range mentions {
		burned[v] = struct{}{}
	}
	burned[candidate] = struct{}{}

	base := candidate
	if !version.IsValid(base) {
		versions := make([]string, 0, len(mentions))
		for v := range mentions {
			versions = append(versions, v)
		}
		base = version.Max(versions)
		if base == "" {
			return ""
		}
	}
	if highest := version.Max(keys(burned)); highest != "" && version.Compare(highest, base) > 0 {
		base = highest
	}
	return version.NextFree(base, burned)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

// buildRecommendations attaches follow-up actions to a fused result:
// an auto-resolvable bump when a published-version collision was detected
// with high agreement, a manual-review flag on any high-or-above conflict,
// and a verification flag when oracle agreement is below threshold.
func (e *Engine) buildRecommendations(result models.AnalysisResult, agreement float64) []models.Recommendation {
	var recs []models.Recommendation

	collision := result.State == models.StateVersionExists || result.State == models.StateVersionViolation
	if collision && result.SuggestedVersion != "" && agreement >= e.consensusThreshold {
		recs = append(recs, models.Recommendation{
			Kind:           models.RecommendVersionBump,
			Message:        fmt.Sprintf("bump to %s, the next version not burned for %s", result.SuggestedVersion, result.PackageName),
			AutoResolvable: true,
		})
	}

	if result.HasConflictAtLeast(models.SeverityHigh) {
		recs = append(recs, models.Recommendation{
			Kind:    models.RecommendManualReview,
			Message: "high-severity conflicts detected; review before publishing",
		})
	}

	if agreement < e.consensusThreshold {
		recs = append(recs, models.Recommendation{
			Kind:    models.RecommendVerificationNeeded,
			Message: fmt.Sprintf("oracle agreement %.2f is below the consensus threshold %.2f", agreement, e.consensusThreshold),
		})
	}

	return recs
}
