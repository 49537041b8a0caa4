package oracles

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/providers"
	"github.com/sentinelstack/pkg-sentinel/internal/version"
)

// SourceHistoryOracle reads local version-control history for a weaker,
// corroborating signal: release tags and recent commit activity.
type SourceHistoryOracle struct {
	provider    providers.SourceProvider
	commitLimit int
}

// NewSourceHistoryOracle constructs a SourceHistoryOracle.
func NewSourceHistoryOracle(provider providers.SourceProvider) *SourceHistoryOracle {
	return &SourceHistoryOracle{provider: provider, commitLimit: 20}
}

// Name implements Oracle.
func (o *SourceHistoryOracle) Name() string { return NameSourceHist }

// Analyze inspects tags and recent commits at the package path.
func (o *SourceHistoryOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	if o.provider == nil {
		return models.OracleResult{}, fmt.Errorf("source provider not configured")
	}
	if req.PackagePath == "" {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.2,
		}, nil
	}

	tags, err := o.provider.Tags(ctx, req.PackagePath)
	if err != nil {
		return models.OracleResult{}, err
	}

	var reported []string
	for _, tag := range tags {
		if version.IsValid(tag) {
			reported = append(reported, tag)
		}
	}

	for _, tag := range reported {
		if tag == req.CandidateVersion {
			return models.OracleResult{
				State:            models.StateVersionExists,
				Confidence:       0.7,
				ReportedVersions: reported,
				Conflicts: []models.Conflict{{
					Kind:     models.KindPublishedCollision,
					Severity: models.SeverityHigh,
					Message:  fmt.Sprintf("version %s is already published", req.CandidateVersion),
				}},
			}, nil
		}
	}

	if len(reported) == 0 {
		// No release tags yet; check whether the repository shows any
		// release-like activity at all before calling it a new package.
		commits, err := o.provider.RecentCommits(ctx, req.PackagePath, o.commitLimit)
		if err != nil || len(commits) == 0 {
			return models.OracleResult{
				State:      models.StateUnknown,
				Confidence: 0.3,
			}, nil
		}
		for _, c := range commits {
			if looksLikeRelease(c.Message) {
				return models.OracleResult{
					State:      models.StateVersionBump,
					Confidence: 0.6,
				}, nil
			}
		}
		return models.OracleResult{
			State:      models.StateNewPackage,
			Confidence: 0.6,
		}, nil
	}

	return models.OracleResult{
		State:            models.StateVersionBump,
		Confidence:       0.7,
		ReportedVersions: reported,
	}, nil
}

func looksLikeRelease(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"release", "publish", "bump version", "chore(release)"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
