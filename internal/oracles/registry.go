package oracles

import (
	"context"
	"fmt"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/providers"
)

// RegistryOracle asks the live package registry about the candidate.
type RegistryOracle struct {
	provider providers.RegistryProvider
}

// NewRegistryOracle constructs a RegistryOracle.
func NewRegistryOracle(provider providers.RegistryProvider) *RegistryOracle {
	return &RegistryOracle{provider: provider}
}

// Name implements Oracle.
func (o *RegistryOracle) Name() string { return NameRegistry }

// Analyze classifies the candidate against the registry's published versions.
func (o *RegistryOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	if o.provider == nil {
		return models.OracleResult{}, fmt.Errorf("registry provider not configured")
	}

	info, err := o.provider.Lookup(ctx, req.PackageName)
	if err != nil {
		return models.OracleResult{}, err
	}

	if info.NotFound || len(info.Versions) == 0 {
		return models.OracleResult{
			State:      models.StateNewPackage,
			Confidence: 0.9,
		}, nil
	}

	for _, v := range info.Versions {
		if v == req.CandidateVersion {
			return models.OracleResult{
				State:            models.StateVersionExists,
				Confidence:       0.9,
				ReportedVersions: info.Versions,
				Conflicts: []models.Conflict{{
					Kind:     models.KindPublishedCollision,
					Severity: models.SeverityHigh,
					Message:  fmt.Sprintf("version %s is already published", req.CandidateVersion),
				}},
			}, nil
		}
	}

	return models.OracleResult{
		State:            models.StateVersionBump,
		Confidence:       0.9,
		ReportedVersions: info.Versions,
	}, nil
}
