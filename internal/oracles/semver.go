package oracles

import (
	"context"
	"fmt"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/version"
)

// SemverOracle validates candidate version syntax. Malformed input surfaces
// as a conflict, never as a thrown error.
type SemverOracle struct{}

// NewSemverOracle constructs a SemverOracle.
func NewSemverOracle() *SemverOracle {
	return &SemverOracle{}
}

// Name implements Oracle.
func (o *SemverOracle) Name() string { return NameSemver }

// Analyze checks whether the candidate parses as a semantic version.
func (o *SemverOracle) Analyze(_ context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	if !version.IsValid(req.CandidateVersion) {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.9,
			Conflicts: []models.Conflict{{
				Kind:     models.KindInvalidVersion,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("candidate %q is not a valid semantic version", req.CandidateVersion),
			}},
		}, nil
	}

	return models.OracleResult{
		State:      models.StateVersionCompliant,
		Confidence: 0.8,
	}, nil
}
