package oracles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
)

// LocalStateOracle verifies that the on-disk package descriptor agrees with
// the analysis request.
type LocalStateOracle struct{}

// NewLocalStateOracle constructs a LocalStateOracle.
func NewLocalStateOracle() *LocalStateOracle {
	return &LocalStateOracle{}
}

// Name implements Oracle.
func (o *LocalStateOracle) Name() string { return NameLocalState }

// Analyze reads package.json at the package path and compares name and
// version against the request.
func (o *LocalStateOracle) Analyze(_ context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	if req.PackagePath == "" {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.2,
		}, nil
	}

	data, err := os.ReadFile(filepath.Join(req.PackagePath, "package.json"))
	if err != nil {
		return models.OracleResult{}, fmt.Errorf("read package descriptor: %w", err)
	}

	var manifest struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return models.OracleResult{}, fmt.Errorf("parse package descriptor: %w", err)
	}

	var conflicts []models.Conflict
	if manifest.Name != "" && manifest.Name != req.PackageName {
		conflicts = append(conflicts, models.Conflict{
			Kind:     models.KindLocalStateMismatch,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("local descriptor names %s, analysis targets %s", manifest.Name, req.PackageName),
		})
	}
	if manifest.Version != "" && manifest.Version != req.CandidateVersion {
		conflicts = append(conflicts, models.Conflict{
			Kind:     models.KindLocalStateMismatch,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("local descriptor version %s differs from candidate %s", manifest.Version, req.CandidateVersion),
		})
	}

	if len(conflicts) > 0 {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.4,
			Conflicts:  conflicts,
		}, nil
	}

	result := models.OracleResult{
		State:      models.StateVersionBump,
		Confidence: 0.7,
	}
	if manifest.Version != "" {
		result.ReportedVersions = []string{manifest.Version}
	}
	return result, nil
}
