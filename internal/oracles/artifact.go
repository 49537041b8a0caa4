package oracles

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
)

// ArtifactOracle checks for the presence and freshness of build output, a
// weak signal that the package is actually ready to ship.
type ArtifactOracle struct {
	buildDirs []string
}

// NewArtifactOracle constructs an ArtifactOracle.
func NewArtifactOracle() *ArtifactOracle {
	return &ArtifactOracle{buildDirs: []string{"dist", "build", "lib", "out"}}
}

// Name implements Oracle.
func (o *ArtifactOracle) Name() string { return NameArtifact }

// Analyze looks for build output directories under the package path.
func (o *ArtifactOracle) Analyze(_ context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	if req.PackagePath == "" {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.2,
		}, nil
	}

	var newest time.Time
	found := false
	for _, dir := range o.buildDirs {
		info, err := os.Stat(filepath.Join(req.PackagePath, dir))
		if err != nil || !info.IsDir() {
			continue
		}
		found = true
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}

	if !found {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.3,
			Conflicts: []models.Conflict{{
				Kind:     models.KindArtifactMissing,
				Severity: models.SeverityLow,
				Message:  "no build output directory found",
			}},
		}, nil
	}

	if manifest, err := os.Stat(filepath.Join(req.PackagePath, "package.json")); err == nil && manifest.ModTime().After(newest) {
		return models.OracleResult{
			State:      models.StateVersionBump,
			Confidence: 0.5,
			Conflicts: []models.Conflict{{
				Kind:     models.KindStaleArtifact,
				Severity: models.SeverityMedium,
				Message:  "package manifest is newer than build output",
			}},
		}, nil
	}

	return models.OracleResult{
		State:      models.StateVersionBump,
		Confidence: 0.6,
	}, nil
}
