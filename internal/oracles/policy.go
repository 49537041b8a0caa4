package oracles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/providers"
	"github.com/sentinelstack/pkg-sentinel/internal/version"
)

// PolicyOracle reconstructs the complete version history of a package from
// three sub-sources and enforces the permanent-version-burn rule: a version
// that has ever existed can never be reused, published or not.
type PolicyOracle struct {
	registry   providers.RegistryProvider
	audit      providers.AuditProvider
	source     providers.SourceProvider
	cache      cache.Provider
	historyTTL time.Duration
	logger     *slog.Logger
}

// NewPolicyOracle constructs a PolicyOracle. The cache may be nil; history is
// then rebuilt on every analysis.
func NewPolicyOracle(
	registry providers.RegistryProvider,
	audit providers.AuditProvider,
	source providers.SourceProvider,
	cacheProvider cache.Provider,
	historyTTL time.Duration,
	logger *slog.Logger,
) *PolicyOracle {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if historyTTL <= 0 {
		historyTTL = 10 * time.Minute
	}
	return &PolicyOracle{
		registry:   registry,
		audit:      audit,
		source:     source,
		cache:      cacheProvider,
		historyTTL: historyTTL,
		logger:     logger,
	}
}

// Name implements Oracle.
func (o *PolicyOracle) Name() string { return NamePolicy }

// Analyze classifies the candidate against the reconstructed history.
func (o *PolicyOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	history, err := o.BuildHistory(ctx, req.PackageName, req.PackagePath)
	if err != nil {
		return models.OracleResult{}, err
	}

	if len(history.AllVersions) == 0 {
		return models.OracleResult{
			State:      models.StateNewPackage,
			Confidence: 0.85,
		}, nil
	}

	if history.Burned(req.CandidateVersion) {
		return models.OracleResult{
			State:            models.StateVersionViolation,
			Confidence:       0.9,
			ReportedVersions: history.AllVersions,
			Conflicts: []models.Conflict{{
				Kind:     models.KindVersionReuse,
				Severity: models.SeverityCritical,
				Message:  fmt.Sprintf("version %s was already used by %s and is permanently burned", req.CandidateVersion, req.PackageName),
			}},
		}, nil
	}

	// An unparseable candidate cannot be ordered against the history, so it
	// must not be reported as compliant.
	if !version.IsValid(req.CandidateVersion) {
		return models.OracleResult{
			State:            models.StateUnknown,
			Confidence:       0.3,
			ReportedVersions: history.AllVersions,
		}, nil
	}

	highest := version.Max(history.AllVersions)
	if highest != "" && version.Compare(req.CandidateVersion, highest) <= 0 {
		return models.OracleResult{
			State:            models.StateVersionViolation,
			Confidence:       0.9,
			ReportedVersions: history.AllVersions,
			Conflicts: []models.Conflict{{
				Kind:     models.KindVersionNotGreater,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("version %s is not greater than highest ever-seen version %s", req.CandidateVersion, highest),
			}},
		}, nil
	}

	return models.OracleResult{
		State:            models.StateVersionCompliant,
		Confidence:       0.9,
		ReportedVersions: history.AllVersions,
	}, nil
}

type cachedHistory struct {
	AllVersions []string  `json:"all_versions"`
	Published   []string  `json:"published"`
	Unpublished []string  `json:"unpublished"`
	BuiltAt     time.Time `json:"built_at"`
}

// BuildHistory unions the registry, audit log, and local version-control tags
// into one VersionHistory. Sub-source failures are tolerated individually;
// the build fails only when every source is unavailable.
func (o *PolicyOracle) BuildHistory(ctx context.Context, packageName, packagePath string) (models.VersionHistory, error) {
	key := "history:" + packageName
	if data, err := o.cache.Get(ctx, key); err == nil {
		var cached cachedHistory
		if err := json.Unmarshal(data, &cached); err == nil {
			return models.VersionHistory{
				PackageName:       packageName,
				AllVersions:       cached.AllVersions,
				Published:         cached.Published,
				UnpublishedBurned: cached.Unpublished,
			}, nil
		}
	}

	all := make(map[string]struct{})
	published := make(map[string]struct{})
	sourcesOK := 0

	if o.registry != nil {
		info, err := o.registry.Lookup(ctx, packageName)
		if err != nil {
			o.logger.Warn("registry history source failed", slog.Any("error", err))
		} else {
			sourcesOK++
			for _, v := range info.Versions {
				all[v] = struct{}{}
				published[v] = struct{}{}
			}
		}
	}

	if o.audit != nil {
		log, err := o.audit.VersionLog(ctx, packageName)
		if err != nil {
			o.logger.Warn("audit history source failed", slog.Any("error", err))
		} else {
			sourcesOK++
			for _, v := range log.AllVersions {
				all[v] = struct{}{}
			}
			for _, v := range log.Unpublished {
				all[v] = struct{}{}
			}
		}
	}

	if o.source != nil && packagePath != "" {
		tags, err := o.source.Tags(ctx, packagePath)
		if err != nil {
			o.logger.Debug("tag history source failed", slog.Any("error", err))
		} else {
			sourcesOK++
			for _, tag := range tags {
				if version.IsValid(tag) {
					all[tag] = struct{}{}
				}
			}
		}
	}

	if sourcesOK == 0 {
		return models.VersionHistory{}, fmt.Errorf("no version history source available for %s", packageName)
	}

	history := models.VersionHistory{PackageName: packageName}
	for v := range all {
		history.AllVersions = append(history.AllVersions, v)
		if _, ok := published[v]; ok {
			history.Published = append(history.Published, v)
		} else {
			history.UnpublishedBurned = append(history.UnpublishedBurned, v)
		}
	}
	sort.Strings(history.AllVersions)
	sort.Strings(history.Published)
	sort.Strings(history.UnpublishedBurned)

	payload, err := json.Marshal(cachedHistory{
		AllVersions: history.AllVersions,
		Published:   history.Published,
		Unpublished: history.UnpublishedBurned,
		BuiltAt:     time.Now().UTC(),
	})
	if err == nil {
		if err := o.cache.Set(ctx, key, payload, o.historyTTL); err != nil {
			o.logger.Debug("history cache write failed", slog.Any("error", err))
		}
	}

	return history, nil
}
