package oracles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// CachedAnalysis is the slim record the service writes back after every
// completed analysis so later runs can reuse the prior verdict as a signal.
type CachedAnalysis struct {
	State      models.OracleState `json:"state"`
	Confidence float64            `json:"confidence"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ResultCacheKey builds the cache key for a (package, version) pair.
func ResultCacheKey(packageName, candidateVersion string) string {
	return fmt.Sprintf("result:%s@%s", packageName, candidateVersion)
}

// CachedResultOracle replays a prior analysis for the same (package, version)
// pair, decaying its confidence with entry age.
type CachedResultOracle struct {
	cache cache.Provider
	ttl   time.Duration
}

// NewCachedResultOracle constructs a CachedResultOracle. ttl bounds the decay
// window and should match the cache's result TTL.
func NewCachedResultOracle(cacheProvider cache.Provider, ttl time.Duration) *CachedResultOracle {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResultOracle{cache: cacheProvider, ttl: ttl}
}

// Name implements Oracle.
func (o *CachedResultOracle) Name() string { return NameCachedResult }

// Analyze looks up the prior verdict. A miss is an unknown signal, not an error.
func (o *CachedResultOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	data, err := o.cache.Get(ctx, ResultCacheKey(req.PackageName, req.CandidateVersion))
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.OracleResult{
			State:      models.StateUnknown,
			Confidence: 0.2,
		}, nil
	}
	if err != nil {
		return models.OracleResult{}, err
	}

	var prior CachedAnalysis
	if err := json.Unmarshal(data, &prior); err != nil {
		return models.OracleResult{}, fmt.Errorf("decode cached analysis: %w", err)
	}

	// Default trust is 0.8, never above the prior's own confidence, decayed
	// linearly with entry age down to half weight.
	base := 0.8
	if prior.Confidence < base {
		base = prior.Confidence
	}
	decay := 1.0 - time.Since(prior.CreatedAt).Seconds()/o.ttl.Seconds()
	if decay < 0.5 {
		decay = 0.5
	}

	return models.OracleResult{
		State:      prior.State,
		Confidence: utils.Clamp01(base * decay),
	}, nil
}
