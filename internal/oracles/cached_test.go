package oracles

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
)

func seedCachedAnalysis(t *testing.T, provider cache.Provider, pkg, ver string, entry CachedAnalysis) {
	t.Helper()
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal cached analysis: %v", err)
	}
	if err := provider.Set(context.Background(), ResultCacheKey(pkg, ver), data, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
}

func TestCachedResultOracleMiss(t *testing.T) {
	memCache := cache.NewMemoryProvider(time.Minute)
	defer memCache.Close()
	o := NewCachedResultOracle(memCache, 5*time.Minute)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("a miss must not error: %v", err)
	}
	if res.State != models.StateUnknown || res.Confidence != 0.2 {
		t.Fatalf("expected weak unknown signal on miss, got %+v", res)
	}
}

func TestCachedResultOracleFreshHit(t *testing.T) {
	memCache := cache.NewMemoryProvider(time.Minute)
	defer memCache.Close()
	o := NewCachedResultOracle(memCache, 5*time.Minute)

	seedCachedAnalysis(t, memCache, "pkg-a", "1.0.0", CachedAnalysis{
		State:      models.StateVersionExists,
		Confidence: 0.9,
		CreatedAt:  time.Now().UTC(),
	})

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateVersionExists {
		t.Fatalf("expected replayed state, got %s", res.State)
	}
	// Fresh entry keeps the full 0.8 base trust.
	if res.Confidence < 0.79 || res.Confidence > 0.8 {
		t.Fatalf("expected confidence near 0.8, got %f", res.Confidence)
	}
}

func TestCachedResultOracleDecaysWithAge(t *testing.T) {
	memCache := cache.NewMemoryProvider(time.Minute)
	defer memCache.Close()
	o := NewCachedResultOracle(memCache, 10*time.Minute)

	seedCachedAnalysis(t, memCache, "pkg-a", "1.0.0", CachedAnalysis{
		State:      models.StateVersionExists,
		Confidence: 0.9,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	})

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Decay floors at half weight: 0.8 * 0.5.
	if res.Confidence != 0.4 {
		t.Fatalf("expected floored decay 0.4, got %f", res.Confidence)
	}
}

func TestCachedResultOracleNeverExceedsPriorConfidence(t *testing.T) {
	memCache := cache.NewMemoryProvider(time.Minute)
	defer memCache.Close()
	o := NewCachedResultOracle(memCache, 5*time.Minute)

	seedCachedAnalysis(t, memCache, "pkg-a", "1.0.0", CachedAnalysis{
		State:      models.StateVersionBump,
		Confidence: 0.5,
		CreatedAt:  time.Now().UTC(),
	})

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence > 0.5 {
		t.Fatalf("replay must not be more confident than the original, got %f", res.Confidence)
	}
}
