package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/engine"
	"github.com/sentinelstack/pkg-sentinel/internal/learning"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/monitor"
	"github.com/sentinelstack/pkg-sentinel/internal/oracles"
)

type stubOracle struct {
	name   string
	result models.OracleResult
}

func (s stubOracle) Name() string { return s.name }

func (s stubOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	return s.result, nil
}

func newTestService(t *testing.T) (*AnalysisService, *cache.MemoryProvider, *monitor.Monitor) {
	t.Helper()
	set := []oracles.Oracle{
		stubOracle{name: oracles.NameRegistry, result: models.OracleResult{State: models.StateVersionBump, Confidence: 0.9}},
		stubOracle{name: oracles.NameSemver, result: models.OracleResult{State: models.StateVersionCompliant, Confidence: 0.8}},
	}
	fusion := engine.New(nil, set, time.Second, 0.6)
	learn := learning.NewEngine(nil, learning.NewMemoryStore(10), 10)
	mon := monitor.New(nil, monitor.Config{MinSampleCount: 100})
	memCache := cache.NewMemoryProvider(time.Minute)
	t.Cleanup(func() { memCache.Close() })
	return NewAnalysisService(nil, fusion, learn, mon, memCache, time.Minute), memCache, mon
}

func TestAnalyzeValidatesRequest(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Analyze(context.Background(), models.AnalyzeRequest{CandidateVersion: "1.0.0"}); err == nil {
		t.Fatalf("expected error for missing package name")
	}
	if _, err := svc.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a"}); err == nil {
		t.Fatalf("expected error for missing candidate version")
	}
}

func TestAnalyzeProducesResult(t *testing.T) {
	svc, _, mon := newTestService(t)

	result, err := svc.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID == "" {
		t.Fatalf("expected an analysis ID")
	}
	if len(result.OracleResults) != 2 {
		t.Fatalf("expected 2 oracle results, got %d", len(result.OracleResults))
	}
	if mon.Snapshot().TotalAnalyses != 1 {
		t.Fatalf("expected the analysis fed to the monitor")
	}
}

func TestAnalyzeWritesResultCache(t *testing.T) {
	svc, memCache, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := oracles.ResultCacheKey(result.PackageName, result.CandidateVersion)
	if _, err := memCache.Get(ctx, key); err != nil {
		t.Fatalf("expected cached verdict under %s: %v", key, err)
	}
}

func TestRecordOutcomeByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := svc.RecordOutcomeByID(ctx, result.ID, models.OutcomeSuccess, "published cleanly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PackageName != "pkg-a" || rec.Outcome != models.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRecordOutcomeByIDUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RecordOutcomeByID(context.Background(), "missing", models.OutcomeSuccess, "")
	if !errors.Is(err, ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestRecordOutcomeRejectsUnknownOutcome(t *testing.T) {
	svc, _, _ := newTestService(t)
	prior := models.AnalysisResult{PackageName: "pkg-a", CandidateVersion: "1.0.0"}
	_, err := svc.RecordOutcome(context.Background(), prior, models.Outcome("exploded"), "")
	if !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
}

func TestPatternsAfterOutcomes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RecordOutcome(ctx, result, models.OutcomeSuccess, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report := svc.Patterns(ctx, "pkg-a", models.StateVersionBump)
	if report.Matches != 1 {
		t.Fatalf("expected 1 matching record, got %d", report.Matches)
	}
}

func TestAdaptWithoutLearning(t *testing.T) {
	svc := NewAnalysisService(nil, engine.New(nil, nil, time.Second, 0.6), nil, nil, nil, time.Minute)
	adj := svc.Adapt(context.Background(), "pkg-a", 0.7)
	if !adj.Advisory || adj.AdjustedConfidence != 0.7 {
		t.Fatalf("expected advisory pass-through, got %+v", adj)
	}
}
