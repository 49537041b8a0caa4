package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/engine"
	"github.com/sentinelstack/pkg-sentinel/internal/learning"
	"github.com/sentinelstack/pkg-sentinel/internal/metrics"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/monitor"
	"github.com/sentinelstack/pkg-sentinel/internal/oracles"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// recentCap bounds how many analysis results are kept addressable by ID for
// later outcome reporting.
const recentCap = 256

var (
	// ErrAnalysisNotFound is returned when an outcome references an analysis
	// ID that is no longer (or never was) addressable.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrInvalidOutcome is returned when an outcome value is not one of the
	// known outcome kinds.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// AnalysisService is the facade callers use: one operation to analyze a
// candidate release and one to close the feedback loop once the real outcome
// is known.
type AnalysisService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	learning  *learning.Engine
	monitor   *monitor.Monitor
	cache     cache.Provider
	resultTTL time.Duration
	latencies *utils.LatencyTracker

	mu        sync.Mutex
	recent    map[string]models.AnalysisResult
	recentIDs []string
}

// NewAnalysisService constructs the service facade.
func NewAnalysisService(
	logger *slog.Logger,
	fusionEngine *engine.Engine,
	learningEngine *learning.Engine,
	mon *monitor.Monitor,
	cacheProvider cache.Provider,
	resultTTL time.Duration,
) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if resultTTL <= 0 {
		resultTTL = 5 * time.Minute
	}
	return &AnalysisService{
		logger:    logger,
		engine:    fusionEngine,
		learning:  learningEngine,
		monitor:   mon,
		cache:     cacheProvider,
		resultTTL: resultTTL,
		latencies: utils.NewLatencyTracker(1024),
		recent:    make(map[string]models.AnalysisResult),
	}
}

// Analyze runs the consensus analysis for a candidate release.
func (s *AnalysisService) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.AnalysisResult, error) {
	if req.PackageName == "" {
		return models.AnalysisResult{}, fmt.Errorf("package name is required")
	}
	if req.CandidateVersion == "" {
		return models.AnalysisResult{}, fmt.Errorf("candidate version is required")
	}
	if s.engine == nil {
		return models.AnalysisResult{}, fmt.Errorf("fusion engine not configured")
	}

	start := time.Now()
	result := s.engine.Analyze(ctx, req)
	duration := time.Since(start)

	metrics.ObserveAnalysis(duration, outcomeLabel(result.State))
	for _, or := range result.OracleResults {
		metrics.ObserveOracle(or.OracleName, or.ResponseTime, or.Succeeded)
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	s.storeResultCache(ctx, result)
	if s.monitor != nil {
		s.monitor.Ingest(result, duration)
	}
	s.remember(result)

	s.logger.Debug("analysis complete",
		slog.String("package", req.PackageName),
		slog.String("version", req.CandidateVersion),
		slog.String("state", string(result.State)),
		slog.Float64("confidence", result.Confidence))

	return result, nil
}

// RecordOutcome closes the feedback loop for a prior analysis.
func (s *AnalysisService) RecordOutcome(ctx context.Context, prior models.AnalysisResult, outcome models.Outcome, details string) (models.HistoricalRecord, error) {
	if s.learning == nil {
		return models.HistoricalRecord{}, fmt.Errorf("learning engine not configured")
	}
	switch outcome {
	case models.OutcomeSuccess, models.OutcomeFailure, models.OutcomePartial:
	default:
		return models.HistoricalRecord{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	return s.learning.RecordOutcome(ctx, prior, outcome, details), nil
}

// RecordOutcomeByID resolves a recently returned analysis by its ID and
// records the outcome against it.
func (s *AnalysisService) RecordOutcomeByID(ctx context.Context, analysisID string, outcome models.Outcome, details string) (models.HistoricalRecord, error) {
	s.mu.Lock()
	prior, ok := s.recent[analysisID]
	s.mu.Unlock()
	if !ok {
		return models.HistoricalRecord{}, fmt.Errorf("%w: %s", ErrAnalysisNotFound, analysisID)
	}
	return s.RecordOutcome(ctx, prior, outcome, details)
}

// Patterns reports what the bounded history says about a package or state.
func (s *AnalysisService) Patterns(ctx context.Context, packageName string, state models.OracleState) learning.PatternReport {
	if s.learning == nil {
		return learning.PatternReport{HistoricalConfidence: 0.5}
	}
	return s.learning.AnalyzeHistoricalPatterns(ctx, packageName, state)
}

// Adapt returns the advisory confidence adjustment for a package.
func (s *AnalysisService) Adapt(ctx context.Context, packageName string, baseConfidence float64) learning.Adjustment {
	if s.learning == nil {
		return learning.Adjustment{AdjustedConfidence: utils.Clamp01(baseConfidence), Advisory: true, Basis: "learning disabled"}
	}
	return s.learning.AdaptIntelligence(ctx, packageName, baseConfidence)
}

// Snapshot exposes the monitor's current rolling statistics.
func (s *AnalysisService) Snapshot() monitor.Snapshot {
	if s.monitor == nil {
		return monitor.Snapshot{}
	}
	return s.monitor.Snapshot()
}

// Alerts lists monitoring alerts.
func (s *AnalysisService) Alerts(includeResolved bool) []monitor.Alert {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Alerts(includeResolved)
}

// ResolveAlert marks an alert resolved.
func (s *AnalysisService) ResolveAlert(id string) bool {
	if s.monitor == nil {
		return false
	}
	return s.monitor.ResolveAlert(id)
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// storeResultCache writes the slim cached verdict consumed by the
// cached-result oracle on later runs. Failures degrade silently; the cache
// is advisory.
func (s *AnalysisService) storeResultCache(ctx context.Context, result models.AnalysisResult) {
	payload, err := json.Marshal(oracles.CachedAnalysis{
		State:      result.State,
		Confidence: result.Confidence,
		CreatedAt:  result.CreatedAt,
	})
	if err != nil {
		return
	}
	key := oracles.ResultCacheKey(result.PackageName, result.CandidateVersion)
	if err := s.cache.Set(ctx, key, payload, s.resultTTL); err != nil {
		s.logger.Debug("result cache write failed", slog.Any("error", err))
	}
}

func (s *AnalysisService) remember(result models.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recent[result.ID]; !exists {
		s.recentIDs = append(s.recentIDs, result.ID)
		if len(s.recentIDs) > recentCap {
			delete(s.recent, s.recentIDs[0])
			s.recentIDs = s.recentIDs[1:]
		}
	}
	s.recent[result.ID] = result
}

func outcomeLabel(state models.OracleState) string {
	switch state {
	case models.StateVersionViolation:
		return metrics.OutcomeViolation
	case models.StateUnknown:
		return metrics.OutcomeUnknown
	default:
		return metrics.OutcomeOK
	}
}
