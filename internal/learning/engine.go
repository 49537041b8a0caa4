package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// PatternReport summarises what history says about a package or state.
type PatternReport struct {
	Matches              int
	SuccessRate          float64
	HistoricalConfidence float64
	Recommendations      []string
}

// Adjustment is the advisory confidence nudge derived from history. It is
// feedback, not a correctness guarantee; Advisory is always true so callers
// cannot mistake it for an authoritative score.
type Adjustment struct {
	AdjustedConfidence float64
	Delta              float64
	OracleWeightHints  map[string]float64
	Advisory           bool
	Basis              string
}

// Engine records outcomes and mines the bounded history for patterns.
type Engine struct {
	logger     *slog.Logger
	store      Store
	fallback   *MemoryStore
	maxRecords int
}

// NewEngine constructs a learning engine over the given store. When the store
// fails, records degrade to an in-memory log rather than aborting analyses.
func NewEngine(logger *slog.Logger, store Store, maxRecords int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	if store == nil {
		store = NewMemoryStore(maxRecords)
	}
	return &Engine{
		logger:     logger,
		store:      store,
		fallback:   NewMemoryStore(maxRecords),
		maxRecords: maxRecords,
	}
}

// RecordOutcome appends a (prior analysis, actual outcome) pair once the
// publish result is known, computing prediction accuracy and insights.
func (e *Engine) RecordOutcome(ctx context.Context, prior models.AnalysisResult, outcome models.Outcome, details string) models.HistoricalRecord {
	predictedSuccess := prior.ConsensusScore > 0.7 && len(prior.Conflicts) == 0
	actualSuccess := outcome == models.OutcomeSuccess

	record := models.HistoricalRecord{
		Timestamp:          time.Now().UTC(),
		PackageName:        prior.PackageName,
		Version:            prior.CandidateVersion,
		PriorState:         prior.State,
		PriorConfidence:    prior.Confidence,
		PriorConsensus:     prior.ConsensusScore,
		PriorConflictCount: len(prior.Conflicts),
		Outcome:            outcome,
		PredictionAccurate: predictedSuccess == actualSuccess,
		DissentingOracles:  dissenters(prior),
	}
	record.Insights = deriveInsights(record, details)

	if err := e.store.Append(ctx, record); err != nil {
		e.logger.Warn("history store unavailable, falling back to memory", slog.Any("error", err))
		if err := e.fallback.Append(ctx, record); err != nil {
			e.logger.Error("in-memory history append failed", slog.Any("error", err))
		}
	}
	return record
}

// AnalyzeHistoricalPatterns scans the bounded history for records matching
// the package or state and derives a prediction adjustment. With no matching
// history it returns a neutral default instead of failing.
func (e *Engine) AnalyzeHistoricalPatterns(ctx context.Context, packageName string, state models.OracleState) PatternReport {
	records := e.recent(ctx)

	matches := 0
	successes := 0
	for _, r := range records {
		if r.PackageName != packageName && r.PriorState != state {
			continue
		}
		matches++
		if r.Outcome == models.OutcomeSuccess {
			successes++
		}
	}

	if matches == 0 {
		return PatternReport{HistoricalConfidence: 0.5}
	}

	successRate := float64(successes) / float64(matches)
	// Shrink toward the neutral 0.5 when the sample is thin.
	weight := float64(matches)
	if weight > 10 {
		weight = 10
	}
	confidence := utils.Clamp01(0.5 + (successRate-0.5)*weight/10)

	report := PatternReport{
		Matches:              matches,
		SuccessRate:          successRate,
		HistoricalConfidence: confidence,
	}
	if successRate < 0.5 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("historical publishes for %s fail more often than they succeed; verify the release pipeline", packageName))
	}
	if state == models.StateVersionExists || state == models.StateVersionViolation {
		report.Recommendations = append(report.Recommendations,
			"similar version collisions recurred for this package; consider automated version bumping")
	}
	return report
}

// AdaptIntelligence nudges a future analysis's confidence based on how
// accurately past predictions for this package turned out, and proposes
// oracle re-weighting for chronically dissenting oracles.
func (e *Engine) AdaptIntelligence(ctx context.Context, packageName string, baseConfidence float64) Adjustment {
	records := e.recent(ctx)

	matches := 0
	accurate := 0
	dissentCounts := make(map[string]int)
	for _, r := range records {
		if r.PackageName != packageName {
			continue
		}
		matches++
		if r.PredictionAccurate {
			accurate++
		}
		for _, name := range r.DissentingOracles {
			dissentCounts[name]++
		}
	}

	adj := Adjustment{
		AdjustedConfidence: utils.Clamp01(baseConfidence),
		Advisory:           true,
		Basis:              "no history for package",
	}
	if matches == 0 {
		return adj
	}

	accuracy := float64(accurate) / float64(matches)
	adj.Delta = (accuracy - 0.5) * 0.2
	adj.AdjustedConfidence = utils.Clamp01(baseConfidence + adj.Delta)
	adj.Basis = fmt.Sprintf("prediction accuracy %.2f over %d records", accuracy, matches)

	hints := make(map[string]float64)
	for name, count := range dissentCounts {
		rate := float64(count) / float64(matches)
		if rate > 0.5 {
			hints[name] = utils.Clamp01(1 - rate/2)
		}
	}
	if len(hints) > 0 {
		adj.OracleWeightHints = hints
	}
	return adj
}

func (e *Engine) recent(ctx context.Context) []models.HistoricalRecord {
	records, err := e.store.Recent(ctx, e.maxRecords)
	if err != nil {
		e.logger.Warn("history read failed, using in-memory log", slog.Any("error", err))
		records, _ = e.fallback.Recent(ctx, e.maxRecords)
		return records
	}
	// Records that only made it to the fallback still count.
	if extra, err := e.fallback.Recent(ctx, e.maxRecords); err == nil && len(extra) > 0 {
		records = append(extra, records...)
		if len(records) > e.maxRecords {
			records = records[:e.maxRecords]
		}
	}
	return records
}

func dissenters(result models.AnalysisResult) []string {
	var out []string
	for _, r := range result.OracleResults {
		if r.Succeeded && r.State != "" && r.State != result.State {
			out = append(out, r.OracleName)
		}
	}
	return out
}

func deriveInsights(record models.HistoricalRecord, details string) []string {
	var insights []string
	if record.PriorConfidence > 0.8 && !record.PredictionAccurate {
		insights = append(insights, "high confidence prediction was inaccurate")
	}
	if record.PredictionAccurate && record.PriorConsensus > 0.7 && record.Outcome == models.OutcomeSuccess {
		insights = append(insights, "consensus correctly predicted a clean publish")
	}
	if record.Outcome == models.OutcomePartial {
		insights = append(insights, "publish partially succeeded; outcome treated as failure for prediction accuracy")
	}
	if record.PriorConflictCount > 0 && record.Outcome == models.OutcomeSuccess {
		insights = append(insights, fmt.Sprintf("publish succeeded despite %d open conflicts", record.PriorConflictCount))
	}
	if trimmed := strings.TrimSpace(details); trimmed != "" {
		insights = append(insights, trimmed)
	}
	return insights
}
