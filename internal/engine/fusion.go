// Package engine fuses the answers of all oracles into one decision.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/oracles"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// Engine dispatches all oracles concurrently and fuses their results via
// weighted voting, with a hard override for version-policy violations.
type Engine struct {
	logger             *slog.Logger
	oracles            []oracles.Oracle
	oracleTimeout      time.Duration
	consensusThreshold float64
}

// New constructs the fusion engine over an ordered oracle set.
func New(logger *slog.Logger, oracleSet []oracles.Oracle, oracleTimeout time.Duration, consensusThreshold float64) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if consensusThreshold <= 0 || consensusThreshold > 1 {
		consensusThreshold = 0.6
	}
	return &Engine{
		logger:             logger,
		oracles:            oracleSet,
		oracleTimeout:      oracleTimeout,
		consensusThreshold: consensusThreshold,
	}
}

// Analyze runs the full fan-out/fuse cycle for one candidate release.
func (e *Engine) Analyze(ctx context.Context, req models.AnalyzeRequest) models.AnalysisResult {
	return e.Fuse(e.dispatch(ctx, req), req)
}

// dispatch invokes every oracle concurrently and waits for the whole set.
// Execute never fails past the oracle boundary, so the group always drains.
func (e *Engine) dispatch(ctx context.Context, req models.AnalyzeRequest) []models.OracleResult {
	results := make([]models.OracleResult, len(e.oracles))
	g, gctx := errgroup.WithContext(ctx)
	for i, o := range e.oracles {
		i, o := i, o
		g.Go(func() error {
			results[i] = oracles.Execute(gctx, o, req, e.oracleTimeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Fuse combines oracle results into one AnalysisResult. The version-policy
// check is evaluated first and short-circuits everything else: a detected
// policy violation is deterministic, so no contrary confidence from weaker
// oracles may relax it.
func (e *Engine) Fuse(results []models.OracleResult, req models.AnalyzeRequest) models.AnalysisResult {
	out := models.AnalysisResult{
		ID:               uuid.NewString(),
		PackageName:      req.PackageName,
		CandidateVersion: req.CandidateVersion,
		OracleResults:    results,
		CreatedAt:        time.Now().UTC(),
	}

	consensusScore, reliability := Score(results)
	out.ConsensusScore = consensusScore
	out.Reliability = reliability

	allConflicts := collectConflicts(results)

	if policy := findResult(results, oracles.NamePolicy); policy != nil &&
		policy.Succeeded && policy.State == models.StateVersionViolation {
		out.State = models.StateVersionViolation
		out.Confidence = 1.0
		out.Conflicts = AggregateConflicts(allConflicts)
		out.SuggestedVersion = suggestVersion(req.CandidateVersion, results)
		out.Recommendations = e.buildRecommendations(out, 1.0)
		e.logger.Debug("policy override applied",
			slog.String("package", req.PackageName),
			slog.String("version", req.CandidateVersion))
		return out
	}

	state, agreement := weightedVote(results)
	out.State = state

	confidence := agreement
	if agreement < e.consensusThreshold {
		// An inconclusive vote must not present a confident-looking number.
		confidence *= 0.5
	}
	out.Confidence = utils.Clamp01(confidence)
	out.Conflicts = AggregateConflicts(allConflicts)

	if state == models.StateVersionExists || state == models.StateVersionViolation {
		out.SuggestedVersion = suggestVersion(req.CandidateVersion, results)
	}
	out.Recommendations = e.buildRecommendations(out, agreement)
	return out
}

// weightedVote tallies each succeeded oracle's state weighted by its
// confidence and returns the winner plus its share of the total weight.
func weightedVote(results []models.OracleResult) (models.OracleState, float64) {
	votes := make(map[models.OracleState]float64)
	total := 0.0
	for _, r := range results {
		if !r.Succeeded || r.State == "" {
			continue
		}
		votes[r.State] += r.Confidence
		total += r.Confidence
	}
	if total == 0 {
		return models.StateUnknown, 0.1
	}

	states := make([]models.OracleState, 0, len(votes))
	for state := range votes {
		states = append(states, state)
	}
	// Deterministic winner for equal weights.
	sort.Slice(states, func(i, j int) bool {
		if votes[states[i]] != votes[states[j]] {
			return votes[states[i]] > votes[states[j]]
		}
		return states[i] < states[j]
	})

	winner := states[0]
	return winner, votes[winner] / total
}

// reconcileVersions counts how many distinct oracles mention each version. A
// version is trusted in proportion to its corroboration.
func reconcileVersions(results []models.OracleResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		if !r.Succeeded {
			continue
		}
		seen := make(map[string]struct{}, len(r.ReportedVersions))
		for _, v := range r.ReportedVersions {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			counts[v]++
		}
	}
	return counts
}

func collectConflicts(results []models.OracleResult) []models.Conflict {
	var conflicts []models.Conflict
	for _, r := range results {
		for _, c := range r.Conflicts {
			if len(c.Sources) == 0 {
				c.Sources = []string{r.OracleName}
			}
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

func findResult(results []models.OracleResult, name string) *models.OracleResult {
	for i := range results {
		if results[i].OracleName == name {
			return &results[i]
		}
	}
	return nil
}
