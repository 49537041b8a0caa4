package models

import "time"

// VersionHistory is the reconstructed record of every version a package has
// ever carried. Every version that ever existed is permanently unusable,
// including versions that were later unpublished.
type VersionHistory struct {
	PackageName       string
	AllVersions       []string
	Published         []string
	UnpublishedBurned []string
}

// Burned reports whether the exact version string has ever existed.
func (h VersionHistory) Burned(version string) bool {
	for _, v := range h.AllVersions {
		if v == version {
			return true
		}
	}
	return false
}

// BurnedSet returns the burned versions as a lookup set.
func (h VersionHistory) BurnedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(h.AllVersions))
	for _, v := range h.AllVersions {
		set[v] = struct{}{}
	}
	return set
}

// Outcome records how a previously analyzed publish actually went.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// HistoricalRecord pairs a prior analysis with its real-world outcome.
// Records are append-only and owned by the learning engine.
type HistoricalRecord struct {
	Timestamp          time.Time
	PackageName        string
	Version            string
	PriorState         OracleState
	PriorConfidence    float64
	PriorConsensus     float64
	PriorConflictCount int
	Outcome            Outcome
	PredictionAccurate bool
	Insights           []string
	// DissentingOracles lists oracles whose state disagreed with the fused
	// decision, feeding the advisory oracle re-weighting proposals.
	DissentingOracles []string
}
