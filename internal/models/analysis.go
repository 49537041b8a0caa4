package models

import "time"

// OracleState classifies what an oracle believes about a candidate release.
type OracleState string

const (
	StateNewPackage       OracleState = "new-package"
	StateVersionExists    OracleState = "version-exists"
	StateVersionBump      OracleState = "version-bump"
	StateVersionCompliant OracleState = "version-compliant"
	StateVersionViolation OracleState = "version-violation"
	StateUnknown          OracleState = "unknown"
)

// ConflictKind enumerates finding categories contributed by oracles.
type ConflictKind string

const (
	KindVersionReuse       ConflictKind = "version-reuse-attempted"
	KindVersionNotGreater  ConflictKind = "version-not-greater"
	KindInvalidVersion     ConflictKind = "invalid-version"
	KindPublishedCollision ConflictKind = "published-version-collision"
	KindLocalStateMismatch ConflictKind = "local-state-mismatch"
	KindArtifactMissing    ConflictKind = "artifact-missing"
	KindStaleArtifact      ConflictKind = "stale-artifact"
	KindUnknownConflict    ConflictKind = "unknown"
)

// Severity captures impact levels for conflicts and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so merges can promote to the maximum observed.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Reliability is a coarse, advisory trust label for an analysis.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Conflict is a deduplicated finding, tracking which oracles corroborate it.
type Conflict struct {
	Kind     ConflictKind
	Severity Severity
	Message  string
	Sources  []string
}

// Corroborated reports whether more than one distinct oracle backs the finding.
func (c Conflict) Corroborated() bool {
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		seen[s] = struct{}{}
	}
	return len(seen) > 1
}

// OracleResult is the immutable answer one oracle gives for one analysis.
type OracleResult struct {
	OracleName       string
	Succeeded        bool
	State            OracleState
	Confidence       float64
	Conflicts        []Conflict
	ReportedVersions []string
	ResponseTime     time.Duration
	Err              string
}

// RecommendationKind enumerates the follow-up actions the engine can attach.
type RecommendationKind string

const (
	RecommendVersionBump        RecommendationKind = "version-bump"
	RecommendManualReview       RecommendationKind = "manual-review"
	RecommendVerificationNeeded RecommendationKind = "verification-needed"
)

// Recommendation is an actionable suggestion attached to an analysis result.
type Recommendation struct {
	Kind           RecommendationKind
	Message        string
	AutoResolvable bool
}

// AnalysisResult is the fused decision returned to callers. It is never
// mutated after the engine returns it.
type AnalysisResult struct {
	ID               string
	PackageName      string
	CandidateVersion string
	State            OracleState
	Confidence       float64
	Conflicts        []Conflict
	ConsensusScore   float64
	Reliability      Reliability
	Recommendations  []Recommendation
	SuggestedVersion string
	OracleResults    []OracleResult
	CreatedAt        time.Time
}

// HasConflictAtLeast reports whether any conflict meets the given severity.
func (r AnalysisResult) HasConflictAtLeast(sev Severity) bool {
	for _, c := range r.Conflicts {
		if c.Severity.AtLeast(sev) {
			return true
		}
	}
	return false
}
