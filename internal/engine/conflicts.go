package engine

import "github.com/sentinelstack/pkg-sentinel/internal/models"

type conflictKey struct {
	kind    models.ConflictKind
	message string
}

// AggregateConflicts deduplicates conflicts keyed by (kind, message). The
// first occurrence seeds the merged record; later occurrences append their
// sources and promote severity to the maximum seen. Sources only grow.
func AggregateConflicts(conflicts []models.Conflict) []models.Conflict {
	merged := make(map[conflictKey]*models.Conflict)
	order := make([]conflictKey, 0, len(conflicts))

	for _, c := range conflicts {
		key := conflictKey{kind: c.Kind, message: c.Message}
		existing, ok := merged[key]
		if !ok {
			clone := c
			clone.Sources = appendMissingSources(nil, c.Sources)
			merged[key] = &clone
			order = append(order, key)
			continue
		}
		existing.Sources = appendMissingSources(existing.Sources, c.Sources)
		if c.Severity.Rank() > existing.Severity.Rank() {
			existing.Severity = c.Severity
		}
	}

	out := make([]models.Conflict, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}

func appendMissingSources(existing []string, additions []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range additions {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		existing = append(existing, s)
		seen[s] = struct{}{}
	}
	return existing
}
