package oracles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/providers"
)

type fakeRegistry struct {
	info    providers.RegistryInfo
	err     error
	lookups int
}

func (f *fakeRegistry) Lookup(ctx context.Context, packageName string) (providers.RegistryInfo, error) {
	f.lookups++
	return f.info, f.err
}

type fakeAudit struct {
	log providers.AuditLog
	err error
}

func (f *fakeAudit) VersionLog(ctx context.Context, packageName string) (providers.AuditLog, error) {
	return f.log, f.err
}

type fakeSource struct {
	tags []string
	err  error
}

func (f *fakeSource) Tags(ctx context.Context, path string) ([]string, error) {
	return f.tags, f.err
}

func (f *fakeSource) RecentCommits(ctx context.Context, path string, limit int) ([]providers.Commit, error) {
	return nil, f.err
}

func TestPolicyOracleUnpublishedVersionIsBurned(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"0.9.0"}}}
	audit := &fakeAudit{log: providers.AuditLog{
		AllVersions: []string{"0.9.0", "1.0.0"},
		Unpublished: []string{"1.0.0"},
	}}
	o := NewPolicyOracle(registry, audit, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateVersionViolation {
		t.Fatalf("unpublished version must stay burned, got %s", res.State)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Kind != models.KindVersionReuse {
		t.Fatalf("expected a version-reuse conflict, got %+v", res.Conflicts)
	}
	if res.Conflicts[0].Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", res.Conflicts[0].Severity)
	}
}

func TestPolicyOracleNotGreaterThanHighestSeen(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"1.2.0"}}}
	o := NewPolicyOracle(registry, nil, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateVersionViolation {
		t.Fatalf("expected violation for non-increasing version, got %s", res.State)
	}
	if res.Conflicts[0].Kind != models.KindVersionNotGreater {
		t.Fatalf("expected version-not-greater conflict, got %s", res.Conflicts[0].Kind)
	}
}

func TestPolicyOracleCompliantBump(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"1.0.0"}}}
	o := NewPolicyOracle(registry, nil, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateVersionCompliant {
		t.Fatalf("expected compliant, got %s", res.State)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %f", res.Confidence)
	}
}

func TestPolicyOracleInvalidCandidateIsNotCompliant(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"1.0.0"}}}
	o := NewPolicyOracle(registry, nil, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "garbage"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateUnknown {
		t.Fatalf("unparseable candidate must not look compliant, got %s", res.State)
	}
	if res.Confidence >= 0.5 {
		t.Fatalf("expected low confidence for unparseable candidate, got %f", res.Confidence)
	}
	if len(res.ReportedVersions) != 1 {
		t.Fatalf("expected history carried through, got %v", res.ReportedVersions)
	}
}

func TestPolicyOracleNewPackage(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{NotFound: true}}
	o := NewPolicyOracle(registry, nil, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-new", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != models.StateNewPackage {
		t.Fatalf("expected new-package, got %s", res.State)
	}
}

func TestPolicyOracleToleratesPartialSourceOutage(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("registry down")}
	audit := &fakeAudit{log: providers.AuditLog{AllVersions: []string{"1.0.0"}}}
	o := NewPolicyOracle(registry, audit, nil, nil, time.Minute, nil)

	res, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("one live source must be enough: %v", err)
	}
	if res.State != models.StateVersionViolation {
		t.Fatalf("expected burned version caught via audit log, got %s", res.State)
	}
}

func TestPolicyOracleFailsWhenAllSourcesDown(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("registry down")}
	audit := &fakeAudit{err: errors.New("audit down")}
	o := NewPolicyOracle(registry, audit, nil, nil, time.Minute, nil)

	if _, err := o.Analyze(context.Background(), models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.0.0"}); err == nil {
		t.Fatalf("expected error when every history source is down")
	}
}

func TestPolicyOracleCachesHistory(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"1.0.0"}}}
	memCache := cache.NewMemoryProvider(time.Minute)
	defer memCache.Close()
	o := NewPolicyOracle(registry, nil, nil, memCache, time.Minute, nil)

	req := models.AnalyzeRequest{PackageName: "pkg-a", CandidateVersion: "1.1.0"}
	if _, err := o.Analyze(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.Analyze(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.lookups != 1 {
		t.Fatalf("expected one registry lookup with a warm cache, got %d", registry.lookups)
	}
}

func TestBuildHistorySplitsPublishedAndUnpublished(t *testing.T) {
	registry := &fakeRegistry{info: providers.RegistryInfo{Versions: []string{"0.9.0"}}}
	audit := &fakeAudit{log: providers.AuditLog{
		AllVersions: []string{"0.9.0", "1.0.0"},
		Unpublished: []string{"1.0.0"},
	}}
	o := NewPolicyOracle(registry, audit, nil, nil, time.Minute, nil)

	history, err := o.BuildHistory(context.Background(), "pkg-a", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.AllVersions) != 2 {
		t.Fatalf("expected union of 2 versions, got %v", history.AllVersions)
	}
	if len(history.Published) != 1 || history.Published[0] != "0.9.0" {
		t.Fatalf("expected only 0.9.0 published, got %v", history.Published)
	}
	if len(history.UnpublishedBurned) != 1 || history.UnpublishedBurned[0] != "1.0.0" {
		t.Fatalf("expected 1.0.0 unpublished-burned, got %v", history.UnpublishedBurned)
	}
}
