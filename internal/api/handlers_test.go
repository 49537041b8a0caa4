package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/config"
	"github.com/sentinelstack/pkg-sentinel/internal/engine"
	"github.com/sentinelstack/pkg-sentinel/internal/learning"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/monitor"
	"github.com/sentinelstack/pkg-sentinel/internal/oracles"
	"github.com/sentinelstack/pkg-sentinel/internal/services"
)

type stubOracle struct {
	name   string
	result models.OracleResult
}

func (s stubOracle) Name() string { return s.name }

func (s stubOracle) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error) {
	return s.result, nil
}

func newTestServer(t *testing.T) *Server {
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

	svc := services.NewAnalysisService(nil, fusion, learn, mon, memCache, time.Minute)
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0"}, nil, svc)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyze", map[string]string{
		"package_name":      "pkg-a",
		"candidate_version": "1.1.0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" || resp.PackageName != "pkg-a" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Oracles) != 2 {
		t.Fatalf("expected 2 oracle rows, got %d", len(resp.Oracles))
	}
}

func TestHandleAnalyzeMissingFields(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyze", map[string]string{
		"package_name": "pkg-a",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleOutcomeRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyze", map[string]string{
		"package_name":      "pkg-a",
		"candidate_version": "1.1.0",
	})
	var analysis analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/outcomes", map[string]string{
		"analysis_id": analysis.ID,
		"outcome":     "success",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOutcomeInvalidOutcomeValue(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyze", map[string]string{
		"package_name":      "pkg-a",
		"candidate_version": "1.1.0",
	})
	var analysis analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/outcomes", map[string]string{
		"analysis_id": analysis.ID,
		"outcome":     "exploded",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad outcome value, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOutcomeUnknownAnalysis(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/outcomes", map[string]string{
		"analysis_id": "no-such-analysis",
		"outcome":     "success",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSnapshot(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/monitor/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap monitor.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
}

func TestHandleAlertsEmpty(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleResolveUnknownAlert(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/alerts/no-such-id/resolve", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
