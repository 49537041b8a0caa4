// Package monitor observes engine activity in real time: rolling performance
// statistics, periodic health checks, and threshold-based alerting.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/pkg-sentinel/internal/metrics"
	"github.com/sentinelstack/pkg-sentinel/internal/models"
)

// Status classifies the engine's overall health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// AlertType enumerates the conditions the monitor watches.
type AlertType string

const (
	AlertResponseTime   AlertType = "response-time"
	AlertSuccessRate    AlertType = "success-rate"
	AlertOracleCoverage AlertType = "oracle-coverage"
	AlertInactivity     AlertType = "inactivity"
	AlertLowConfidence  AlertType = "low-confidence"
)

// Alert is raised when a rolling metric crosses a threshold. Message is the
// stable condition; Detail carries the measured value and is refreshed while
// the condition persists. Resolved and ResolvedAt are only mutated through
// ResolveAlert.
type Alert struct {
	ID         string          `json:"id"`
	Type       AlertType       `json:"type"`
	Severity   models.Severity `json:"severity"`
	Message    string          `json:"message"`
	Detail     string          `json:"detail,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	LastSeen   time.Time       `json:"last_seen"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

// maxRetainedAlerts bounds the alert log; oldest resolved alerts are pruned
// past this point.
const maxRetainedAlerts = 200

// Config tunes the polling loop and alert thresholds.
type Config struct {
	PollInterval    time.Duration
	HistorySize     int
	MaxIdle         time.Duration
	MaxFailureRate  float64
	MaxAvgResponse  time.Duration
	MinOracleCover  float64
	MinConfidence   float64
	MinSampleCount  int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 500
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 5 * time.Minute
	}
	if c.MaxFailureRate <= 0 {
		c.MaxFailureRate = 0.25
	}
	if c.MaxAvgResponse <= 0 {
		c.MaxAvgResponse = 3 * time.Second
	}
	if c.MinOracleCover <= 0 {
		c.MinOracleCover = 0.5
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.4
	}
	if c.MinSampleCount <= 0 {
		c.MinSampleCount = 5
	}
}

type sample struct {
	at         time.Time
	confidence float64
	duration   time.Duration
	failed     bool
	responded  int
	oracles    int
}

type oracleAgg struct {
	count        int
	failures     int
	totalLatency time.Duration
}

// OracleStats is the per-oracle row in a snapshot.
type OracleStats struct {
	Name        string        `json:"name"`
	Invocations int           `json:"invocations"`
	Failures    int           `json:"failures"`
	Reliability float64       `json:"reliability"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// Snapshot is the exportable view of current engine health.
type Snapshot struct {
	Status          Status        `json:"status"`
	StatusReasons   []string      `json:"status_reasons,omitempty"`
	TotalAnalyses   int64         `json:"total_analyses"`
	WindowSize      int           `json:"window_size"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	AvgConfidence   float64       `json:"avg_confidence"`
	LastActivity    time.Time     `json:"last_activity"`
	Oracles         []OracleStats `json:"oracles"`
	ActiveAlerts    int           `json:"active_alerts"`
	Alerts          []Alert       `json:"alerts"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Monitor ingests completed analyses and runs the periodic health loop.
type Monitor struct {
	mu            sync.Mutex
	cfg           Config
	logger        *slog.Logger
	samples       []sample
	alerts        []*Alert
	totalAnalyses int64
	lastActivity  time.Time
	startedAt     time.Time

	oracleStats map[string]*oracleAgg

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New constructs a Monitor. Start must be called to run the health loop;
// Ingest works either way.
func New(logger *slog.Logger, cfg Config) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Monitor{
		cfg:         cfg,
		logger:      logger,
		oracleStats: make(map[string]*oracleAgg),
		startedAt:   time.Now(),
	}
}

// Start launches the periodic health-check loop. Calling Start twice is an error.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx)
	return nil
}

// Stop terminates the loop and waits for it to exit, so the ticker never leaks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.healthCheck()
		}
	}
}

// Ingest records one completed analysis into the sliding window and updates
// running aggregates. Threshold checks run inline so alerts fire promptly
// rather than waiting for the next poll.
func (m *Monitor) Ingest(result models.AnalysisResult, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	responded := 0
	for _, r := range result.OracleResults {
		agg, ok := m.oracleStats[r.OracleName]
		if !ok {
			agg = &oracleAgg{}
			m.oracleStats[r.OracleName] = agg
		}
		agg.count++
		agg.totalLatency += r.ResponseTime
		if r.Succeeded {
			responded++
		} else {
			agg.failures++
		}
	}

	m.samples = append(m.samples, sample{
		at:         time.Now(),
		confidence: result.Confidence,
		duration:   duration,
		failed:     result.State == models.StateUnknown,
		responded:  responded,
		oracles:    len(result.OracleResults),
	})
	if len(m.samples) > m.cfg.HistorySize {
		copy(m.samples[0:], m.samples[1:])
		m.samples = m.samples[:m.cfg.HistorySize]
	}
	m.totalAnalyses++
	m.lastActivity = time.Now()

	m.checkThresholdsLocked()
	metrics.SetActiveAlerts(m.activeAlertCountLocked())
}

func (m *Monitor) checkThresholdsLocked() {
	if len(m.samples) < m.cfg.MinSampleCount {
		return
	}

	avgResponse, successRate, avgConfidence, coverage := m.rollingLocked()

	if avgResponse > m.cfg.MaxAvgResponse {
		m.raiseLocked(AlertResponseTime, models.SeverityMedium,
			"rolling average response time exceeds threshold",
			fmt.Sprintf("%s over limit %s", avgResponse.Round(time.Millisecond), m.cfg.MaxAvgResponse))
	}
	if 1-successRate > m.cfg.MaxFailureRate {
		m.raiseLocked(AlertSuccessRate, models.SeverityHigh,
			"rolling failure rate exceeds threshold",
			fmt.Sprintf("%.2f over limit %.2f", 1-successRate, m.cfg.MaxFailureRate))
	}
	if coverage < m.cfg.MinOracleCover {
		m.raiseLocked(AlertOracleCoverage, models.SeverityHigh,
			"oracle coverage below threshold",
			fmt.Sprintf("%.2f under limit %.2f", coverage, m.cfg.MinOracleCover))
	}
	if avgConfidence < m.cfg.MinConfidence {
		m.raiseLocked(AlertLowConfidence, models.SeverityMedium,
			"rolling average confidence below threshold",
			fmt.Sprintf("%.2f under limit %.2f", avgConfidence, m.cfg.MinConfidence))
	}
}

func (m *Monitor) rollingLocked() (avgResponse time.Duration, successRate, avgConfidence, coverage float64) {
	if len(m.samples) == 0 {
		return 0, 1, 0, 1
	}
	var totalDur time.Duration
	failures := 0
	confSum := 0.0
	respondedSum, oracleSum := 0, 0
	for _, s := range m.samples {
		totalDur += s.duration
		confSum += s.confidence
		respondedSum += s.responded
		oracleSum += s.oracles
		if s.failed {
			failures++
		}
	}
	n := len(m.samples)
	avgResponse = totalDur / time.Duration(n)
	successRate = 1 - float64(failures)/float64(n)
	avgConfidence = confSum / float64(n)
	coverage = 1
	if oracleSum > 0 {
		coverage = float64(respondedSum) / float64(oracleSum)
	}
	return avgResponse, successRate, avgConfidence, coverage
}

// healthCheck runs from the polling loop: it classifies overall status and
// raises the inactivity alert, which Ingest can never see.
func (m *Monitor) healthCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalAnalyses > 0 && time.Since(m.lastActivity) > m.cfg.MaxIdle {
		m.raiseLocked(AlertInactivity, models.SeverityMedium,
			"no analyses within the idle window",
			fmt.Sprintf("idle for %s, limit %s", time.Since(m.lastActivity).Round(time.Second), m.cfg.MaxIdle))
	}

	status, reasons := m.statusLocked()
	if status != StatusHealthy {
		m.logger.Warn("health degraded", slog.String("status", string(status)), slog.Any("reasons", reasons))
	}
	metrics.SetActiveAlerts(m.activeAlertCountLocked())
}

func (m *Monitor) statusLocked() (Status, []string) {
	var reasons []string
	status := StatusHealthy

	avgResponse, successRate, _, coverage := m.rollingLocked()
	idle := m.totalAnalyses > 0 && time.Since(m.lastActivity) > m.cfg.MaxIdle

	if len(m.samples) >= m.cfg.MinSampleCount {
		if 1-successRate > m.cfg.MaxFailureRate {
			status = StatusCritical
			reasons = append(reasons, fmt.Sprintf("failure rate %.2f", 1-successRate))
		}
		if coverage < m.cfg.MinOracleCover {
			status = StatusCritical
			reasons = append(reasons, fmt.Sprintf("oracle coverage %.2f", coverage))
		}
		if avgResponse > m.cfg.MaxAvgResponse && status == StatusHealthy {
			status = StatusWarning
			reasons = append(reasons, fmt.Sprintf("avg response %s", avgResponse.Round(time.Millisecond)))
		}
	}
	if idle && status == StatusHealthy {
		status = StatusWarning
		reasons = append(reasons, "engine idle")
	}
	return status, reasons
}

// raiseLocked creates an alert unless an unresolved alert with the same
// (type, message) signature is already active. The signature must not embed
// measured values: a persisting condition refreshes the existing alert's
// Detail rather than spawning a duplicate per reading.
func (m *Monitor) raiseLocked(alertType AlertType, severity models.Severity, message, detail string) {
	now := time.Now().UTC()
	for _, a := range m.alerts {
		if !a.Resolved && a.Type == alertType && a.Message == message {
			a.Detail = detail
			a.LastSeen = now
			return
		}
	}
	alert := &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Detail:    detail,
		Timestamp: now,
		LastSeen:  now,
	}
	m.alerts = append(m.alerts, alert)
	m.pruneLocked()
	m.logger.Warn("alert raised",
		slog.String("type", string(alertType)),
		slog.String("severity", string(severity)),
		slog.String("message", message),
		slog.String("detail", detail))
}

// pruneLocked drops the oldest resolved alerts once the log exceeds its cap.
// Unresolved alerts are never pruned.
func (m *Monitor) pruneLocked() {
	excess := len(m.alerts) - maxRetainedAlerts
	if excess <= 0 {
		return
	}
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if excess > 0 && a.Resolved {
			excess--
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
}

func (m *Monitor) activeAlertCountLocked() int {
	count := 0
	for _, a := range m.alerts {
		if !a.Resolved {
			count++
		}
	}
	return count
}

// ResolveAlert flips the alert's resolved flag. The monitor never resolves
// alerts on its own.
func (m *Monitor) ResolveAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id && !a.Resolved {
			a.Resolved = true
			a.ResolvedAt = time.Now().UTC()
			metrics.SetActiveAlerts(m.activeAlertCountLocked())
			return true
		}
	}
	return false
}

// Alerts returns a copy of alerts, optionally including resolved ones.
func (m *Monitor) Alerts(includeResolved bool) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !includeResolved && a.Resolved {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Snapshot assembles the current rolling statistics for export.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	avgResponse, successRate, avgConfidence, _ := m.rollingLocked()
	status, reasons := m.statusLocked()

	snap := Snapshot{
		Status:          status,
		StatusReasons:   reasons,
		TotalAnalyses:   m.totalAnalyses,
		WindowSize:      len(m.samples),
		SuccessRate:     successRate,
		AvgResponseTime: avgResponse,
		AvgConfidence:   avgConfidence,
		LastActivity:    m.lastActivity,
		ActiveAlerts:    m.activeAlertCountLocked(),
		GeneratedAt:     time.Now().UTC(),
	}
	for _, a := range m.alerts {
		snap.Alerts = append(snap.Alerts, *a)
	}
	for name, agg := range m.oracleStats {
		stats := OracleStats{
			Name:        name,
			Invocations: agg.count,
			Failures:    agg.failures,
		}
		if agg.count > 0 {
			stats.Reliability = 1 - float64(agg.failures)/float64(agg.count)
			stats.AvgLatency = agg.totalLatency / time.Duration(agg.count)
		}
		snap.Oracles = append(snap.Oracles, stats)
	}
	sort.Slice(snap.Oracles, func(i, j int) bool { return snap.Oracles[i].Name < snap.Oracles[j].Name })
	return snap
}

// ExportJSON serialises the snapshot for external consumption.
func (m *Monitor) ExportJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}
