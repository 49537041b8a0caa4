package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/services"
)

// analyzeRequest is the wire form of an analysis call.
type analyzeRequest struct {
	PackageName      string `json:"package_name" binding:"required"`
	CandidateVersion string `json:"candidate_version" binding:"required"`
	PackagePath      string `json:"package_path"`
}

// outcomeRequest closes the feedback loop for a prior analysis.
type outcomeRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required"`
	Details    string `json:"details"`
}

type conflictDTO struct {
	Kind         string   `json:"kind"`
	Severity     string   `json:"severity"`
	Message      string   `json:"message"`
	Sources      []string `json:"sources"`
	Corroborated bool     `json:"corroborated"`
}

type recommendationDTO struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	AutoResolvable bool   `json:"auto_resolvable"`
}

type oracleResultDTO struct {
	Oracle         string  `json:"oracle"`
	Succeeded      bool    `json:"succeeded"`
	State          string  `json:"state"`
	Confidence     float64 `json:"confidence"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

type analysisResponse struct {
	ID               string              `json:"id"`
	PackageName      string              `json:"package_name"`
	CandidateVersion string              `json:"candidate_version"`
	State            string              `json:"state"`
	Confidence       float64             `json:"confidence"`
	ConsensusScore   float64             `json:"consensus_score"`
	Reliability      string              `json:"reliability"`
	SuggestedVersion string              `json:"suggested_version,omitempty"`
	Conflicts        []conflictDTO       `json:"conflicts"`
	Recommendations  []recommendationDTO `json:"recommendations"`
	Oracles          []oracleResultDTO   `json:"oracles"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toAnalysisResponse(res models.AnalysisResult) analysisResponse {
	out := analysisResponse{
		ID:               res.ID,
		PackageName:      res.PackageName,
		CandidateVersion: res.CandidateVersion,
		State:            string(res.State),
		Confidence:       res.Confidence,
		ConsensusScore:   res.ConsensusScore,
		Reliability:      string(res.Reliability),
		SuggestedVersion: res.SuggestedVersion,
		Conflicts:        make([]conflictDTO, 0, len(res.Conflicts)),
		Recommendations:  make([]recommendationDTO, 0, len(res.Recommendations)),
		Oracles:          make([]oracleResultDTO, 0, len(res.OracleResults)),
		CreatedAt:        res.CreatedAt,
	}
	for _, c := range res.Conflicts {
		out.Conflicts = append(out.Conflicts, conflictDTO{
			Kind:         string(c.Kind),
			Severity:     string(c.Severity),
			Message:      c.Message,
			Sources:      append([]string(nil), c.Sources...),
			Corroborated: c.Corroborated(),
		})
	}
	for _, r := range res.Recommendations {
		out.Recommendations = append(out.Recommendations, recommendationDTO{
			Kind:           string(r.Kind),
			Message:        r.Message,
			AutoResolvable: r.AutoResolvable,
		})
	}
	for _, or := range res.OracleResults {
		out.Oracles = append(out.Oracles, oracleResultDTO{
			Oracle:         or.OracleName,
			Succeeded:      or.Succeeded,
			State:          string(or.State),
			Confidence:     or.Confidence,
			ResponseTimeMs: or.ResponseTime.Milliseconds(),
			Error:          or.Err,
		})
	}
	return out
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.service.Analyze(c.Request.Context(), models.AnalyzeRequest{
		PackageName:      req.PackageName,
		CandidateVersion: req.CandidateVersion,
		PackagePath:      req.PackagePath,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAnalysisResponse(result))
}

func (s *Server) handleOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.service.RecordOutcomeByID(c.Request.Context(), req.AnalysisID, models.Outcome(req.Outcome), req.Details)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrAnalysisNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"package_name":        record.PackageName,
		"version":             record.Version,
		"outcome":             string(record.Outcome),
		"prediction_accurate": record.PredictionAccurate,
		"insights":            record.Insights,
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleAlerts(c *gin.Context) {
	includeResolved := c.Query("include_resolved") == "true"
	c.JSON(http.StatusOK, gin.H{"alerts": s.service.Alerts(includeResolved)})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if !s.service.ResolveAlert(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found or already resolved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.service.Snapshot()
	code := http.StatusOK
	if snap.Status == "critical" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": snap.Status})
}
