package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/models"
	"github.com/finlens/finlens/internal/services/jobmanager"
	"github.com/finlens/finlens/internal/storage"
)

// reportRequestBody is the inbound request shape for report generation.
type reportRequestBody struct {
	Symbol      string                 `json:"symbol"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Granularity string                 `json:"granularity"`
	Indicators  []models.IndicatorSpec `json:"indicators"`
	Style       models.ChartStyle      `json:"style"`
	UserID      string                 `json:"user_id,omitempty"`
	Async       bool                   `json:"async,omitempty"`
}

func (b *reportRequestBody) toRequest() (*models.ReportRequest, error) {
	from, err := time.Parse("2006-01-02", b.From)
	if err != nil {
		return nil, &models.ParameterError{Param: "from", Msg: "want YYYY-MM-DD"}
	}
	to, err := time.Parse("2006-01-02", b.To)
	if err != nil {
		return nil, &models.ParameterError{Param: "to", Msg: "want YYYY-MM-DD"}
	}

	granularity := models.Granularity(b.Granularity)
	if b.Granularity == "" {
		granularity = models.GranularityDaily
	}

	return &models.ReportRequest{
		Symbol:      b.Symbol,
		Range:       models.TimeRange{From: from, To: to},
		Granularity: granularity,
		Indicators:  b.Indicators,
		Style:       b.Style,
		UserID:      b.UserID,
	}, nil
}

// handleGenerateReport runs a report request. Synchronous by default;
// async=true returns a job ID for polling.
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var body reportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &models.ParameterError{Param: "body", Msg: "malformed JSON"})
		return
	}

	req, err := body.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}

	if body.Async {
		jobID, err := s.app.Orchestrator.Submit(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
		return
	}

	report, err := s.app.Orchestrator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.ReportService.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	data, err := s.app.ChartStore.Get(r.Context(), r.PathValue("hash")+".png")
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			http.Error(w, "chart not found", http.StatusNotFound)
			return
		}
		http.Error(w, "chart read failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.Orchestrator.Status(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobmanager.ErrUnknownJob) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Orchestrator.Cancel(r.PathValue("id")); err != nil {
		if errors.Is(err, jobmanager.ErrUnknownJob) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// profileBody is the inbound request shape for profile save.
type profileBody struct {
	UserID  string          `json:"user_id"`
	Profile json.RawMessage `json:"profile"`
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &models.ParameterError{Param: "body", Msg: "malformed JSON"})
		return
	}

	if err := s.app.ProfileStore.SaveProfile(r.Context(), body.UserID, body.Profile); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"user_id": body.UserID})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.app.ProfileStore.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

// handlePrices returns a normalized series without running the pipeline.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 {
			s.writeError(w, &models.ParameterError{Param: "days", Msg: "want a positive integer"})
			return
		}
		days = parsed
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)
	rng := models.TimeRange{From: now.AddDate(0, 0, -days), To: now}

	series, err := s.app.IngestService.Fetch(r.Context(), symbol, rng, models.GranularityDaily)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	reports, _ := s.app.ReportStore.ListReports(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     common.GetVersion(),
		"environment": s.app.Config.Environment,
		"uptime":      time.Since(s.app.StartupTime).Round(time.Second).String(),
		"reports":     len(reports),
	})
}
