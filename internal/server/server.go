// Package server exposes the FinLens engine over HTTP. This is the thin
// deployment shell; all pipeline behavior lives in the services.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/finlens/finlens/internal/app"
	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/models"
)

// Server wraps the engine with HTTP handlers.
type Server struct {
	app    *app.App
	logger *common.Logger
}

// New creates a server over an initialized app.
func New(a *app.App) *Server {
	return &Server{app: a, logger: a.Logger}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)

	mux.HandleFunc("POST /api/reports", s.handleGenerateReport)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/charts/{hash}", s.handleGetChart)

	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleJobCancel)

	mux.HandleFunc("POST /api/profiles", s.handleSaveProfile)
	mux.HandleFunc("GET /api/profiles/{id}", s.handleGetProfile)

	mux.HandleFunc("GET /api/prices", s.handlePrices)

	return mux
}

// envelope is the standard response wrapper.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch models.ErrorKind(err) {
	case "parameter", "ingestion_" + string(models.IngestInvalidRange):
		status = http.StatusBadRequest
	case "ingestion_" + string(models.IngestNotFound):
		status = http.StatusNotFound
	case "ingestion_" + string(models.IngestSourceUnavailable), "ingestion_" + string(models.IngestTimeout):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}
