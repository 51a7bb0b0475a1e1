// Package report assembles chart artifacts and statistics into persisted reports
package report

import (
	"context"
	"time"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/indicators"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
)

// Service implements ReportService.
type Service struct {
	store    interfaces.ReportStore
	profiles interfaces.ProfileStore
	logger   *common.Logger
}

// NewService creates a new report service.
func NewService(store interfaces.ReportStore, profiles interfaces.ProfileStore, logger *common.Logger) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		logger:   logger,
	}
}

// Assemble composes artifacts and statistics into a persisted report. The
// report ID is derived from the inputs, so repeated assembly of the same
// logical report returns the stored document instead of creating another.
func (s *Service) Assemble(ctx context.Context, req *models.ReportRequest, series *models.Series, artifacts []models.ChartArtifact) (*models.Report, error) {
	stats := indicators.Summarize(series)

	hashes := make([]string, len(artifacts))
	for i, a := range artifacts {
		hashes[i] = a.Hash
	}
	id := models.ReportID(req.Symbol, hashes, stats)

	if exists, err := s.store.HasReport(ctx, id); err == nil && exists {
		s.logger.Debug().Str("report_id", id).Msg("Report already assembled")
		return s.store.GetReport(ctx, id)
	}

	report := &models.Report{
		ID:          id,
		Symbol:      req.Symbol,
		Range:       req.Range,
		Granularity: req.Granularity,
		Status:      models.ReportStatusComplete,
		Artifacts:   artifacts,
		Stats:       stats,
		GeneratedAt: time.Now().UTC(),
	}

	// Attach the requesting user's profile when one is stored. A missing
	// profile is not an assembly failure.
	if req.UserID != "" {
		if profile, err := s.profiles.GetProfile(ctx, req.UserID); err == nil {
			report.Profile = profile
		}
	}

	if err := s.store.SaveReport(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("report_id", id).
		Str("symbol", req.Symbol).
		Int("artifacts", len(artifacts)).
		Msg("Report assembled")

	return report, nil
}

// GetReport loads a report by identifier.
func (s *Service) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return s.store.GetReport(ctx, id)
}

var _ interfaces.ReportService = (*Service)(nil)
