package interfaces

import (
	"context"

	"github.com/finlens/finlens/internal/models"
)

// IngestService normalizes raw source data into validated series.
type IngestService interface {
	// Fetch returns a Series satisfying the ordering invariant, consulting
	// the raw on-disk cache before the external source.
	Fetch(ctx context.Context, symbol string, rng models.TimeRange, granularity models.Granularity) (*models.Series, error)

	// PruneRawCache removes raw cache entries older than maxAge and returns
	// the number removed.
	PruneRawCache(ctx context.Context) (int, error)
}

// ChartRenderer renders a series plus overlays into a persisted artifact.
type ChartRenderer interface {
	// Render produces a content-addressed chart artifact. Identical inputs
	// yield an identical hash; an already-stored artifact is not rendered
	// again.
	Render(ctx context.Context, series *models.Series, overlays []*models.IndicatorResult, style models.ChartStyle) (*models.ChartArtifact, error)
}

// ReportService assembles and retrieves persisted reports.
type ReportService interface {
	// Assemble builds and persists a report. Assembly is idempotent: the
	// same inputs yield the same report ID and a single stored document.
	Assemble(ctx context.Context, req *models.ReportRequest, series *models.Series, artifacts []models.ChartArtifact) (*models.Report, error)

	// GetReport loads a report by identifier.
	GetReport(ctx context.Context, id string) (*models.Report, error)
}

// Orchestrator coordinates report generation jobs.
type Orchestrator interface {
	// Submit enqueues an asynchronous job and returns its ID.
	Submit(ctx context.Context, req *models.ReportRequest) (string, error)

	// Generate runs a request synchronously to a terminal state.
	Generate(ctx context.Context, req *models.ReportRequest) (*models.Report, error)

	// Status returns the externally visible state of a job.
	Status(jobID string) (*models.JobStatus, error)

	// Cancel requests cancellation of a pending or running job. Takes
	// effect at the next stage boundary.
	Cancel(jobID string) error
}
