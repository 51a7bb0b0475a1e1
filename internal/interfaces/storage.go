package interfaces

import (
	"context"
	"encoding/json"

	"github.com/finlens/finlens/internal/models"
)

// ReportStore persists report documents, one per identifier.
type ReportStore interface {
	SaveReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	HasReport(ctx context.Context, id string) (bool, error)
	ListReports(ctx context.Context) ([]string, error)
}

// ProfileStore persists user profile documents keyed by user ID.
type ProfileStore interface {
	SaveProfile(ctx context.Context, userID string, profile json.RawMessage) error
	GetProfile(ctx context.Context, userID string) (json.RawMessage, error)
}
