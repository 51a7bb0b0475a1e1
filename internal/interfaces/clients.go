// Package interfaces defines the service and storage contracts for FinLens
package interfaces

import (
	"context"

	"github.com/finlens/finlens/internal/models"
)

// MarketDataClient fetches raw price bars from an external source.
// Implementations classify failures into models.IngestionError reasons and
// never retry; retry policy belongs to the orchestrator.
type MarketDataClient interface {
	// FetchBars returns raw bars for the symbol over the closed range,
	// oldest first.
	FetchBars(ctx context.Context, symbol string, rng models.TimeRange, granularity models.Granularity) ([]models.Bar, error)
}
