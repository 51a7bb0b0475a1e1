// Package ingest fetches and normalizes market time-series
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
	"github.com/finlens/finlens/internal/storage"
)

// Service implements IngestService. It wraps the source client with range
// validation, a raw on-disk cache keyed purely on (symbol, range,
// granularity), and series normalization.
type Service struct {
	client   interfaces.MarketDataClient
	rawCache storage.BlobStore
	logger   *common.Logger
	maxAge   time.Duration
}

// NewService creates a new ingest service. maxAge bounds how long raw cache
// entries are served before the source is consulted again.
func NewService(client interfaces.MarketDataClient, rawCache storage.BlobStore, logger *common.Logger, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = common.FreshnessRawSeries
	}
	return &Service{
		client:   client,
		rawCache: rawCache,
		logger:   logger,
		maxAge:   maxAge,
	}
}

// rawKey builds the cache key for a fetch. Key identity is exactly
// (symbol, range, granularity).
func rawKey(symbol string, rng models.TimeRange, granularity models.Granularity) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(symbol)
	return fmt.Sprintf("%s_%s_%s_%s.json",
		safe, rng.From.Format("20060102"), rng.To.Format("20060102"), granularity)
}

// Fetch returns a normalized Series for the symbol over the closed range.
func (s *Service) Fetch(ctx context.Context, symbol string, rng models.TimeRange, granularity models.Granularity) (*models.Series, error) {
	if symbol == "" {
		return nil, &models.IngestionError{
			Reason: models.IngestNotFound, Symbol: symbol,
			Err: fmt.Errorf("symbol is empty"),
		}
	}
	if err := rng.Validate(); err != nil {
		return nil, &models.IngestionError{Reason: models.IngestInvalidRange, Symbol: symbol, Err: err}
	}
	if !granularity.Valid() {
		return nil, &models.IngestionError{
			Reason: models.IngestInvalidRange, Symbol: symbol,
			Err: fmt.Errorf("unknown granularity %q", granularity),
		}
	}

	key := rawKey(symbol, rng, granularity)

	if series := s.loadCached(ctx, key); series != nil {
		s.logger.Debug().Str("symbol", symbol).Str("key", key).Msg("Raw cache hit")
		return series, nil
	}

	bars, err := s.client.FetchBars(ctx, symbol, rng, granularity)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &models.IngestionError{
			Reason: models.IngestNotFound, Symbol: symbol,
			Err: fmt.Errorf("source returned no bars for %s", rng),
		}
	}

	series := &models.Series{
		Symbol:      symbol,
		Granularity: granularity,
		Range:       rng,
		Bars:        clip(bars, rng),
		FetchedAt:   time.Now().UTC(),
	}
	if err := series.Validate(); err != nil {
		return nil, &models.IngestionError{Reason: models.IngestSourceUnavailable, Symbol: symbol, Err: err}
	}

	s.storeCached(ctx, key, series)
	return series, nil
}

// clip drops bars outside the closed interval. Sources occasionally pad the
// edges of the requested window.
func clip(bars []models.Bar, rng models.TimeRange) []models.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if rng.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out
}

// loadCached returns a fresh cached series for the key, or nil.
func (s *Service) loadCached(ctx context.Context, key string) *models.Series {
	meta, err := s.rawCache.Metadata(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.Warn().Str("key", key).Err(err).Msg("Raw cache stat failed")
		}
		return nil
	}
	if !common.IsFresh(meta.LastModified, s.maxAge) {
		return nil
	}

	data, err := s.rawCache.Get(ctx, key)
	if err != nil {
		return nil
	}

	var series models.Series
	if err := json.Unmarshal(data, &series); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Dropping corrupt raw cache entry")
		_ = s.rawCache.Delete(ctx, key)
		return nil
	}
	if series.Validate() != nil {
		_ = s.rawCache.Delete(ctx, key)
		return nil
	}
	return &series
}

// storeCached writes a series to the raw cache. Cache writes are best
// effort; a failed write never fails the fetch.
func (s *Service) storeCached(ctx context.Context, key string, series *models.Series) {
	data, err := json.Marshal(series)
	if err != nil {
		return
	}
	if err := s.rawCache.Put(ctx, key, data); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Raw cache write failed")
	}
}

// PruneRawCache removes raw cache entries older than the freshness bound.
func (s *Service) PruneRawCache(ctx context.Context) (int, error) {
	blobs, err := s.rawCache.List(ctx, "")
	if err != nil {
		return 0, &models.StorageError{Op: "list", Key: "rawcache", Err: err}
	}

	removed := 0
	for _, b := range blobs {
		if common.IsFresh(b.LastModified, s.maxAge) {
			continue
		}
		if err := s.rawCache.Delete(ctx, b.Key); err != nil {
			s.logger.Warn().Str("key", b.Key).Err(err).Msg("Raw cache prune failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Pruned raw cache")
	}
	return removed, nil
}

var _ interfaces.IngestService = (*Service)(nil)
