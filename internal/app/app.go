// Package app wires the FinLens engine together
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/finlens/finlens/internal/analysiscache"
	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/clients/marketdata"
	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/services/ingest"
	"github.com/finlens/finlens/internal/services/jobmanager"
	"github.com/finlens/finlens/internal/services/report"
	"github.com/finlens/finlens/internal/storage"
)

// App holds all initialized services and storage. It is the composition
// root shared by cmd/finlens-server and tests.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	IngestService interfaces.IngestService
	Renderer      interfaces.ChartRenderer
	ReportService interfaces.ReportService
	ReportStore   interfaces.ReportStore
	ProfileStore  interfaces.ProfileStore
	ChartStore    storage.BlobStore
	Orchestrator  *jobmanager.Manager
	StartupTime   time.Time

	scheduler *maintenanceScheduler
}

// NewApp initializes the engine from configuration. Every storage root is
// injected from config; nothing reads ambient process state beyond the
// documented environment overrides.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("FINLENS_CONFIG")
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	chartBlobs, err := storage.NewFileBlobStore(logger, config.Storage.ChartsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open charts storage: %w", err)
	}
	reportBlobs, err := storage.NewFileBlobStore(logger, config.Storage.ReportsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reports storage: %w", err)
	}
	userBlobs, err := storage.NewFileBlobStore(logger, config.Storage.UserDataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open user data storage: %w", err)
	}
	rawBlobs, err := storage.NewFileBlobStore(logger, config.Storage.RawCachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw cache storage: %w", err)
	}

	client := marketdata.NewClient(config.Source.APIKey,
		marketdata.WithBaseURL(config.Source.BaseURL),
		marketdata.WithRateLimit(config.Source.RateLimit),
		marketdata.WithTimeout(config.Source.GetTimeout()),
		marketdata.WithLogger(logger),
	)

	ingestService := ingest.NewService(client, rawBlobs, logger, config.Pipeline.GetRawCacheMaxAge())
	renderer := charts.NewRenderer(logger, chartBlobs)
	reportStore := storage.NewReportStore(logger, reportBlobs)
	profileStore := storage.NewProfileStore(logger, userBlobs)
	reportService := report.NewService(reportStore, profileStore, logger)
	cache := analysiscache.New(logger, config.Cache.Capacity, config.Cache.GetTTL())

	orchestrator := jobmanager.NewManager(
		ingestService, renderer, reportService, cache, logger, config.Pipeline)
	orchestrator.Start()

	a := &App{
		Config:        config,
		Logger:        logger,
		IngestService: ingestService,
		Renderer:      renderer,
		ReportService: reportService,
		ReportStore:   reportStore,
		ProfileStore:  profileStore,
		ChartStore:    chartBlobs,
		Orchestrator:  orchestrator,
		StartupTime:   time.Now(),
	}

	if config.Pipeline.PruneSchedule != "" {
		sched, err := newMaintenanceScheduler(logger, ingestService, orchestrator,
			config.Pipeline.GetJobRetention(), config.Pipeline.PruneSchedule)
		if err != nil {
			orchestrator.Stop()
			return nil, fmt.Errorf("failed to start maintenance scheduler: %w", err)
		}
		a.scheduler = sched
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("version", common.GetFullVersion()).
		Msg("FinLens engine initialized")

	return a, nil
}

// Close stops background services.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.Orchestrator.Stop()
}
