// Package jobmanager coordinates report generation jobs through the
// ingest → analyze → render → assemble pipeline.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/finlens/finlens/internal/analysiscache"
	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
)

// ErrCancelled marks a job stopped by caller request.
var ErrCancelled = errors.New("job cancelled")

// ErrUnknownJob is returned for job IDs the manager has never seen.
var ErrUnknownJob = errors.New("unknown job")

const queueCapacity = 256

// jobState wraps a job with its runtime coordination state.
type jobState struct {
	mu        sync.Mutex
	job       models.Job
	report    *models.Report
	err       error
	cancelled atomic.Bool
	done      chan struct{} // closed on terminal state

	// Duplicate jobs riding on this run. Guarded by Manager.mu.
	followers []*jobState
}

func (js *jobState) snapshot() models.Job {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.job
}

// Manager runs a bounded worker pool over a job queue. Worker count is
// fixed by configuration, independent of request volume. Duplicate
// concurrent requests converge on one pipeline run via their fingerprint.
type Manager struct {
	ingest   interfaces.IngestService
	renderer interfaces.ChartRenderer
	report   interfaces.ReportService
	cache    *analysiscache.Cache
	logger   *common.Logger
	config   common.PipelineConfig

	mu       sync.Mutex
	jobs     map[string]*jobState
	inflight map[string]*jobState // fingerprint → job leading the run
	queue    chan *jobState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new job manager.
func NewManager(
	ingest interfaces.IngestService,
	renderer interfaces.ChartRenderer,
	report interfaces.ReportService,
	cache *analysiscache.Cache,
	logger *common.Logger,
	config common.PipelineConfig,
) *Manager {
	return &Manager{
		ingest:   ingest,
		renderer: renderer,
		report:   report,
		cache:    cache,
		logger:   logger,
		config:   config,
		jobs:     make(map[string]*jobState),
		inflight: make(map[string]*jobState),
		queue:    make(chan *jobState, queueCapacity),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the worker pool. Safe to call once per manager.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	workers := m.config.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		m.safeGo(name, func() { m.workLoop(ctx) })
	}

	m.logger.Info().
		Int("workers", workers).
		Int("max_retries", m.config.MaxRetries).
		Msg("Job manager started")
}

// Stop cancels the workers and waits for completion.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
	m.logger.Info().Msg("Job manager stopped")
}

// workLoop continuously dequeues and executes jobs.
func (m *Manager) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case js := <-m.queue:
			m.runJob(ctx, js)
		}
	}
}

// newJob registers a job for a request.
func (m *Manager) newJob(req *models.ReportRequest) *jobState {
	js := &jobState{
		job: models.Job{
			ID:          uuid.NewString(),
			Request:     *req,
			Fingerprint: req.Fingerprint(),
			State:       models.JobPending,
			CreatedAt:   time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[js.job.ID] = js
	m.mu.Unlock()

	return js
}

// enqueue hands the job to the worker pool, or attaches it as a follower
// of an in-flight run with the same fingerprint so concurrent duplicates
// converge on one pipeline. Distinct fingerprints each occupy a worker
// slot; duplicates never do.
func (m *Manager) enqueue(js *jobState) error {
	m.mu.Lock()
	fp := js.job.Fingerprint
	if leader, ok := m.inflight[fp]; ok {
		leader.followers = append(leader.followers, js)
		m.mu.Unlock()
		m.logger.Debug().
			Str("job_id", js.job.ID).
			Str("leader_id", leader.job.ID).
			Msg("Job joined in-flight duplicate")
		return nil
	}
	m.inflight[fp] = js
	m.mu.Unlock()

	select {
	case m.queue <- js:
	default:
		m.mu.Lock()
		delete(m.inflight, fp)
		delete(m.jobs, js.job.ID)
		m.mu.Unlock()
		return fmt.Errorf("job queue full (%d pending)", queueCapacity)
	}

	m.logger.Debug().
		Str("job_id", js.job.ID).
		Str("symbol", js.job.Request.Symbol).
		Msg("Job queued")
	return nil
}

// Submit enqueues an asynchronous job and returns its ID. Requests that
// fail validation are rejected up front, before a job exists.
func (m *Manager) Submit(ctx context.Context, req *models.ReportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	js := m.newJob(req)
	if err := m.enqueue(js); err != nil {
		return "", err
	}
	return js.job.ID, nil
}

// Generate runs a request synchronously to a terminal state and returns
// the report. The run goes through the same bounded worker pool as
// asynchronous jobs; concurrent duplicate requests share one pipeline run.
func (m *Manager) Generate(ctx context.Context, req *models.ReportRequest) (*models.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	js := m.newJob(req)
	if err := m.enqueue(js); err != nil {
		return nil, err
	}

	select {
	case <-js.done:
	case <-ctx.Done():
		// Abandoned caller. The job keeps its slot until the next stage
		// boundary sees the flag; any duplicates carry on without it.
		js.cancelled.Store(true)
		return nil, ctx.Err()
	}

	js.mu.Lock()
	report, err := js.report, js.err
	js.mu.Unlock()
	return report, err
}

// Status returns the externally visible state of a job.
func (m *Manager) Status(jobID string) (*models.JobStatus, error) {
	m.mu.Lock()
	js, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}

	job := js.snapshot()
	return &models.JobStatus{
		ID:        job.ID,
		State:     job.State,
		Stage:     job.Stage,
		ReportID:  job.ReportID,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}, nil
}

// Cancel flags a job for cancellation. The flag is honored at the next
// stage boundary; no mid-stage interruption is attempted.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	js, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}

	job := js.snapshot()
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.State)
	}

	js.cancelled.Store(true)
	m.logger.Debug().Str("job_id", jobID).Msg("Cancellation requested")
	return nil
}

// Sweep drops terminal jobs whose completion is older than retention and
// returns the number removed. In-flight and pending jobs are never touched.
func (m *Manager) Sweep(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, js := range m.jobs {
		job := js.snapshot()
		if job.State.Terminal() && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Swept terminal jobs")
	}
	return removed
}

// Wait blocks until the job reaches a terminal state or ctx expires.
func (m *Manager) Wait(ctx context.Context, jobID string) (*models.JobStatus, error) {
	m.mu.Lock()
	js, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}

	select {
	case <-js.done:
		return m.Status(jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ interfaces.Orchestrator = (*Manager)(nil)
