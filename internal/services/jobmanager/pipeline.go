package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/finlens/finlens/internal/indicators"
	"github.com/finlens/finlens/internal/models"
)

// stageError attributes a pipeline failure to the stage it occurred in.
type stageError struct {
	stage models.JobState
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// runJob drives a dequeued job to a terminal state. The job leads the run
// for its fingerprint; followers attached while it ran settle with it.
func (m *Manager) runJob(ctx context.Context, js *jobState) {
	js.mu.Lock()
	js.job.StartedAt = time.Now().UTC()
	js.mu.Unlock()

	if js.cancelled.Load() {
		m.settleCancelled(js)
		return
	}

	report, err := m.runPipeline(ctx, js)
	switch {
	case errors.Is(err, ErrCancelled):
		m.settleCancelled(js)
	case err != nil:
		m.settleFailed(js, err)
	default:
		m.settleComplete(js, report)
	}
}

// detach removes the finished run from the in-flight index and returns the
// duplicates that were riding on it. After detach, new requests with the
// same fingerprint start a fresh run.
func (m *Manager) detach(js *jobState) []*jobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[js.job.Fingerprint] == js {
		delete(m.inflight, js.job.Fingerprint)
	}
	followers := js.followers
	js.followers = nil
	return followers
}

// settleComplete finishes the leader and every follower with the report.
func (m *Manager) settleComplete(js *jobState, report *models.Report) {
	followers := m.detach(js)
	m.finishComplete(js, report)
	for _, f := range followers {
		if f.cancelled.Load() {
			m.finishCancelled(f)
			continue
		}
		m.finishComplete(f, report)
	}
}

// settleFailed shares the leader's failure with every follower; duplicates
// of one run observe one outcome.
func (m *Manager) settleFailed(js *jobState, err error) {
	followers := m.detach(js)
	m.finishFailed(js, err)
	for _, f := range followers {
		if f.cancelled.Load() {
			m.finishCancelled(f)
			continue
		}
		m.finishFailed(f, err)
	}
}

// settleCancelled parks the cancelled leader. A cancelled leader does not
// decide for its duplicates: the first live follower is promoted to lead a
// fresh run, carrying the remaining followers with it.
func (m *Manager) settleCancelled(js *jobState) {
	followers := m.detach(js)
	m.finishCancelled(js)

	var leader *jobState
	var rest []*jobState
	for _, f := range followers {
		if f.cancelled.Load() {
			m.finishCancelled(f)
			continue
		}
		if leader == nil {
			leader = f
			continue
		}
		rest = append(rest, f)
	}
	if leader == nil {
		return
	}

	m.mu.Lock()
	m.inflight[leader.job.Fingerprint] = leader
	leader.followers = rest
	m.mu.Unlock()

	select {
	case m.queue <- leader:
		m.logger.Debug().
			Str("job_id", leader.job.ID).
			Str("cancelled_id", js.job.ID).
			Msg("Promoted duplicate after leader cancellation")
	default:
		err := fmt.Errorf("job queue full (%d pending)", queueCapacity)
		m.settleFailed(leader, err)
	}
}

// enterStage moves the job to the next stage, honoring a pending
// cancellation at the boundary.
func (m *Manager) enterStage(js *jobState, stage models.JobState) error {
	if js.cancelled.Load() {
		return ErrCancelled
	}
	js.mu.Lock()
	js.job.State = stage
	js.mu.Unlock()
	return nil
}

func seriesKey(req *models.ReportRequest) string {
	return fmt.Sprintf("series|%s|%s|%s", req.Symbol, req.Granularity, req.Range)
}

func indicatorKey(req *models.ReportRequest, spec models.IndicatorSpec) string {
	return fmt.Sprintf("indicator|%s|%s", seriesKey(req), spec.Key())
}

// runPipeline executes the four pipeline stages for the leading job of a
// fingerprint. Errors carry the failing stage.
func (m *Manager) runPipeline(ctx context.Context, js *jobState) (*models.Report, error) {
	req := js.snapshot().Request

	// Ingesting
	if err := m.enterStage(js, models.JobIngesting); err != nil {
		return nil, err
	}
	var series *models.Series
	err := m.withRetry(ctx, js, func(ctx context.Context) error {
		v, err := m.cache.GetOrCompute(ctx, seriesKey(&req), func(ctx context.Context) (interface{}, error) {
			return m.ingest.Fetch(ctx, req.Symbol, req.Range, req.Granularity)
		})
		if err != nil {
			return err
		}
		series = v.(*models.Series)
		return nil
	})
	if err != nil {
		return nil, &stageError{stage: models.JobIngesting, err: err}
	}

	// Analyzing
	if err := m.enterStage(js, models.JobAnalyzing); err != nil {
		return nil, err
	}
	priceOverlays := make([]*models.IndicatorResult, 0, len(req.Indicators))
	var oscillators []*models.IndicatorResult
	for _, spec := range req.Indicators {
		spec := spec
		var result *models.IndicatorResult
		err := m.withRetry(ctx, js, func(ctx context.Context) error {
			v, err := m.cache.GetOrCompute(ctx, indicatorKey(&req, spec), func(ctx context.Context) (interface{}, error) {
				return indicators.Compute(series, spec)
			})
			if err != nil {
				return err
			}
			result = v.(*models.IndicatorResult)
			return nil
		})
		if err != nil {
			return nil, &stageError{stage: models.JobAnalyzing, err: err}
		}
		// Oscillators live on their own scale and get their own chart.
		if spec.Name == models.IndicatorRSI {
			oscillators = append(oscillators, result)
		} else {
			priceOverlays = append(priceOverlays, result)
		}
	}

	// Rendering
	if err := m.enterStage(js, models.JobRendering); err != nil {
		return nil, err
	}
	overlaySets := [][]*models.IndicatorResult{priceOverlays}
	for _, osc := range oscillators {
		overlaySets = append(overlaySets, []*models.IndicatorResult{osc})
	}
	artifacts := make([]models.ChartArtifact, 0, len(overlaySets))
	for _, overlays := range overlaySets {
		overlays := overlays
		var artifact *models.ChartArtifact
		err := m.withRetry(ctx, js, func(ctx context.Context) error {
			a, err := m.renderer.Render(ctx, series, overlays, req.Style)
			if err != nil {
				return err
			}
			artifact = a
			return nil
		})
		if err != nil {
			return nil, &stageError{stage: models.JobRendering, err: err}
		}
		artifacts = append(artifacts, *artifact)
	}

	// Assembling
	if err := m.enterStage(js, models.JobAssembling); err != nil {
		return nil, err
	}
	var rep *models.Report
	err = m.withRetry(ctx, js, func(ctx context.Context) error {
		r, err := m.report.Assemble(ctx, &req, series, artifacts)
		if err != nil {
			return err
		}
		rep = r
		return nil
	})
	if err != nil {
		return nil, &stageError{stage: models.JobAssembling, err: err}
	}

	return rep, nil
}

// withRetry runs op with exponential backoff for transient failures, up to
// the configured retry bound. Non-retryable errors stop immediately. Each
// attempt is bounded by the stage timeout. Retry policy lives here and
// nowhere else; components never retry.
func (m *Manager) withRetry(ctx context.Context, js *jobState, op func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.config.GetRetryInterval()

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(m.config.MaxRetries)), ctx)

	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.config.GetStageTimeout())
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}

		js.mu.Lock()
		js.job.Attempts++
		js.mu.Unlock()

		if !models.Retryable(err) {
			return backoff.Permanent(err)
		}

		m.logger.Debug().Err(err).Str("job_id", js.job.ID).Msg("Transient failure, backing off")
		return err
	}, policy)
}

// finishComplete records a successful terminal state.
func (m *Manager) finishComplete(js *jobState, report *models.Report) {
	js.mu.Lock()
	js.job.State = models.JobComplete
	js.job.Stage = ""
	js.job.ReportID = report.ID
	js.job.CompletedAt = time.Now().UTC()
	if !js.job.StartedAt.IsZero() {
		js.job.DurationMS = js.job.CompletedAt.Sub(js.job.StartedAt).Milliseconds()
	}
	js.report = report
	job := js.job
	js.mu.Unlock()
	close(js.done)

	m.logger.Info().
		Str("job_id", job.ID).
		Str("report_id", report.ID).
		Int64("duration_ms", job.DurationMS).
		Msg("Job complete")
}

// finishFailed records a failed terminal state with the failing stage and
// error kind attached.
func (m *Manager) finishFailed(js *jobState, err error) {
	var stage models.JobState
	inner := err
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
		inner = se.err
	}

	js.mu.Lock()
	js.job.State = models.JobFailed
	js.job.Stage = stage
	js.job.Error = inner.Error()
	js.job.ErrorKind = models.ErrorKind(inner)
	js.job.CompletedAt = time.Now().UTC()
	if !js.job.StartedAt.IsZero() {
		js.job.DurationMS = js.job.CompletedAt.Sub(js.job.StartedAt).Milliseconds()
	}
	js.err = err
	job := js.job
	js.mu.Unlock()
	close(js.done)

	m.logger.Warn().
		Str("job_id", job.ID).
		Str("stage", string(stage)).
		Str("error_kind", job.ErrorKind).
		Err(inner).
		Msg("Job failed")
}

// finishCancelled parks the job in the cancelled terminal state.
func (m *Manager) finishCancelled(js *jobState) {
	js.mu.Lock()
	js.job.State = models.JobCancelled
	js.job.CompletedAt = time.Now().UTC()
	if !js.job.StartedAt.IsZero() {
		js.job.DurationMS = js.job.CompletedAt.Sub(js.job.StartedAt).Milliseconds()
	}
	js.err = ErrCancelled
	job := js.job
	js.mu.Unlock()
	close(js.done)

	m.logger.Info().Str("job_id", job.ID).Msg("Job cancelled")
}
