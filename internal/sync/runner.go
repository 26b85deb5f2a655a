package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"subsync/internal/domain"
	"subsync/internal/events"
	"subsync/internal/metrics"
	"subsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when a tick is refused because the
// persisted running flag is set.
var ErrAlreadyRunning = errors.New("sync job is already running")

// Runner drives a BatchJob on a persisted schedule. One tick runs the whole
// batch synchronously and sequentially, then schedules the next tick after
// the configured interval. The persisted IsRunning flag is advisory locking:
// a crash mid-run leaves it set until an operator resets it.
type Runner struct {
	job      BatchJob
	store    domain.JobStateStore
	recorder RunRecorder
	bus      domain.EventPublisher
	interval time.Duration
	logger   zerolog.Logger

	mu        stdsync.Mutex
	timer     *time.Timer
	scheduled bool
}

func NewRunner(job BatchJob, store domain.JobStateStore, recorder RunRecorder, bus domain.EventPublisher, interval time.Duration, logger *zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	return &Runner{
		job:      job,
		store:    store,
		recorder: recorder,
		bus:      bus,
		interval: interval,
		timer:    timer,
		logger:   logger.With().Str("component", "sync").Str("job_id", job.ID()).Logger(),
	}
}

// Interval returns the delay between a completed tick and the next one.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Schedule arms the next tick after delay. It refuses when a run is already
// pending or the persisted running flag is set, returning false without
// mutating any state. A missing job id silently no-ops.
func (r *Runner) Schedule(ctx context.Context, delay time.Duration) (bool, error) {
	if r.job.ID() == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduled {
		return false, nil
	}

	state, err := r.store.Load(ctx, r.job.ID())
	if err != nil {
		return false, fmt.Errorf("load job state: %w", err)
	}
	if state != nil && state.IsRunning {
		return false, nil
	}

	r.scheduled = true
	r.timer.Reset(delay)
	r.logger.Debug().Dur("delay", delay).Msg("next run scheduled")
	return true, nil
}

// TriggerNow schedules an immediate tick. It fails when one is already
// pending or running.
func (r *Runner) TriggerNow(ctx context.Context) error {
	ok, err := r.Schedule(ctx, 0)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Reset clears the persisted running flag and reschedules, immediately or
// after the standard interval. It is the operator's escape hatch when a
// crashed run left the flag set.
func (r *Runner) Reset(ctx context.Context, immediate bool) error {
	if r.job.ID() == "" {
		return nil
	}

	state, err := r.store.Load(ctx, r.job.ID())
	if err != nil {
		return fmt.Errorf("load job state: %w", err)
	}
	if state == nil {
		state = &models.SyncJobState{JobID: r.job.ID()}
	}
	state.IsRunning = false
	if err := r.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save job state: %w", err)
	}

	r.mu.Lock()
	r.scheduled = false
	r.timer.Stop()
	r.mu.Unlock()

	delay := r.interval
	if immediate {
		delay = 0
	}
	if _, err := r.Schedule(ctx, delay); err != nil {
		return err
	}
	r.logger.Info().Bool("immediate", immediate).Msg("sync job reset")
	return nil
}

// Status returns the persisted job state and last-run timestamp.
func (r *Runner) Status(ctx context.Context) (*models.SyncJobState, time.Time, error) {
	state, err := r.store.Load(ctx, r.job.ID())
	if err != nil {
		return nil, time.Time{}, err
	}
	if state == nil {
		state = &models.SyncJobState{JobID: r.job.ID()}
	}
	lastRun, err := r.store.LastRun(ctx, r.job.ID())
	if err != nil {
		return nil, time.Time{}, err
	}
	return state, lastRun, nil
}

// Start blocks, firing ticks as they come due, until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info().Msg("sync runner started")
	defer r.logger.Info().Msg("sync runner stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.timer.C:
			r.mu.Lock()
			r.scheduled = false
			r.mu.Unlock()

			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation tick failed")
				// keep the job alive: arm the next tick even after a failure
				if _, schedErr := r.Schedule(ctx, r.interval); schedErr != nil {
					r.logger.Error().Err(schedErr).Msg("failed to schedule next run")
				}
			}
		}
	}
}

// RunOnce executes one reconciliation tick: scheduling-check, item loop,
// completion accounting, reschedule. Batch-fetch failure aborts the tick
// with nothing processed.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r.job.ID() == "" {
		return nil
	}

	state, err := r.store.Load(ctx, r.job.ID())
	if err != nil {
		return fmt.Errorf("load job state: %w", err)
	}
	if state == nil {
		state = &models.SyncJobState{JobID: r.job.ID()}
	}
	if state.IsRunning {
		r.logger.Warn().Msg("tick refused: previous run still marked running")
		return ErrAlreadyRunning
	}

	start := time.Now()
	state.IsRunning = true
	state.LastRun = start
	state.ResetCounts()
	if err := r.store.Save(ctx, state); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	runID := uuid.NewString()
	r.logger.Info().Str("run_id", runID).Msg("reconciliation tick started")

	items, err := r.job.FetchBatch(ctx)
	if err != nil {
		state.IsRunning = false
		if saveErr := r.store.Save(ctx, state); saveErr != nil {
			r.logger.Error().Err(saveErr).Msg("failed to clear running flag")
		}
		return fmt.Errorf("fetch batch: %w", err)
	}

	for _, item := range items {
		outcome, itemErr := r.job.SyncItem(ctx, item)
		metrics.IncSyncOutcome(r.job.ID(), outcome.String())
		switch outcome {
		case OutcomeSuccess:
			state.SuccessCount++
			r.job.OnSuccess(item)
		case OutcomeFailure:
			state.FailedCount++
			r.logger.Error().
				Err(itemErr).
				Str("run_id", runID).
				Str("item", item.Ref()).
				Interface("payload", item).
				Msg("item sync failed")
			r.job.OnFailure(item, itemErr)
		case OutcomeSkipped:
			state.SkippedCount++
			r.job.OnSkip(item)
		}
	}

	finished := time.Now()
	elapsed := finished.Sub(start)
	r.logger.Info().
		Str("run_id", runID).
		Dur("elapsed", elapsed).
		Int("success", state.SuccessCount).
		Int("failed", state.FailedCount).
		Int("skipped", state.SkippedCount).
		Msg("reconciliation tick completed")

	state.IsRunning = false
	state.NextRun = finished.Add(r.interval)
	if err := r.store.Save(ctx, state); err != nil {
		return fmt.Errorf("clear running: %w", err)
	}
	if err := r.store.SetLastRun(ctx, r.job.ID(), start); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist last run timestamp")
	}

	if r.recorder != nil {
		run := &models.SyncRun{
			RunID:        runID,
			JobID:        r.job.ID(),
			StartedAt:    start,
			FinishedAt:   finished,
			SuccessCount: state.SuccessCount,
			FailedCount:  state.FailedCount,
			SkippedCount: state.SkippedCount,
		}
		if err := r.recorder.RecordSyncRun(ctx, run); err != nil {
			r.logger.Error().Err(err).Msg("failed to record sync run")
		}
	}

	if r.bus != nil {
		_ = r.bus.PublishJSON(events.EventSyncCompleted, events.SyncCompletedPayload{
			JobID:        r.job.ID(),
			RunID:        runID,
			SuccessCount: state.SuccessCount,
			FailedCount:  state.FailedCount,
			SkippedCount: state.SkippedCount,
			Seconds:      elapsed.Seconds(),
		})
	}

	metrics.ObserveSyncRun(r.job.ID(), elapsed.Seconds())

	// a scheduling failure is reported, never fatal to the tick
	if _, err := r.Schedule(ctx, r.interval); err != nil {
		r.logger.Error().Err(err).Msg("failed to schedule next run")
	}

	return nil
}
