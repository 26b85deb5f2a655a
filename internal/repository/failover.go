package repository

import (
	"context"
	"sync/atomic"
	"time"

	"subsync/internal/domain"
	"subsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverJobStateStore serves from the primary store and falls back to the
// secondary when the primary errors, retrying the primary after a minute.
type FailoverJobStateStore struct {
	primary   domain.JobStateStore
	fallback  domain.JobStateStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverJobStateStore(primary, fallback domain.JobStateStore, logger *zerolog.Logger) *FailoverJobStateStore {
	return &FailoverJobStateStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

const recoveryInterval = time.Minute

func (r *FailoverJobStateStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary job state store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverJobStateStore) shouldRetryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	if time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval {
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (r *FailoverJobStateStore) recover() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary job state store recovered")
	}
}

func (r *FailoverJobStateStore) Load(ctx context.Context, jobID string) (*models.SyncJobState, error) {
	if r.shouldRetryPrimary() {
		state, err := r.primary.Load(ctx, jobID)
		if err == nil {
			r.recover()
			return state, nil
		}
		r.markDown(err)
	}
	return r.fallback.Load(ctx, jobID)
}

func (r *FailoverJobStateStore) Save(ctx context.Context, state *models.SyncJobState) error {
	if r.shouldRetryPrimary() {
		err := r.primary.Save(ctx, state)
		if err == nil {
			r.recover()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Save(ctx, state)
}

func (r *FailoverJobStateStore) LastRun(ctx context.Context, jobID string) (time.Time, error) {
	if r.shouldRetryPrimary() {
		t, err := r.primary.LastRun(ctx, jobID)
		if err == nil {
			r.recover()
			return t, nil
		}
		r.markDown(err)
	}
	return r.fallback.LastRun(ctx, jobID)
}

func (r *FailoverJobStateStore) SetLastRun(ctx context.Context, jobID string, t time.Time) error {
	if r.shouldRetryPrimary() {
		err := r.primary.SetLastRun(ctx, jobID, t)
		if err == nil {
			r.recover()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetLastRun(ctx, jobID, t)
}
