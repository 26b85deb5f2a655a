package repository

import (
	"context"
	"sync"
	"time"

	"subsync/internal/models"
)

// MemoryJobStateStore keeps job state in memory. It backs single-process
// deployments and serves as the failover target when Redis is down.
type MemoryJobStateStore struct {
	mu       sync.RWMutex
	states   map[string]models.SyncJobState
	lastRuns map[string]time.Time
}

func NewMemoryJobStateStore() *MemoryJobStateStore {
	return &MemoryJobStateStore{
		states:   make(map[string]models.SyncJobState),
		lastRuns: make(map[string]time.Time),
	}
}

func (r *MemoryJobStateStore) Load(ctx context.Context, jobID string) (*models.SyncJobState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[jobID]
	if !ok {
		return nil, nil
	}
	copied := state
	return &copied, nil
}

func (r *MemoryJobStateStore) Save(ctx context.Context, state *models.SyncJobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.JobID] = *state
	return nil
}

func (r *MemoryJobStateStore) LastRun(ctx context.Context, jobID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRuns[jobID], nil
}

func (r *MemoryJobStateStore) SetLastRun(ctx context.Context, jobID string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRuns[jobID] = t
	return nil
}
