package sync

import (
	"context"

	"subsync/internal/models"
)

// Outcome classifies one item's sync attempt. The three variants are
// explicit; there is no sentinel encoding.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Item is one unit of a reconciliation batch.
type Item interface {
	// Ref identifies the item in logs.
	Ref() string
}

// BatchJob is the per-domain strategy driven by the Runner. FetchBatch
// failure aborts the whole tick; SyncItem failure only counts against the
// item. The hooks fire after the outcome is tallied.
type BatchJob interface {
	ID() string
	FetchBatch(ctx context.Context) ([]Item, error)
	SyncItem(ctx context.Context, item Item) (Outcome, error)
	OnSuccess(item Item)
	OnFailure(item Item, err error)
	OnSkip(item Item)
}

// RunRecorder appends completed ticks to run history. Optional.
type RunRecorder interface {
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error
}
