package sync

import (
	"context"
	"fmt"

	"subsync/internal/domain"
	"subsync/internal/events"
	"subsync/internal/models"

	"github.com/rs/zerolog"
)

// SubscriptionJob reconciles local subscription entries against remote
// gateway state. The batch is every Active entry with a transaction id,
// cross-referenced with its remote subscription.
type SubscriptionJob struct {
	jobID   string
	formIDs []int64
	entries domain.EntryStore
	api     domain.SubscriptionAPI
	bus     domain.EventPublisher
	logger  zerolog.Logger
}

func NewSubscriptionJob(jobID string, formIDs []int64, entries domain.EntryStore, api domain.SubscriptionAPI, bus domain.EventPublisher, logger *zerolog.Logger) *SubscriptionJob {
	return &SubscriptionJob{
		jobID:   jobID,
		formIDs: formIDs,
		entries: entries,
		api:     api,
		bus:     bus,
		logger:  logger.With().Str("component", "subscription_sync").Logger(),
	}
}

func (j *SubscriptionJob) ID() string {
	return j.jobID
}

// subscriptionItem pairs a local entry with its remote counterpart. A
// failed remote fetch is carried on the item so it counts as an item
// failure, not a batch abort.
type subscriptionItem struct {
	Entry    models.SubscriptionEntry   `json:"entry"`
	Remote   *models.RemoteSubscription `json:"remote,omitempty"`
	FetchErr string                     `json:"fetch_error,omitempty"`
	fetchErr error
}

func (it *subscriptionItem) Ref() string {
	return fmt.Sprintf("entry:%d subscription:%s", it.Entry.EntryID, it.Entry.TransactionID)
}

// FetchBatch loads the Active entries and resolves each one's remote
// subscription sequentially. An entry-store failure aborts the tick.
func (j *SubscriptionJob) FetchBatch(ctx context.Context) ([]Item, error) {
	entries, err := j.entries.GetActiveSubscriptionEntries(ctx, j.formIDs)
	if err != nil {
		return nil, fmt.Errorf("load active entries: %w", err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		item := &subscriptionItem{Entry: entry}
		remote, err := j.api.GetSubscription(ctx, entry.TransactionID)
		if err != nil {
			item.fetchErr = err
			item.FetchErr = err.Error()
		} else {
			item.Remote = remote
		}
		items = append(items, item)
	}
	return items, nil
}

// SyncItem applies one entry's remote state locally:
// remote CANCELED cancels the entry, a changed paid-until date updates the
// entry meta, anything else is a no-op skip.
func (j *SubscriptionJob) SyncItem(ctx context.Context, item Item) (Outcome, error) {
	it, ok := item.(*subscriptionItem)
	if !ok {
		return OutcomeFailure, fmt.Errorf("unexpected item type %T", item)
	}
	if it.fetchErr != nil {
		return OutcomeFailure, fmt.Errorf("fetch remote subscription: %w", it.fetchErr)
	}
	if it.Remote == nil {
		return OutcomeFailure, fmt.Errorf("remote subscription %s not found", it.Entry.TransactionID)
	}

	if it.Remote.Canceled() {
		if err := j.entries.CancelSubscription(ctx, &it.Entry); err != nil {
			return OutcomeFailure, fmt.Errorf("cancel entry %d: %w", it.Entry.EntryID, err)
		}
		j.publish(events.EventSubscriptionCanceled, &it.Entry)
		return OutcomeSuccess, nil
	}

	if it.Remote.PaidUntilDate != "" && it.Remote.PaidUntilDate != it.Entry.PaidUntilDate {
		if err := j.entries.UpdateEntryMeta(ctx, it.Entry.EntryID, models.MetaKeyPaidUntil, it.Remote.PaidUntilDate); err != nil {
			return OutcomeFailure, fmt.Errorf("update paid-until for entry %d: %w", it.Entry.EntryID, err)
		}
		it.Entry.PaidUntilDate = it.Remote.PaidUntilDate
		j.publish(events.EventPaidUntilUpdated, &it.Entry)
		return OutcomeSuccess, nil
	}

	return OutcomeSkipped, nil
}

func (j *SubscriptionJob) OnSuccess(item Item) {
	j.logger.Debug().Str("item", item.Ref()).Msg("entry synced")
}

func (j *SubscriptionJob) OnFailure(item Item, err error) {
	if j.bus == nil {
		return
	}
	if it, ok := item.(*subscriptionItem); ok {
		_ = j.bus.PublishJSON(events.EventSyncItemFailed, events.SubscriptionEventPayload{
			EntryID:        it.Entry.EntryID,
			FeedID:         it.Entry.FeedID,
			SubscriptionID: it.Entry.TransactionID,
			PaymentStatus:  it.Entry.PaymentStatus,
		})
	}
}

func (j *SubscriptionJob) OnSkip(item Item) {
	j.logger.Debug().Str("item", item.Ref()).Msg("entry unchanged")
}

func (j *SubscriptionJob) publish(eventType string, entry *models.SubscriptionEntry) {
	if j.bus == nil {
		return
	}
	_ = j.bus.PublishJSON(eventType, events.SubscriptionEventPayload{
		EntryID:        entry.EntryID,
		FeedID:         entry.FeedID,
		SubscriptionID: entry.TransactionID,
		PaymentStatus:  entry.PaymentStatus,
		PaidUntilDate:  entry.PaidUntilDate,
	})
}
