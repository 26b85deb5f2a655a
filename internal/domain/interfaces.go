package domain

import (
	"context"
	"time"

	"subsync/internal/gateway"
	"subsync/internal/models"
)

// EntryStore is the host entry store the reconciliation job mutates.
type EntryStore interface {
	GetActiveSubscriptionEntries(ctx context.Context, formIDs []int64) ([]models.SubscriptionEntry, error)
	UpdateEntryMeta(ctx context.Context, entryID int64, key, value string) error
	CancelSubscription(ctx context.Context, entry *models.SubscriptionEntry) error
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error
	GetRecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// JobStateStore persists reconciliation job state across process restarts.
// The IsRunning flag it stores is the advisory lock enforcing one run per
// job id at a time.
type JobStateStore interface {
	Load(ctx context.Context, jobID string) (*models.SyncJobState, error)
	Save(ctx context.Context, state *models.SyncJobState) error
	LastRun(ctx context.Context, jobID string) (time.Time, error)
	SetLastRun(ctx context.Context, jobID string, t time.Time) error
}

// SubscriptionAPI is the slice of the gateway the sync job reads from.
type SubscriptionAPI interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*models.RemoteSubscription, error)
}

// ProvisioningAPI is the slice of the gateway the orchestrator drives.
type ProvisioningAPI interface {
	SearchPlans(ctx context.Context, name string) ([]models.Plan, error)
	CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	SearchCustomersByEmail(ctx context.Context, email string) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, update *gateway.CustomerUpdate) (*models.Customer, error)
	CreateCustomerCard(ctx context.Context, customerID, cardNonce, verificationToken, cardholderName string) (*models.CardToken, error)
	CreateSubscription(ctx context.Context, req *gateway.CreateSubscriptionRequest) (*models.RemoteSubscription, error)
}

// EventPublisher publishes domain events to interested subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}
