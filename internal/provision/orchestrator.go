package provision

import (
	"context"

	"subsync/internal/domain"
	"subsync/internal/events"
	"subsync/internal/gateway"
	"subsync/internal/models"

	"github.com/rs/zerolog"
)

// Submission carries the billing fields of one form submission.
type Submission struct {
	Email             string
	GivenName         string
	FamilyName        string
	Address           models.Address
	CardNonce         string
	VerificationToken string
	CardholderName    string
	Plan              models.Plan
}

// Orchestrator turns a submission into an active remote subscription,
// reusing existing remote resources where possible. Each step short-circuits
// on error; resources created by earlier steps are deliberately left in
// place, so a retried submission finds and reuses them.
type Orchestrator struct {
	api        domain.ProvisioningAPI
	bus        domain.EventPublisher
	locationID string
	logger     zerolog.Logger
}

func NewOrchestrator(api domain.ProvisioningAPI, bus domain.EventPublisher, locationID string, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:        api,
		bus:        bus,
		locationID: locationID,
		logger:     logger.With().Str("component", "provision").Logger(),
	}
}

// Provision runs the pipeline: resolve plan, resolve customer, conditionally
// update customer, tokenize the card, create the subscription. The error of
// the failing step is returned verbatim.
func (o *Orchestrator) Provision(ctx context.Context, sub *Submission) (*models.RemoteSubscription, error) {
	plan, err := o.resolvePlan(ctx, &sub.Plan)
	if err != nil {
		return nil, err
	}

	customer, err := o.resolveCustomer(ctx, sub)
	if err != nil {
		return nil, err
	}

	if err := o.maybeUpdateCustomer(ctx, sub, customer); err != nil {
		return nil, err
	}

	card, err := o.api.CreateCustomerCard(ctx, customer.ID, sub.CardNonce, sub.VerificationToken, sub.CardholderName)
	if err != nil {
		return nil, err
	}

	subscription, err := o.api.CreateSubscription(ctx, &gateway.CreateSubscriptionRequest{
		LocationID: o.locationID,
		PlanID:     plan.ID,
		CustomerID: customer.ID,
		CardID:     card.ID,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("subscription_id", subscription.ID).
		Str("plan_id", plan.ID).
		Str("customer_id", customer.ID).
		Msg("subscription provisioned")

	if o.bus != nil {
		_ = o.bus.PublishJSON(events.EventSubscriptionProvisioned, events.SubscriptionEventPayload{
			SubscriptionID: subscription.ID,
		})
	}

	return subscription, nil
}

// resolvePlan finds the catalog plan by its legacy name first, then by the
// current name, and creates it only when both searches come back empty. The
// plan display name changed format across versions, hence the two-pass
// lookup.
func (o *Orchestrator) resolvePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if plan.LegacyName != "" {
		found, err := o.api.SearchPlans(ctx, plan.LegacyName)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &found[0], nil
		}
	}

	found, err := o.api.SearchPlans(ctx, plan.Name)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	created, err := o.api.CreatePlan(ctx, plan)
	if err != nil {
		return nil, err
	}
	o.logger.Info().Str("plan_id", created.ID).Str("name", created.Name).Msg("catalog plan created")
	return created, nil
}

// resolveCustomer searches by exact email match. A match adopts the remote
// record; otherwise a customer is created from the submitted billing fields.
func (o *Orchestrator) resolveCustomer(ctx context.Context, sub *Submission) (*models.Customer, error) {
	found, err := o.api.SearchCustomersByEmail(ctx, sub.Email)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	customer := &models.Customer{
		EmailAddress: sub.Email,
		GivenName:    sub.GivenName,
		FamilyName:   sub.FamilyName,
	}
	if !sub.Address.IsEmpty() {
		addr := sub.Address
		customer.Address = &addr
	}

	created, err := o.api.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}
	o.logger.Info().Str("customer_id", created.ID).Msg("customer created")
	return created, nil
}

// maybeUpdateCustomer patches the remote customer only where submitted data
// actually differs, and never sends fields the submission left empty, so
// existing remote data cannot be blanked.
func (o *Orchestrator) maybeUpdateCustomer(ctx context.Context, sub *Submission, customer *models.Customer) error {
	update := &gateway.CustomerUpdate{}

	nameChanged := sub.GivenName != customer.GivenName || sub.FamilyName != customer.FamilyName
	if nameChanged && sub.GivenName != "" && sub.FamilyName != "" {
		update.GivenName = sub.GivenName
		update.FamilyName = sub.FamilyName
	}

	if !sub.Address.IsEmpty() {
		current := models.Address{}
		if customer.Address != nil {
			current = *customer.Address
		}
		if !sub.Address.Equal(current) {
			addr := sub.Address
			update.Address = &addr
		}
	}

	if update.Empty() {
		return nil
	}

	updated, err := o.api.UpdateCustomer(ctx, customer.ID, update)
	if err != nil {
		return err
	}
	*customer = *updated
	o.logger.Info().Str("customer_id", customer.ID).Msg("customer updated")
	return nil
}
