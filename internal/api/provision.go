package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"subsync/internal/gateway"
	"subsync/internal/models"
	"subsync/internal/provision"
)

// Provisioner turns a checkout submission into an active remote subscription.
type Provisioner interface {
	Provision(ctx context.Context, sub *provision.Submission) (*models.RemoteSubscription, error)
}

// EntryCreator records the local entry for a provisioned subscription.
type EntryCreator interface {
	CreateEntry(ctx context.Context, entry *models.SubscriptionEntry) error
}

type provisionRequest struct {
	FormID            int64          `json:"form_id"`
	FeedID            int64          `json:"feed_id"`
	Email             string         `json:"email"`
	GivenName         string         `json:"given_name"`
	FamilyName        string         `json:"family_name"`
	Address           models.Address `json:"address"`
	CardNonce         string         `json:"card_nonce"`
	VerificationToken string         `json:"verification_token"`
	CardholderName    string         `json:"cardholder_name"`
	Plan              struct {
		Name       string `json:"name"`
		LegacyName string `json:"legacy_name"`
		Amount     int64  `json:"amount"`
		Currency   string `json:"currency"`
		Cadence    string `json:"cadence"`
	} `json:"plan"`
}

func (s *HTTPServer) handleProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.provisioner == nil {
		writeError(w, http.StatusNotFound, "provisioning is not available")
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CardNonce == "" {
		writeError(w, http.StatusBadRequest, "card_nonce is required")
		return
	}

	plan, err := models.NewPlan(req.Plan.Name, req.Plan.LegacyName, req.Plan.Amount, req.Plan.Currency, req.Plan.Cadence)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submission := &provision.Submission{
		Email:             req.Email,
		GivenName:         req.GivenName,
		FamilyName:        req.FamilyName,
		Address:           req.Address,
		CardNonce:         req.CardNonce,
		VerificationToken: req.VerificationToken,
		CardholderName:    req.CardholderName,
		Plan:              *plan,
	}

	subscription, err := s.provisioner.Provision(r.Context(), submission)
	if err != nil {
		writeProvisionError(w, err)
		return
	}

	entry := &models.SubscriptionEntry{
		FormID:        req.FormID,
		FeedID:        req.FeedID,
		TransactionID: subscription.ID,
		PaymentStatus: models.PaymentStatusActive,
		PaidUntilDate: subscription.PaidUntilDate,
		CustomerEmail: req.Email,
	}
	if s.entries != nil {
		if err := s.entries.CreateEntry(r.Context(), entry); err != nil {
			// the remote subscription exists; report the local failure with
			// its id so the operator can reconcile by hand
			s.logger.Error().Err(err).Str("subscription_id", subscription.ID).Msg("failed to record entry")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":           "subscription created but local entry could not be recorded",
				"subscription_id": subscription.ID,
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"subscription": subscription,
		"entry_id":     entry.EntryID,
	})
}

// writeProvisionError maps pipeline failures: local validation to 400,
// gateway rejections to 422 with the checkout-facing message, everything
// else to 500.
func writeProvisionError(w http.ResponseWriter, err error) {
	if errors.Is(err, gateway.ErrInvalidEmail) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Code != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   gwErr.UserMessage(),
			"code":    gwErr.Code,
			"message": gwErr.Message,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, "provisioning failed")
}
