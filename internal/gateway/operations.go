package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"subsync/internal/models"
)

// Money is an amount in the currency's smallest denomination.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
}

type Merchant struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	Country      string `json:"country"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type Payment struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	OrderID       string `json:"order_id,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	TotalMoney    Money  `json:"total_money"`
	RefundedMoney *Money `json:"refunded_money,omitempty"`
}

type Refund struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	AmountMoney Money  `json:"amount_money"`
	Reason      string `json:"reason,omitempty"`
}

type Order struct {
	ID          string `json:"id"`
	LocationID  string `json:"location_id"`
	ReferenceID string `json:"reference_id,omitempty"`
	Version     int64  `json:"version,omitempty"`
}

type Invoice struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
}

// ListLocations returns the merchant's business locations.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var resp struct {
		Locations []Location `json:"locations"`
	}
	if err := c.get(ctx, "/v2/locations", &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

// GetMerchant fetches the merchant owning the access token.
func (c *Client) GetMerchant(ctx context.Context) (*Merchant, error) {
	var resp struct {
		Merchant *Merchant `json:"merchant"`
	}
	if err := c.get(ctx, "/v2/merchants/me", &resp); err != nil {
		return nil, err
	}
	return resp.Merchant, nil
}

type CreatePaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	SourceID       string `json:"source_id"`
	AmountMoney    Money  `json:"amount_money"`
	LocationID     string `json:"location_id,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	Autocomplete   *bool  `json:"autocomplete,omitempty"`
	Note           string `json:"note,omitempty"`
}

func (c *Client) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	EnsureIdempotencyKey(&req.IdempotencyKey)
	var resp struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.post(ctx, "/v2/payments", req, &resp); err != nil {
		return nil, err
	}
	return resp.Payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var resp struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.get(ctx, "/v2/payments/"+url.PathEscape(paymentID), &resp); err != nil {
		return nil, err
	}
	return resp.Payment, nil
}

func (c *Client) CompletePayment(ctx context.Context, paymentID string) (*Payment, error) {
	var resp struct {
		Payment *Payment `json:"payment"`
	}
	action := fmt.Sprintf("/v2/payments/%s/complete", url.PathEscape(paymentID))
	if err := c.post(ctx, action, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Payment, nil
}

type createRefundRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	PaymentID      string `json:"payment_id"`
	AmountMoney    Money  `json:"amount_money"`
	Reason         string `json:"reason,omitempty"`
}

// CreateRefund refunds amount against the payment. A payment whose total is
// already fully refunded is rejected locally, without a gateway call.
func (c *Client) CreateRefund(ctx context.Context, payment *Payment, amount Money, reason string) (*Refund, error) {
	refunded := int64(0)
	if payment.RefundedMoney != nil {
		refunded = payment.RefundedMoney.Amount
	}
	if payment.TotalMoney.Amount-refunded <= 0 {
		return nil, ErrNothingToRefund
	}

	req := &createRefundRequest{
		PaymentID:   payment.ID,
		AmountMoney: amount,
		Reason:      reason,
	}
	EnsureIdempotencyKey(&req.IdempotencyKey)

	var resp struct {
		Refund *Refund `json:"refund"`
	}
	if err := c.post(ctx, "/v2/refunds", req, &resp); err != nil {
		return nil, err
	}
	return resp.Refund, nil
}

func (c *Client) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	var resp struct {
		Refund *Refund `json:"refund"`
	}
	if err := c.get(ctx, "/v2/refunds/"+url.PathEscape(refundID), &resp); err != nil {
		return nil, err
	}
	return resp.Refund, nil
}

// RefundList is the accumulated result of the paginated refund listing.
// Incomplete is set when a later page failed and the list stops early.
type RefundList struct {
	Refunds    []Refund
	Incomplete bool
	PageErr    error
}

// ListRefunds walks all refund pages for a location, following cursors until
// the gateway stops returning one.
func (c *Client) ListRefunds(ctx context.Context, locationID string) (*RefundList, error) {
	fetch := func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		query := withCursor(url.Values{}, cursor)
		if locationID != "" {
			query.Set("location_id", locationID)
		}
		action := "/v2/refunds"
		if encoded := query.Encode(); encoded != "" {
			action += "?" + encoded
		}
		var resp struct {
			Refunds []json.RawMessage `json:"refunds"`
			Cursor  string            `json:"cursor"`
		}
		if err := c.get(ctx, action, &resp); err != nil {
			return nil, "", err
		}
		return resp.Refunds, resp.Cursor, nil
	}

	paged := collectPages(ctx, fetch)
	list := &RefundList{Incomplete: paged.Incomplete, PageErr: paged.PageErr}
	for _, raw := range paged.Items {
		var refund Refund
		if err := json.Unmarshal(raw, &refund); err != nil {
			return nil, &Error{Message: fmt.Sprintf("decode refund: %v", err), Body: string(raw)}
		}
		list.Refunds = append(list.Refunds, refund)
	}
	return list, nil
}

type createCustomerRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	EmailAddress   string          `json:"email_address"`
	GivenName      string          `json:"given_name,omitempty"`
	FamilyName     string          `json:"family_name,omitempty"`
	Address        *models.Address `json:"address,omitempty"`
}

// CreateCustomer creates a gateway customer from submitted billing fields.
// An empty country is stripped from the address; the gateway rejects empty
// country strings.
func (c *Client) CreateCustomer(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	if err := validateEmail(customer.EmailAddress); err != nil {
		return nil, err
	}

	req := &createCustomerRequest{
		EmailAddress: customer.EmailAddress,
		GivenName:    customer.GivenName,
		FamilyName:   customer.FamilyName,
	}
	if customer.Address != nil && !customer.Address.IsEmpty() {
		addr := *customer.Address
		req.Address = &addr
	}
	EnsureIdempotencyKey(&req.IdempotencyKey)

	var resp struct {
		Customer *models.Customer `json:"customer"`
	}
	if err := c.post(ctx, "/v2/customers", req, &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	var resp struct {
		Customer *models.Customer `json:"customer"`
	}
	if err := c.get(ctx, "/v2/customers/"+url.PathEscape(customerID), &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

// CustomerUpdate carries only the fields being changed. Absent fields are
// never sent, so existing remote data cannot be blanked by omission.
type CustomerUpdate struct {
	GivenName  string          `json:"given_name,omitempty"`
	FamilyName string          `json:"family_name,omitempty"`
	Address    *models.Address `json:"address,omitempty"`
}

// Empty reports whether the update carries no changes at all.
func (u *CustomerUpdate) Empty() bool {
	return u.GivenName == "" && u.FamilyName == "" && u.Address == nil
}

func (c *Client) UpdateCustomer(ctx context.Context, customerID string, update *CustomerUpdate) (*models.Customer, error) {
	var resp struct {
		Customer *models.Customer `json:"customer"`
	}
	if err := c.put(ctx, "/v2/customers/"+url.PathEscape(customerID), update, &resp); err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

type searchCustomersRequest struct {
	Query struct {
		Filter struct {
			EmailAddress struct {
				Exact string `json:"exact"`
			} `json:"email_address"`
		} `json:"filter"`
	} `json:"query"`
}

// SearchCustomersByEmail finds customers with an exact email match. The
// email is validated locally first; no request goes out for a bad address.
func (c *Client) SearchCustomersByEmail(ctx context.Context, email string) ([]models.Customer, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	var req searchCustomersRequest
	req.Query.Filter.EmailAddress.Exact = email

	var resp struct {
		Customers []models.Customer `json:"customers"`
	}
	if err := c.post(ctx, "/v2/customers/search", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

type createCardRequest struct {
	CardNonce         string `json:"card_nonce"`
	VerificationToken string `json:"verification_token,omitempty"`
	CardholderName    string `json:"cardholder_name,omitempty"`
}

// CreateCustomerCard exchanges a card nonce for a card-on-file id bound to
// the customer.
func (c *Client) CreateCustomerCard(ctx context.Context, customerID, cardNonce, verificationToken, cardholderName string) (*models.CardToken, error) {
	req := &createCardRequest{
		CardNonce:         cardNonce,
		VerificationToken: verificationToken,
		CardholderName:    cardholderName,
	}
	action := fmt.Sprintf("/v2/customers/%s/cards", url.PathEscape(customerID))

	var resp struct {
		Card *models.CardToken `json:"card"`
	}
	if err := c.post(ctx, action, req, &resp); err != nil {
		return nil, err
	}
	return resp.Card, nil
}

// catalogObject is the wire form of a subscription plan catalog entry.
type catalogObject struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	PlanData *struct {
		Name   string `json:"name"`
		Phases []struct {
			Cadence             string `json:"cadence"`
			RecurringPriceMoney Money  `json:"recurring_price_money"`
		} `json:"phases,omitempty"`
	} `json:"subscription_plan_data,omitempty"`
}

type createCatalogObjectRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Object         json.RawMessage `json:"object"`
}

// CreatePlan creates a subscription plan catalog object and returns the plan
// with its assigned remote id.
func (c *Client) CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	object := map[string]any{
		"type": "SUBSCRIPTION_PLAN",
		"id":   "#plan",
		"subscription_plan_data": map[string]any{
			"name": plan.Name,
			"phases": []map[string]any{
				{
					"cadence":               plan.Cadence,
					"recurring_price_money": Money{Amount: plan.Amount, Currency: plan.Currency},
				},
			},
		},
	}
	objectRaw, err := json.Marshal(object)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("encode catalog object: %v", err)}
	}

	req := &createCatalogObjectRequest{Object: objectRaw}
	EnsureIdempotencyKey(&req.IdempotencyKey)

	var resp struct {
		CatalogObject catalogObject `json:"catalog_object"`
	}
	if err := c.post(ctx, "/v2/catalog/object", req, &resp); err != nil {
		return nil, err
	}

	created := *plan
	created.ID = resp.CatalogObject.ID
	return &created, nil
}

type searchCatalogRequest struct {
	ObjectTypes []string `json:"object_types"`
	Query       struct {
		ExactQuery struct {
			AttributeName  string `json:"attribute_name"`
			AttributeValue string `json:"attribute_value"`
		} `json:"exact_query"`
	} `json:"query"`
}

// SearchPlans returns catalog plans whose name matches exactly.
func (c *Client) SearchPlans(ctx context.Context, name string) ([]models.Plan, error) {
	req := &searchCatalogRequest{ObjectTypes: []string{"SUBSCRIPTION_PLAN"}}
	req.Query.ExactQuery.AttributeName = "name"
	req.Query.ExactQuery.AttributeValue = name

	var resp struct {
		Objects []catalogObject `json:"objects"`
	}
	if err := c.post(ctx, "/v2/catalog/search", req, &resp); err != nil {
		return nil, err
	}

	plans := make([]models.Plan, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		plan := models.Plan{ID: obj.ID}
		if obj.PlanData != nil {
			plan.Name = obj.PlanData.Name
			if len(obj.PlanData.Phases) > 0 {
				phase := obj.PlanData.Phases[0]
				plan.Cadence = phase.Cadence
				plan.Amount = phase.RecurringPriceMoney.Amount
				plan.Currency = phase.RecurringPriceMoney.Currency
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

type CreateSubscriptionRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	LocationID     string `json:"location_id"`
	PlanID         string `json:"plan_id"`
	CustomerID     string `json:"customer_id"`
	CardID         string `json:"card_id"`
	StartDate      string `json:"start_date,omitempty"`
}

func (c *Client) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*models.RemoteSubscription, error) {
	EnsureIdempotencyKey(&req.IdempotencyKey)
	var resp struct {
		Subscription *models.RemoteSubscription `json:"subscription"`
	}
	if err := c.post(ctx, "/v2/subscriptions", req, &resp); err != nil {
		return nil, err
	}
	return resp.Subscription, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*models.RemoteSubscription, error) {
	var resp struct {
		Subscription *models.RemoteSubscription `json:"subscription"`
	}
	if err := c.get(ctx, "/v2/subscriptions/"+url.PathEscape(subscriptionID), &resp); err != nil {
		return nil, err
	}
	return resp.Subscription, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*models.RemoteSubscription, error) {
	action := fmt.Sprintf("/v2/subscriptions/%s/cancel", url.PathEscape(subscriptionID))
	var resp struct {
		Subscription *models.RemoteSubscription `json:"subscription"`
	}
	if err := c.post(ctx, action, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Subscription, nil
}

type CreateOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Order          Order  `json:"order"`
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	EnsureIdempotencyKey(&req.IdempotencyKey)
	if req.Order.LocationID == "" {
		req.Order.LocationID = c.locationID
	}
	var resp struct {
		Order *Order `json:"order"`
	}
	if err := c.post(ctx, "/v2/orders", req, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp struct {
		Order *Order `json:"order"`
	}
	if err := c.get(ctx, "/v2/orders/"+url.PathEscape(orderID), &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// UpdateOrderReference stamps the order with an external reference id.
func (c *Client) UpdateOrderReference(ctx context.Context, orderID, referenceID string) (*Order, error) {
	payload := map[string]any{
		"order": map[string]any{"reference_id": referenceID},
	}
	var resp struct {
		Order *Order `json:"order"`
	}
	if err := c.put(ctx, "/v2/orders/"+url.PathEscape(orderID), payload, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var resp struct {
		Invoice *Invoice `json:"invoice"`
	}
	if err := c.get(ctx, "/v2/invoices/"+url.PathEscape(invoiceID), &resp); err != nil {
		return nil, err
	}
	return resp.Invoice, nil
}

func validateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}
