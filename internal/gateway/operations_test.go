package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"subsync/internal/models"
)

func TestCreateRefundRejectsFullyRefundedLocally(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request may go out for a fully refunded payment")
		return nil, nil
	}}
	client := newTestClient(doer)

	payment := &Payment{
		ID:            "pay_1",
		TotalMoney:    Money{Amount: 1000, Currency: "USD"},
		RefundedMoney: &Money{Amount: 1000, Currency: "USD"},
	}
	_, err := client.CreateRefund(context.Background(), payment, Money{Amount: 100, Currency: "USD"}, "")
	if !errors.Is(err, ErrNothingToRefund) {
		t.Fatalf("expected ErrNothingToRefund, got %v", err)
	}
	if doer.calls != 0 {
		t.Fatalf("expected 0 gateway calls, got %d", doer.calls)
	}
}

func TestCreateRefundSendsIdempotencyKey(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		var body struct {
			IdempotencyKey string `json:"idempotency_key"`
			PaymentID      string `json:"payment_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.IdempotencyKey) != 32 {
			t.Fatalf("expected generated idempotency key, got %q", body.IdempotencyKey)
		}
		if body.PaymentID != "pay_1" {
			t.Fatalf("unexpected payment id: %q", body.PaymentID)
		}
		return jsonResponse(http.StatusOK, `{"refund":{"id":"ref_1","status":"PENDING","payment_id":"pay_1"}}`), nil
	}}
	client := newTestClient(doer)

	payment := &Payment{ID: "pay_1", TotalMoney: Money{Amount: 1000, Currency: "USD"}}
	refund, err := client.CreateRefund(context.Background(), payment, Money{Amount: 500, Currency: "USD"}, "requested")
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if refund.ID != "ref_1" {
		t.Fatalf("unexpected refund id: %q", refund.ID)
	}
}

func TestListRefundsFollowsCursor(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		switch req.URL.Query().Get("cursor") {
		case "":
			return jsonResponse(http.StatusOK, `{"refunds":[{"id":"r1","status":"COMPLETED","payment_id":"p1"}],"cursor":"next"}`), nil
		case "next":
			return jsonResponse(http.StatusOK, `{"refunds":[{"id":"r2","status":"COMPLETED","payment_id":"p2"}]}`), nil
		default:
			t.Fatalf("unexpected cursor %q", req.URL.Query().Get("cursor"))
			return nil, nil
		}
	}}
	client := newTestClient(doer)

	list, err := client.ListRefunds(context.Background(), "LOC1")
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if list.Incomplete {
		t.Fatal("expected complete listing")
	}
	if len(list.Refunds) != 2 {
		t.Fatalf("expected 2 refunds, got %d", len(list.Refunds))
	}
	if list.Refunds[0].ID != "r1" || list.Refunds[1].ID != "r2" {
		t.Fatalf("unexpected refund order: %+v", list.Refunds)
	}
}

func TestListRefundsMarksPartialOnLaterPageFailure(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("cursor") == "" {
			return jsonResponse(http.StatusOK, `{"refunds":[{"id":"r1","status":"COMPLETED","payment_id":"p1"}],"cursor":"next"}`), nil
		}
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	}}
	client := newTestClient(doer)

	list, err := client.ListRefunds(context.Background(), "")
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if !list.Incomplete {
		t.Fatal("expected incomplete listing")
	}
	if list.PageErr == nil {
		t.Fatal("expected page error to be carried")
	}
	if len(list.Refunds) != 1 {
		t.Fatalf("first page must survive, got %d refunds", len(list.Refunds))
	}
}

func TestSearchCustomersRejectsBadEmailLocally(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request may go out for an invalid email")
		return nil, nil
	}}
	client := newTestClient(doer)

	for _, email := range []string{"", "   ", "not-an-email", "missing@domain@twice"} {
		_, err := client.SearchCustomersByEmail(context.Background(), email)
		if !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
	if doer.calls != 0 {
		t.Fatalf("expected 0 gateway calls, got %d", doer.calls)
	}
}

func TestSearchCustomersByEmail(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		var body struct {
			Query struct {
				Filter struct {
					EmailAddress struct {
						Exact string `json:"exact"`
					} `json:"email_address"`
				} `json:"filter"`
			} `json:"query"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Query.Filter.EmailAddress.Exact != "jane@example.com" {
			t.Fatalf("unexpected exact filter: %q", body.Query.Filter.EmailAddress.Exact)
		}
		return jsonResponse(http.StatusOK, `{"customers":[{"id":"cus_1","email_address":"jane@example.com"}]}`), nil
	}}
	client := newTestClient(doer)

	customers, err := client.SearchCustomersByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("search customers: %v", err)
	}
	if len(customers) != 1 || customers[0].ID != "cus_1" {
		t.Fatalf("unexpected result: %+v", customers)
	}
}

func TestCreateCustomerStripsEmptyAddress(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := body["address"]; ok {
			t.Fatalf("empty address must be omitted, body: %s", raw)
		}
		return jsonResponse(http.StatusOK, `{"customer":{"id":"cus_2","email_address":"jane@example.com"}}`), nil
	}}
	client := newTestClient(doer)

	created, err := client.CreateCustomer(context.Background(), &models.Customer{
		EmailAddress: "jane@example.com",
		Address:      &models.Address{},
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if created.ID != "cus_2" {
		t.Fatalf("unexpected customer id: %q", created.ID)
	}
}

func TestCreateCustomerOmitsEmptyCountry(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		var body struct {
			Address map[string]string `json:"address"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Address == nil {
			t.Fatalf("expected address on the wire, body: %s", raw)
		}
		if _, ok := body.Address["country"]; ok {
			t.Fatalf("empty country must be omitted, body: %s", raw)
		}
		return jsonResponse(http.StatusOK, `{"customer":{"id":"cus_3","email_address":"jane@example.com"}}`), nil
	}}
	client := newTestClient(doer)

	_, err := client.CreateCustomer(context.Background(), &models.Customer{
		EmailAddress: "jane@example.com",
		Address:      &models.Address{Line1: "1 Main St", PostalCode: "12345"},
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
}

func TestUpdateCustomerOmitsAbsentFields(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", req.Method)
		}
		raw, _ := io.ReadAll(req.Body)
		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := body["family_name"]; ok {
			t.Fatalf("absent family name must not be sent, body: %s", raw)
		}
		if _, ok := body["address"]; ok {
			t.Fatalf("absent address must not be sent, body: %s", raw)
		}
		return jsonResponse(http.StatusOK, `{"customer":{"id":"cus_1","email_address":"jane@example.com","given_name":"Jane"}}`), nil
	}}
	client := newTestClient(doer)

	updated, err := client.UpdateCustomer(context.Background(), "cus_1", &CustomerUpdate{GivenName: "Jane"})
	if err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if updated.GivenName != "Jane" {
		t.Fatalf("unexpected given name: %q", updated.GivenName)
	}
}

func TestSearchPlansDecodesCatalogObjects(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		var body struct {
			ObjectTypes []string `json:"object_types"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.ObjectTypes) != 1 || body.ObjectTypes[0] != "SUBSCRIPTION_PLAN" {
			t.Fatalf("unexpected object types: %v", body.ObjectTypes)
		}
		return jsonResponse(http.StatusOK, `{"objects":[{"type":"SUBSCRIPTION_PLAN","id":"plan_1","subscription_plan_data":{"name":"Gold","phases":[{"cadence":"MONTHLY","recurring_price_money":{"amount":995,"currency":"USD"}}]}}]}`), nil
	}}
	client := newTestClient(doer)

	plans, err := client.SearchPlans(context.Background(), "Gold")
	if err != nil {
		t.Fatalf("search plans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	plan := plans[0]
	if plan.ID != "plan_1" || plan.Name != "Gold" || plan.Cadence != "MONTHLY" || plan.Amount != 995 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestCreateSubscriptionFillsIdempotencyKey(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		var body CreateSubscriptionRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.IdempotencyKey == "" {
			t.Fatal("expected idempotency key")
		}
		if body.PlanID != "plan_1" || body.CustomerID != "cus_1" || body.CardID != "card_1" {
			t.Fatalf("unexpected request: %+v", body)
		}
		return jsonResponse(http.StatusOK, `{"subscription":{"id":"sub_1","status":"ACTIVE"}}`), nil
	}}
	client := newTestClient(doer)

	sub, err := client.CreateSubscription(context.Background(), &CreateSubscriptionRequest{
		LocationID: "LOC1",
		PlanID:     "plan_1",
		CustomerID: "cus_1",
		CardID:     "card_1",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID != "sub_1" || sub.Status != models.SubscriptionActive {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestGetSubscriptionEscapesID(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		if got := req.URL.EscapedPath(); got != "/v2/subscriptions/sub%2F1" {
			t.Fatalf("unexpected path: %s", got)
		}
		return jsonResponse(http.StatusOK, `{"subscription":{"id":"sub/1","status":"CANCELED","canceled_date":"2026-02-01"}}`), nil
	}}
	client := newTestClient(doer)

	sub, err := client.GetSubscription(context.Background(), "sub/1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if !sub.Canceled() {
		t.Fatal("expected canceled subscription")
	}
}
