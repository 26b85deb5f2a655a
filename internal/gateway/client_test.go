package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeDoer struct {
	handler func(req *http.Request) (*http.Response, error)
	calls   int
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls++
	return d.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(doer *fakeDoer) *Client {
	logger := zerolog.Nop()
	return NewWithDoer("https://gateway.test", "LOC1", doer, &logger)
}

func TestNewIdempotencyKey(t *testing.T) {
	key := NewIdempotencyKey()
	if len(key) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%q)", len(key), key)
	}
	for _, r := range key {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("unexpected character %q in key %q", r, key)
		}
	}
	if other := NewIdempotencyKey(); other == key {
		t.Fatalf("two keys collided: %q", key)
	}
}

func TestEnsureIdempotencyKey(t *testing.T) {
	key := ""
	EnsureIdempotencyKey(&key)
	if key == "" {
		t.Fatal("expected key to be filled")
	}

	existing := "prepared-key"
	EnsureIdempotencyKey(&existing)
	if existing != "prepared-key" {
		t.Fatalf("existing key was replaced with %q", existing)
	}
}

func TestExecuteSuccess(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if req.URL.String() != "https://gateway.test/v2/payments" {
			t.Fatalf("unexpected url: %s", req.URL)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	}}

	client := newTestClient(doer)
	raw, err := client.Execute(context.Background(), "/v2/payments", map[string]string{"a": "b"}, http.MethodPost, http.StatusOK)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", raw)
	}
}

func TestExecuteNormalizesGatewayError(t *testing.T) {
	body := `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_EXPIRED","detail":"Card expired."}]}`
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, body), nil
	}}

	client := newTestClient(doer)
	_, err := client.Execute(context.Background(), "/v2/payments", nil, http.MethodPost, http.StatusOK)
	if err == nil {
		t.Fatal("expected error")
	}

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gwErr.Code != "CARD_EXPIRED" {
		t.Fatalf("expected code CARD_EXPIRED, got %q", gwErr.Code)
	}
	if gwErr.Message != "Card expired." {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
	if gwErr.UserMessage() != "The card has expired. Please use a different card." {
		t.Fatalf("unexpected user message: %q", gwErr.UserMessage())
	}
}

func TestExecuteTransportError(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}

	client := newTestClient(doer)
	_, err := client.Execute(context.Background(), "/v2/locations", nil, http.MethodGet, http.StatusOK)
	if err == nil {
		t.Fatal("expected error")
	}

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gwErr.Code != "" {
		t.Fatalf("transport errors must not carry a code, got %q", gwErr.Code)
	}
}

func TestCollectPagesWalksAllCursors(t *testing.T) {
	pages := map[string]struct {
		items []string
		next  string
	}{
		"":   {items: []string{"a", "b"}, next: "c2"},
		"c2": {items: []string{"c"}, next: "c3"},
		"c3": {items: []string{"d"}, next: ""},
	}

	fetch := func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		page, ok := pages[cursor]
		if !ok {
			t.Fatalf("unexpected cursor %q", cursor)
		}
		var items []json.RawMessage
		for _, it := range page.items {
			items = append(items, json.RawMessage(fmt.Sprintf("%q", it)))
		}
		return items, page.next, nil
	}

	result := collectPages(context.Background(), fetch)
	if result.Incomplete {
		t.Fatal("expected complete result")
	}
	if len(result.Items) != 4 {
		t.Fatalf("expected 4 items across pages, got %d", len(result.Items))
	}
}

func TestCollectPagesKeepsPartialResultOnPageError(t *testing.T) {
	pageErr := errors.New("page 2 unavailable")
	fetch := func(ctx context.Context, cursor string) ([]json.RawMessage, string, error) {
		if cursor == "" {
			return []json.RawMessage{json.RawMessage(`"a"`)}, "c2", nil
		}
		return nil, "", pageErr
	}

	result := collectPages(context.Background(), fetch)
	if !result.Incomplete {
		t.Fatal("expected incomplete result")
	}
	if !errors.Is(result.PageErr, pageErr) {
		t.Fatalf("unexpected page error: %v", result.PageErr)
	}
	if len(result.Items) != 1 {
		t.Fatalf("first page items must be kept, got %d", len(result.Items))
	}
}
