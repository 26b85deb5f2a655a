package gateway

import (
	"strings"
	"testing"
)

func TestNormalizeErrorStructuredBody(t *testing.T) {
	body := []byte(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CVV_FAILURE","detail":"CVV check failed."},{"code":"GENERIC_DECLINE"}]}`)
	err := normalizeError("400 Bad Request", body)

	if err.Code != "CVV_FAILURE" {
		t.Fatalf("expected first error code to win, got %q", err.Code)
	}
	if err.Message != "CVV check failed." {
		t.Fatalf("unexpected message: %q", err.Message)
	}
	if err.Body != string(body) {
		t.Fatal("raw body must be preserved")
	}
}

func TestNormalizeErrorMissingDetailFallsBackToStatus(t *testing.T) {
	err := normalizeError("402 Payment Required", []byte(`{"errors":[{"code":"INSUFFICIENT_FUNDS"}]}`))
	if err.Code != "INSUFFICIENT_FUNDS" {
		t.Fatalf("unexpected code: %q", err.Code)
	}
	if err.Message != "402 Payment Required" {
		t.Fatalf("expected status line fallback, got %q", err.Message)
	}
}

func TestNormalizeErrorUnstructuredBody(t *testing.T) {
	err := normalizeError("502 Bad Gateway", []byte(`<html>upstream timeout</html>`))
	if err.Code != "" {
		t.Fatalf("unexpected code: %q", err.Code)
	}
	if err.Message != "502 Bad Gateway" {
		t.Fatalf("unexpected message: %q", err.Message)
	}
}

func TestErrorString(t *testing.T) {
	withCode := &Error{Code: "CARD_EXPIRED", Message: "Card expired."}
	if got := withCode.Error(); got != "gateway: CARD_EXPIRED: Card expired." {
		t.Fatalf("unexpected error string: %q", got)
	}

	withoutCode := &Error{Message: "connection refused"}
	if !strings.HasPrefix(withoutCode.Error(), "gateway: ") {
		t.Fatalf("unexpected error string: %q", withoutCode.Error())
	}
}

func TestUserMessageMapping(t *testing.T) {
	if got := UserMessage("INVALID_POSTAL_CODE"); got != "The postal code is invalid." {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := UserMessage("SOME_NEW_CODE"); got != genericDeclineMessage {
		t.Fatalf("unmapped codes must use the generic message, got %q", got)
	}
	if got := UserMessage(""); got != genericDeclineMessage {
		t.Fatalf("empty code must use the generic message, got %q", got)
	}
}
