package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validation failures detected locally, before any request is sent.
var (
	ErrInvalidEmail    = errors.New("a valid email address is required")
	ErrNothingToRefund = errors.New("payment has already been fully refunded")
)

// Error is a normalized gateway failure. Code is empty for transport
// failures; Body carries the raw response for logging.
type Error struct {
	Code    string
	Message string
	Body    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: %s", e.Message)
}

// UserMessage returns the human-readable text for this error's code.
func (e *Error) UserMessage() string {
	return UserMessage(e.Code)
}

// apiErrorBody matches the gateway's structured error payload.
type apiErrorBody struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}

// normalizeError builds an Error from a non-matching response. The first
// structured error object wins; without one, the transport status line is
// all we have.
func normalizeError(status string, body []byte) *Error {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		first := parsed.Errors[0]
		msg := first.Detail
		if msg == "" {
			msg = status
		}
		return &Error{Code: first.Code, Message: msg, Body: string(body)}
	}
	return &Error{Message: status, Body: string(body)}
}

const genericDeclineMessage = "Your payment could not be processed. Please try again or use a different card."

// userMessages maps gateway error codes to checkout-facing text. Unmapped
// codes fall back to the generic decline message.
var userMessages = map[string]string{
	"CARD_EXPIRED":                        "The card has expired. Please use a different card.",
	"INVALID_EXPIRATION":                  "The card expiration date is invalid.",
	"INVALID_CARD":                        "The card number is invalid.",
	"INVALID_CARD_DATA":                   "The card details could not be verified.",
	"CVV_FAILURE":                         "The card security code is incorrect.",
	"ADDRESS_VERIFICATION_FAILURE":        "The billing address does not match the card.",
	"INVALID_POSTAL_CODE":                 "The postal code is invalid.",
	"INSUFFICIENT_FUNDS":                  "The card has insufficient funds.",
	"CARD_NOT_SUPPORTED":                  "This card is not supported for this transaction.",
	"GENERIC_DECLINE":                     "The card was declined.",
	"CARD_DECLINED_VERIFICATION_REQUIRED": "The card was declined because it requires verification.",
	"PAYMENT_LIMIT_EXCEEDED":              "The payment exceeds the allowed limit.",
	"TRANSACTION_LIMIT":                   "The amount is outside the allowed transaction limits.",
	"REFUND_ALREADY_PENDING":              "A refund is already pending for this payment.",
	"REFUND_DECLINED":                     "The refund was declined.",
	"IDEMPOTENCY_KEY_REUSED":              "This request was already processed.",
}

// UserMessage maps a gateway error code to a human-readable message.
func UserMessage(code string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return genericDeclineMessage
}
