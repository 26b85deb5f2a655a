package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"subsync/internal/config"
	"subsync/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Doer abstracts the HTTP transport so tests can inject a fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the single choke point for all payment-gateway calls.
type Client struct {
	baseURL    string
	locationID string
	httpClient Doer
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New builds a client whose transport injects the bearer token on every
// request. A zero RateLimitRPS disables outbound throttling.
func New(cfg config.GatewayConfig, logger *zerolog.Logger) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = cfg.RequestTimeout

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		locationID: cfg.LocationID,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// NewWithDoer builds a client over an arbitrary transport, used by tests.
func NewWithDoer(baseURL, locationID string, doer Doer, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		locationID: locationID,
		httpClient: doer,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// LocationID returns the configured business location.
func (c *Client) LocationID() string {
	return c.locationID
}

// Execute sends one JSON request and returns the raw response body when the
// status matches expectedStatus. Any other outcome is returned as *Error;
// expected failure paths never panic.
func (c *Client) Execute(ctx context.Context, action string, payload any, method string, expectedStatus int) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Message: err.Error()}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("encode payload: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+action, body)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncGatewayRequest(action, "transport_error")
		c.logger.Error().Err(err).Str("action", action).Str("method", method).Msg("gateway request failed")
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncGatewayRequest(action, "transport_error")
		return nil, &Error{Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != expectedStatus {
		gwErr := normalizeError(resp.Status, raw)
		metrics.IncGatewayRequest(action, "error")
		c.logger.Warn().
			Str("action", action).
			Int("status", resp.StatusCode).
			Str("code", gwErr.Code).
			Msg("gateway request rejected")
		return nil, gwErr
	}

	metrics.IncGatewayRequest(action, "ok")
	return raw, nil
}

func (c *Client) get(ctx context.Context, action string, out any) error {
	raw, err := c.Execute(ctx, action, nil, http.MethodGet, http.StatusOK)
	if err != nil {
		return err
	}
	return c.unwrap(raw, out)
}

func (c *Client) post(ctx context.Context, action string, payload, out any) error {
	raw, err := c.Execute(ctx, action, payload, http.MethodPost, http.StatusOK)
	if err != nil {
		return err
	}
	return c.unwrap(raw, out)
}

func (c *Client) put(ctx context.Context, action string, payload, out any) error {
	raw, err := c.Execute(ctx, action, payload, http.MethodPut, http.StatusOK)
	if err != nil {
		return err
	}
	return c.unwrap(raw, out)
}

func (c *Client) unwrap(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Message: fmt.Sprintf("decode response: %v", err), Body: string(raw)}
	}
	return nil
}

const idempotencyKeyBytes = 16

// NewIdempotencyKey returns a fresh cryptographically random hex key.
func NewIdempotencyKey() string {
	buf := make([]byte, idempotencyKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("idempotency key entropy unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// EnsureIdempotencyKey fills key only when empty. A payload that already
// carries a key keeps it, so a prepared request can be resent safely.
func EnsureIdempotencyKey(key *string) {
	if *key == "" {
		*key = NewIdempotencyKey()
	}
}

// pageFunc fetches one page for a cursor, returning the page items and the
// next cursor ("" when this was the last page).
type pageFunc func(ctx context.Context, cursor string) (items []json.RawMessage, next string, err error)

// PagedResult accumulates items across pages. When a later page fails the
// items gathered so far are kept and Incomplete marks the result as partial
// rather than discarding them.
type PagedResult struct {
	Items      []json.RawMessage
	Incomplete bool
	PageErr    error
}

func collectPages(ctx context.Context, fetch pageFunc) PagedResult {
	var result PagedResult
	cursor := ""
	for {
		items, next, err := fetch(ctx, cursor)
		if err != nil {
			result.Incomplete = true
			result.PageErr = err
			return result
		}
		result.Items = append(result.Items, items...)
		if next == "" {
			return result
		}
		cursor = next
	}
}

func withCursor(query url.Values, cursor string) url.Values {
	if query == nil {
		query = url.Values{}
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return query
}
