// Package webhook implements the provider interface by forwarding changes to
// an HTTP endpoint.
//
// The contract with the receiving endpoint:
//
//	GET  {URL}/ping    -> 200 OK
//	POST {URL}/upsert  -> 200, 201 or 204
//
// The upsert body is a JSON Notification. Endpoints must treat it as
// idempotent because transient failures are retried. When a signing secret
// is configured every request carries
//
//	X-Ddnsweaver-Timestamp: <unix seconds>
//	X-Ddnsweaver-Signature: sha256=<hex HMAC-SHA256 of "<timestamp>.<body>">
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// Signature headers.
const (
	HeaderTimestamp = "X-Ddnsweaver-Timestamp"
	HeaderSignature = "X-Ddnsweaver-Signature"
)

// maxRetryAfter caps how long a Retry-After header may stall an update.
const maxRetryAfter = 30 * time.Second

// ActionUpsert is the only action the service sends.
const ActionUpsert = "upsert"

// Notification is the upsert request body.
type Notification struct {
	Action string `json:"action"`
	ZoneID string `json:"zone_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl"`
}

// ErrorResponse is the error body endpoints may return.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Client sends notifications to one webhook endpoint.
type Client struct {
	baseURL    string
	authHeader string
	authToken  string
	secret     []byte
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client from a validated Config.
func NewClient(cfg *Config, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		authHeader: cfg.AuthHeader,
		authToken:  cfg.AuthToken,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		logger:     slog.Default(),
		now:        time.Now,
	}
	if cfg.SigningSecret != "" {
		c.secret = []byte(cfg.SigningSecret)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{Timeout: cfg.Timeout, Logger: c.logger})
	}
	return c
}

// Ping sends GET /ping and expects 200.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.send(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if status != http.StatusOK {
		return statusError("ping", status, body)
	}
	return nil
}

// Upsert posts n to /upsert.
func (c *Client) Upsert(ctx context.Context, n Notification) error {
	n.Action = ActionUpsert
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	status, body, err := c.send(ctx, http.MethodPost, "/upsert", payload)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return statusError("upsert", status, body)
	}
}

// send performs one logical request, retrying transport failures and
// retryable statuses with exponential backoff. The final status and body
// are returned even when the status is retryable.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var lastErr error
	wait := time.Duration(0)

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				wait = c.retryDelay << (attempt - 1)
			}
			c.logger.Debug("retrying webhook request",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return 0, nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if !isRetryable(resp.StatusCode) || attempt == c.retries {
			return resp.StatusCode, body, nil
		}
		lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
		wait = retryAfter(resp.Header.Get("Retry-After"))
	}

	return 0, nil, fmt.Errorf("%w: giving up after %d attempts: %w",
		provider.ErrProviderUnavailable, c.retries+1, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	switch {
	case c.authHeader != "":
		req.Header.Set(c.authHeader, c.authToken)
	case c.authToken != "":
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	if c.secret != nil {
		ts := strconv.FormatInt(c.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, "sha256="+Sign(c.secret, ts, payload))
	}
	return req, nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>". Receivers use
// it to verify X-Ddnsweaver-Signature.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter parses a Retry-After header given in seconds. Zero means use
// the configured backoff.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

// statusError maps a non-success response onto the provider sentinels.
func statusError(op string, status int, body []byte) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
		if er.Message != "" {
			msg += ": " + er.Message
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s failed: %w: %s", op, provider.ErrUnauthorized, msg)
	case status >= 500 || isRetryable(status):
		return fmt.Errorf("%s failed: %w: %s", op, provider.ErrProviderUnavailable, msg)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s failed: %w: %s", op, provider.ErrInvalidChange, msg)
	default:
		return fmt.Errorf("%s failed: %s", op, msg)
	}
}
