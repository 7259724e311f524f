// Package cloudflare updates address records through the Cloudflare v4 API.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// envelope wraps every v4 response.
type envelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

func (e *envelope) err() error {
	if e.Success {
		return nil
	}
	if len(e.Errors) == 0 {
		return fmt.Errorf("request failed without an error message")
	}
	msgs := make([]string, len(e.Errors))
	for i, m := range e.Errors {
		msgs[i] = fmt.Sprintf("%s (code %d)", m.Message, m.Code)
	}
	return fmt.Errorf("api error: %s", strings.Join(msgs, "; "))
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// dnsRecord is the subset of a DNS record object the provider reads and
// writes.
type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// Client talks to the v4 API with a bearer token.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint points the client at another base URL.
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{endpoint: DefaultAPIEndpoint, token: token, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{Logger: c.logger})
	}
	return c
}

// call sends one request. in, when non-nil, is the JSON body; out, when
// non-nil, receives the envelope's result.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", provider.ErrProviderUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", provider.ErrUnauthorized, method, path, code)
	case code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: %s %s: status %d", provider.ErrProviderUnavailable, method, path, code)
	case decodeErr != nil:
		return fmt.Errorf("%s %s: status %d: undecodable body: %w", method, path, code, decodeErr)
	case code < 200 || code > 299:
		if err := env.err(); err != nil {
			return fmt.Errorf("%s %s: status %d: %w", method, path, code, err)
		}
		return fmt.Errorf("%s %s: status %d", method, path, code)
	}
	if err := env.err(); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

// Ping verifies the token.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/user/tokens/verify", nil, nil)
}

// GetZoneID looks up the active zone called name.
func (c *Client) GetZoneID(ctx context.Context, name string) (string, error) {
	q := url.Values{"name": {provider.UnFqdn(name)}, "status": {"active"}}

	var zones []zone
	if err := c.call(ctx, http.MethodGet, "/zones?"+q.Encode(), nil, &zones); err != nil {
		return "", fmt.Errorf("looking up zone %s: %w", name, err)
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("%w: no active zone %s", provider.ErrZoneMismatch, name)
	}
	c.logger.Debug("resolved zone", slog.String("zone", name), slog.String("zone_id", zones[0].ID))
	return zones[0].ID, nil
}

// FindRecord returns the first record of type recordType at name, or nil.
func (c *Client) FindRecord(ctx context.Context, zoneID, recordType, name string) (*dnsRecord, error) {
	q := url.Values{"type": {recordType}, "name": {name}}

	var found []dnsRecord
	if err := c.call(ctx, http.MethodGet, recordsPath(zoneID)+"?"+q.Encode(), nil, &found); err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", recordType, name, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		c.logger.Warn("several records share name and type, updating the first",
			slog.String("record", name), slog.String("type", recordType), slog.Int("count", len(found)))
	}
	return &found[0], nil
}

func (c *Client) CreateRecord(ctx context.Context, zoneID string, rec dnsRecord) error {
	if err := c.call(ctx, http.MethodPost, recordsPath(zoneID), rec, nil); err != nil {
		return fmt.Errorf("creating %s %s: %w", rec.Type, rec.Name, err)
	}
	return nil
}

// UpdateRecord overwrites record id with rec.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, id string, rec dnsRecord) error {
	rec.ID = ""
	if err := c.call(ctx, http.MethodPut, recordsPath(zoneID)+"/"+url.PathEscape(id), rec, nil); err != nil {
		return fmt.Errorf("updating %s %s: %w", rec.Type, rec.Name, err)
	}
	return nil
}

func recordsPath(zoneID string) string {
	return "/zones/" + url.PathEscape(zoneID) + "/dns_records"
}
