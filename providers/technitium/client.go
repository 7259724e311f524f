// Package technitium implements the provider interface for Technitium DNS Server.
//
// Every call is a form POST with the API token in the body, so the token
// never appears in URLs or proxy logs.
package technitium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const (
	pathSession    = "/api/user/session/get"
	pathRecordsGet = "/api/zones/records/get"
	pathRecordsAdd = "/api/zones/records/add"
)

// envelope wraps every Technitium response; status is "ok", "error" or
// "invalid-token".
type envelope struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
}

// Record is one entry of a records/get response. Only address data is read.
type Record struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	TTL      int    `json:"ttl"`
	Disabled bool   `json:"disabled"`
	RData    struct {
		IPAddress string `json:"ipAddress"`
	} `json:"rData"`
}

// Client talks to the Technitium HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client. Nil is ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{Logger: c.logger})
	}
	return c
}

// call POSTs form to path and decodes the response payload into out, which
// may be nil.
func (c *Client) call(ctx context.Context, path string, form url.Values, out any) error {
	body := url.Values{"token": {c.token}}
	for k, v := range form {
		body[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("technitium request", slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", provider.ErrProviderUnavailable, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", provider.ErrProviderUnavailable, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(path, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", path, err)
	}
	if err := env.err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%s: decoding payload: %w", path, err)
	}
	return nil
}

func statusError(path string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", provider.ErrUnauthorized, path, code)
	case code >= 500:
		return fmt.Errorf("%w: %s returned %d: %s", provider.ErrProviderUnavailable, path, code, msg)
	default:
		return fmt.Errorf("%s returned %d: %s", path, code, msg)
	}
}

func (e envelope) err() error {
	switch e.Status {
	case "ok":
		return nil
	case "invalid-token":
		return fmt.Errorf("%w: %s", provider.ErrUnauthorized, e.ErrorMessage)
	case "error":
		if strings.Contains(strings.ToLower(e.ErrorMessage), "no such zone") {
			return fmt.Errorf("%w: %s", provider.ErrZoneMismatch, e.ErrorMessage)
		}
		return fmt.Errorf("server error: %s", e.ErrorMessage)
	default:
		return fmt.Errorf("unknown response status %q", e.Status)
	}
}

// Ping validates the token against the session endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, pathSession, nil, nil)
}

// Records lists the records at domain in zone, all types.
func (c *Client) Records(ctx context.Context, zone, domain string) ([]Record, error) {
	var payload struct {
		Records []Record `json:"records"`
	}
	form := url.Values{"zone": {zone}, "domain": {domain}}
	if err := c.call(ctx, pathRecordsGet, form, &payload); err != nil {
		return nil, err
	}
	return payload.Records, nil
}

// SetAddressRecord adds an A or AAAA record with overwrite=true, replacing
// every record of that type at domain in one call.
func (c *Client) SetAddressRecord(ctx context.Context, zone, domain, recordType, ip string, ttl int) error {
	form := url.Values{
		"zone":      {zone},
		"domain":    {domain},
		"type":      {recordType},
		"ipAddress": {ip},
		"ttl":       {strconv.Itoa(ttl)},
		"overwrite": {"true"},
	}
	if err := c.call(ctx, pathRecordsAdd, form, nil); err != nil {
		return fmt.Errorf("setting %s %s: %w", recordType, domain, err)
	}
	return nil
}

// current reports whether records hold exactly one enabled recordType entry
// at domain with ip and ttl.
func current(records []Record, domain, recordType string, ip netip.Addr, ttl int) bool {
	var n int
	var match bool
	for _, r := range records {
		if r.Disabled || !strings.EqualFold(r.Type, recordType) || !strings.EqualFold(provider.UnFqdn(r.Name), domain) {
			continue
		}
		n++
		addr, err := netip.ParseAddr(r.RData.IPAddress)
		match = err == nil && addr == ip && r.TTL == ttl
	}
	return n == 1 && match
}
