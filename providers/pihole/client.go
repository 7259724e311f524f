// Package pihole implements the provider interface for Pi-hole v6 local DNS.
package pihole

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// hostsPath is the config array holding "IP HOSTNAME" local records.
const hostsPath = "/api/config/dns/hosts"

// errSessionExpired means the server answered 401.
var errSessionExpired = errors.New("session expired")

// Client talks to the Pi-hole v6 REST API. Sessions are created on demand
// and reused until shortly before they expire.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	mu             sync.Mutex
	sid            string
	sessionExpires time.Time
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

// NewClient creates a new Pi-hole API client.
func NewClient(baseURL, password string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		password: password,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{Logger: c.logger})
	}
	return c
}

type sessionResponse struct {
	Session struct {
		Valid    bool   `json:"valid"`
		SID      string `json:"sid"`
		Validity int    `json:"validity"` // seconds
		Message  string `json:"message"`
	} `json:"session"`
}

// send performs req and returns the body of a 2xx reply. A 401 is returned
// as errSessionExpired; the caller decides what it means.
func (c *Client) send(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", provider.ErrProviderUnavailable, err)
	}

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		return nil, errSessionExpired
	case code >= 500:
		return nil, fmt.Errorf("%w: %s %s: status %d", provider.ErrProviderUnavailable, req.Method, req.URL.Path, code)
	case code < 200 || code > 299:
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, code, bytes.TrimSpace(body))
	}
	return body, nil
}

// session returns the cached SID or logs in for a new one.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sid != "" && time.Now().Before(c.sessionExpires) {
		return c.sid, nil
	}

	creds, err := json.Marshal(map[string]string{"password": c.password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth", bytes.NewReader(creds))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.send(req)
	if errors.Is(err, errSessionExpired) {
		return "", fmt.Errorf("%w: password rejected", provider.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("parsing login response: %w", err)
	}
	if !sr.Session.Valid {
		return "", fmt.Errorf("%w: %s", provider.ErrUnauthorized, cmp.Or(sr.Session.Message, "invalid credentials"))
	}

	// Renew 30s before Pi-hole expires the session, but keep it at least 30s.
	validity := max(time.Duration(sr.Session.Validity-30)*time.Second, 30*time.Second)
	c.sid, c.sessionExpires = sr.Session.SID, time.Now().Add(validity)

	c.logger.Debug("pihole session opened", slog.Duration("validity", validity))
	return c.sid, nil
}

func (c *Client) dropSession() {
	c.mu.Lock()
	c.sid, c.sessionExpires = "", time.Time{}
	c.mu.Unlock()
}

// request performs an authenticated call. A rejected session is dropped and
// the call retried once with a fresh login.
func (c *Client) request(ctx context.Context, method, path string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		sid, err := c.session(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-FTL-SID", sid)

		body, err := c.send(req)
		if !errors.Is(err, errSessionExpired) {
			return body, err
		}
		c.dropSession()
		if attempt > 0 {
			return nil, fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
		}
	}
}

// Hosts returns the raw "IP HOSTNAME [HOSTNAME...]" entries.
func (c *Client) Hosts(ctx context.Context) ([]string, error) {
	body, err := c.request(ctx, http.MethodGet, hostsPath)
	if err != nil {
		return nil, fmt.Errorf("fetching hosts: %w", err)
	}

	var result struct {
		Config struct {
			DNS struct {
				Hosts []string `json:"hosts"`
			} `json:"dns"`
		} `json:"config"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing hosts: %w", err)
	}
	return result.Config.DNS.Hosts, nil
}

// Ping reads the hosts list, which needs a working login.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Hosts(ctx)
	return err
}

// SetAddress makes addr the only address of its family for hostname. The new
// entry is added before stale ones are removed so the name never goes
// unanswered. Entries of the other family are left alone.
func (c *Client) SetAddress(ctx context.Context, hostname string, addr netip.Addr) error {
	hosts, err := c.Hosts(ctx)
	if err != nil {
		return err
	}

	stale, present := matchHosts(hosts, hostname, addr)
	if !present {
		entry := addr.String() + " " + hostname
		if _, err := c.request(ctx, http.MethodPut, hostsPath+"/"+url.PathEscape(entry)); err != nil {
			return fmt.Errorf("adding %q: %w", entry, err)
		}
	}
	for _, entry := range stale {
		if _, err := c.request(ctx, http.MethodDelete, hostsPath+"/"+url.PathEscape(entry)); err != nil {
			return fmt.Errorf("removing %q: %w", entry, err)
		}
		c.logger.Debug("removed stale host entry", slog.String("entry", entry))
	}
	return nil
}

// Close logs out. Pi-hole caps concurrent sessions, so a restarting service
// must not leave its old one behind.
func (c *Client) Close() error {
	c.mu.Lock()
	sid := c.sid
	c.mu.Unlock()
	if sid == "" {
		return nil
	}
	defer c.dropSession()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/auth", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-FTL-SID", sid)
	// Any reply ends the session: Pi-hole answers 410 once it is gone and
	// 401 if it had already expired.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return resp.Body.Close()
}

// matchHosts scans entries for hostname. It returns entries that carry a
// different address of addr's family, and whether addr is already listed.
// An entry naming several hosts is only considered when hostname is its
// sole name, so shared lines written by hand are never removed.
func matchHosts(entries []string, hostname string, addr netip.Addr) (stale []string, present bool) {
	for _, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) != 2 || !strings.EqualFold(fields[1], hostname) {
			continue
		}
		existing, err := netip.ParseAddr(fields[0])
		if err != nil || existing.Is4() != addr.Is4() {
			continue
		}
		if existing == addr && !present {
			present = true
			continue
		}
		stale = append(stale, entry)
	}
	return stale, present
}
