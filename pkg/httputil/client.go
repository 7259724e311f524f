// Package httputil builds the HTTP clients shared by the HTTP-based providers
// and the trigger client.
package httputil

import (
	"cmp"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "ddnsweaver"
)

// ClientConfig configures NewClient. The zero value is usable.
type ClientConfig struct {
	Timeout   time.Duration // <= 0 selects DefaultTimeout
	UserAgent string

	// TLSSkipVerify turns off certificate checks for appliances that only
	// ship a self-signed certificate.
	TLSSkipVerify bool

	// Logger, when set, gets one debug line per round trip.
	Logger *slog.Logger
}

// NewClient returns an http.Client that stamps a User-Agent on requests
// lacking one. A nil cfg is the zero ClientConfig.
func NewClient(cfg *ClientConfig) *http.Client {
	var c ClientConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	var next http.RoundTripper = http.DefaultTransport
	if c.TLSSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per provider
		next = tr
	}

	return &http.Client{
		Timeout: c.Timeout,
		Transport: &transport{
			next:      next,
			userAgent: cmp.Or(c.UserAgent, DefaultUserAgent),
			logger:    c.Logger,
		},
	}
}

type transport struct {
	next      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	began := time.Now()
	resp, err := t.next.RoundTrip(req)
	if t.logger == nil {
		return resp, err
	}

	log := t.logger.With(
		slog.String("method", req.Method),
		slog.String("url", redacted(req)),
		slog.Duration("elapsed", time.Since(began)),
	)
	switch {
	case err != nil:
		log.Debug("http request failed", slog.String("error", err.Error()))
	default:
		log.Debug("http request", slog.Int("status", resp.StatusCode))
	}
	return resp, err
}

// redacted drops the query string, which some APIs use for credentials.
func redacted(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
