package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(url string, mutate func(*Config)) *Client {
	cfg := &Config{URL: url, Timeout: 5 * time.Second, RetryDelay: time.Millisecond}
	if mutate != nil {
		mutate(cfg)
	}
	return NewClient(cfg, WithLogger(testLogger))
}

func TestClient_Upsert(t *testing.T) {
	var got Notification
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upsert" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		header = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(server.URL+"/", func(cfg *Config) { cfg.AuthToken = "tok" })
	err := c.Upsert(context.Background(), Notification{
		ZoneID: "Z1", Name: "home.example.com", Type: "A", Value: "203.0.113.7", TTL: 60,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	want := Notification{Action: "upsert", ZoneID: "Z1", Name: "home.example.com", Type: "A", Value: "203.0.113.7", TTL: 60}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if v := header.Get("Authorization"); v != "Bearer tok" {
		t.Errorf("Authorization = %q", v)
	}
	if v := header.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q", v)
	}
	if header.Get(HeaderSignature) != "" {
		t.Error("signature sent without a signing secret")
	}
}

func TestClient_CustomAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret123" || r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL, func(cfg *Config) {
		cfg.AuthHeader = "X-API-Key"
		cfg.AuthToken = "secret123"
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestClient_Signature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts := r.Header.Get(HeaderTimestamp)
		want := "sha256=" + Sign([]byte("shh"), ts, body)
		if ts != "1700000000" || r.Header.Get(HeaderSignature) != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL, func(cfg *Config) { cfg.SigningSecret = "shh" })
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	if err := c.Upsert(context.Background(), Notification{Name: "h", Type: "A", Value: "192.0.2.1", TTL: 60}); err != nil {
		t.Errorf("Upsert() error = %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSign(t *testing.T) {
	got := Sign([]byte("key"), "1", []byte("{}"))
	if len(got) != 64 {
		t.Fatalf("Sign() = %q, want 64 hex characters", got)
	}
	if got == Sign([]byte("key"), "2", []byte("{}")) {
		t.Error("signature does not cover the timestamp")
	}
	if got == Sign([]byte("other"), "1", []byte("{}")) {
		t.Error("signature does not depend on the secret")
	}
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusUnauthorized, provider.ErrUnauthorized},
		{http.StatusForbidden, provider.ErrUnauthorized},
		{http.StatusInternalServerError, provider.ErrProviderUnavailable},
		{http.StatusUnprocessableEntity, provider.ErrInvalidChange},
		{http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "rejected", Message: "zone locked"})
			}))
			defer server.Close()

			err := newTestClient(server.URL, nil).Upsert(context.Background(), Notification{Name: "h", Type: "A", Value: "192.0.2.1", TTL: 60})
			if err == nil {
				t.Fatal("Upsert() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), "rejected: zone locked") {
				t.Errorf("error = %v, want endpoint message", err)
			}
		})
	}
}

func TestClient_Retry(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		statuses     []int
		wantAttempts int32
		wantErr      error
	}{
		{"recovers after 503", 3, []int{503, 503, 200}, 3, nil},
		{"recovers after 429", 2, []int{429, 200}, 2, nil},
		{"no retry on 400", 3, []int{400}, 1, nil},
		{"no retry on 500", 3, []int{500}, 1, provider.ErrProviderUnavailable},
		{"gives up", 2, []int{503, 503, 503}, 3, provider.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				w.WriteHeader(tt.statuses[min(int(n), len(tt.statuses))-1])
			}))
			defer server.Close()

			c := newTestClient(server.URL, func(cfg *Config) { cfg.Retries = tt.retries })
			err := c.Ping(context.Background())
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Ping() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && tt.statuses[len(tt.statuses)-1] == http.StatusOK && err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestClient_RetryTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(url, func(cfg *Config) { cfg.Retries = 1 })
	err := c.Ping(context.Background())
	if !provider.IsProviderUnavailable(err) {
		t.Errorf("Ping() error = %v, want provider unavailable", err)
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("Ping() error = %v, want attempt count", err)
	}
}

func TestClient_RetryStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(server.URL, func(cfg *Config) { cfg.Retries = 3 })
	start := time.Now()
	err := c.Ping(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ping() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Retry-After wait ignored context cancellation")
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"-3", 0},
		{"soon", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{"2", 2 * time.Second},
		{" 5 ", 5 * time.Second},
		{"3600", maxRetryAfter},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.in); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusOK:                  false,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusInternalServerError: false,
		http.StatusTooManyRequests:     true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	} {
		if got := isRetryable(status); got != want {
			t.Errorf("isRetryable(%d) = %v, want %v", status, got, want)
		}
	}
}
