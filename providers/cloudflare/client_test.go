package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func ok(result any) map[string]any {
	return map[string]any{"success": true, "errors": []any{}, "result": result}
}

func failed(code int, message string) map[string]any {
	return map[string]any{
		"success": false,
		"errors":  []map[string]any{{"code": code, "message": message}},
		"result":  nil,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient("test-token", WithAPIEndpoint(server.URL+"/"), WithLogger(testLogger))
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/user/tokens/verify" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			t.Errorf("Content-Type on bodyless request = %q", ct)
		}
		_ = json.NewEncoder(w).Encode(ok(map[string]string{"status": "active"}))
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		wantIs error // nil: any error
	}{
		{"unauthorized", http.StatusUnauthorized, failed(10000, "Authentication error"), provider.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, failed(9109, "Unauthorized to access requested resource"), provider.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, failed(971, "Please wait"), provider.ErrProviderUnavailable},
		{"bad gateway", http.StatusBadGateway, nil, provider.ErrProviderUnavailable},
		{"validation", http.StatusBadRequest, failed(1004, "DNS Validation Error"), nil},
		{"success false", http.StatusOK, failed(1000, "nope"), nil},
		{"not json", http.StatusOK, "<html>", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				switch b := tt.body.(type) {
				case nil:
				case string:
					_, _ = io.WriteString(w, b)
				default:
					_ = json.NewEncoder(w).Encode(b)
				}
			})

			err := client.Ping(context.Background())
			if err == nil {
				t.Fatal("Ping() error = nil")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Ping() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestClient_GetZoneID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "active" || r.URL.Query().Get("name") != "example.com" {
			_ = json.NewEncoder(w).Encode(ok([]any{}))
			return
		}
		_ = json.NewEncoder(w).Encode(ok([]zone{{ID: "zone-1", Name: "example.com"}}))
	})

	id, err := client.GetZoneID(context.Background(), "example.com.")
	if err != nil || id != "zone-1" {
		t.Errorf("GetZoneID() = %q, %v", id, err)
	}
	if _, err := client.GetZoneID(context.Background(), "other.org"); !errors.Is(err, provider.ErrZoneMismatch) {
		t.Errorf("GetZoneID(unknown) error = %v, want ErrZoneMismatch", err)
	}
}
