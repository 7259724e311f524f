package cloudflare

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigFromMap(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		settings map[string]string
		want     *Config
		wantErr  string
	}{
		{
			name:     "token",
			settings: map[string]string{"TOKEN": " t "},
			want:     &Config{Token: "t"},
		},
		{
			name:     "token file and options",
			settings: map[string]string{"TOKEN_FILE": tokenFile, "PROXIED": "yes", "TIMEOUT": "10s", "API_ENDPOINT": "http://127.0.0.1:8080"},
			want:     &Config{Token: "from-file", Proxied: true, Timeout: 10 * time.Second, APIEndpoint: "http://127.0.0.1:8080"},
		},
		{
			name:     "inline token wins",
			settings: map[string]string{"TOKEN": "inline", "TOKEN_FILE": "/does/not/exist", "PROXIED": "off"},
			want:     &Config{Token: "inline"},
		},
		{name: "missing token", settings: map[string]string{}, wantErr: "TOKEN (or TOKEN_FILE) is required"},
		{name: "unreadable file", settings: map[string]string{"TOKEN_FILE": filepath.Join(t.TempDir(), "nope")}, wantErr: "TOKEN_FILE"},
		{name: "bad proxied", settings: map[string]string{"TOKEN": "t", "PROXIED": "sometimes"}, wantErr: "not a boolean"},
		{name: "bad timeout", settings: map[string]string{"TOKEN": "t", "TIMEOUT": "later"}, wantErr: "TIMEOUT"},
		{name: "bad endpoint", settings: map[string]string{"TOKEN": "t", "API_ENDPOINT": "ftp://x"}, wantErr: "API_ENDPOINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadConfigFromMap("cf", tt.settings)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				if !strings.Contains(err.Error(), "configuration for cf") {
					t.Errorf("error %q does not name the instance", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfigFromMap() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
