package googledns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	dns "google.golang.org/api/dns/v1"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// fakeCloudDNS serves the handful of Cloud DNS endpoints the provider calls.
type fakeCloudDNS struct {
	mu       sync.Mutex
	rrsets   []*dns.ResourceRecordSet
	changes  []*dns.Change
	listPath string
	status   int
}

func (f *fakeCloudDNS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake failure"}}`, f.status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/rrsets"):
		f.listPath = r.URL.Path + "?" + r.URL.RawQuery
		var matched []*dns.ResourceRecordSet
		for _, rr := range f.rrsets {
			if rr.Name == r.URL.Query().Get("name") && rr.Type == r.URL.Query().Get("type") {
				matched = append(matched, rr)
			}
		}
		_ = json.NewEncoder(w).Encode(&dns.ResourceRecordSetsListResponse{Rrsets: matched})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/changes"):
		var change dns.Change
		if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.changes = append(f.changes, &change)
		change.Id = "1"
		change.Status = "pending"
		_ = json.NewEncoder(w).Encode(&change)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/managedZones"):
		_ = json.NewEncoder(w).Encode(&dns.ManagedZonesListResponse{})
	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, fake *fakeCloudDNS) *Provider {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	p, err := New(context.Background(), "gcp",
		&Config{Project: "my-project", Endpoint: server.URL + "/"},
		WithHTTPClient(server.Client()),
		WithProviderLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestProvider_UpsertCreatesWhenAbsent(t *testing.T) {
	fake := &fakeCloudDNS{}
	p := newTestProvider(t, fake)

	err := p.Upsert(context.Background(), provider.Change{
		ZoneID: "example-zone", Name: "home.example.com", Type: provider.RecordTypeA, Value: "203.0.113.7", TTL: 60,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if len(fake.changes) != 1 {
		t.Fatalf("changes.create called %d times, want 1", len(fake.changes))
	}
	if !strings.Contains(fake.listPath, "/projects/my-project/managedZones/example-zone/rrsets") {
		t.Errorf("list path = %q", fake.listPath)
	}

	got := fake.changes[0]
	want := []*dns.ResourceRecordSet{{Name: "home.example.com.", Type: "A", Ttl: 60, Rrdatas: []string{"203.0.113.7"}}}
	if diff := cmp.Diff(want, got.Additions); diff != "" {
		t.Errorf("additions mismatch (-want +got):\n%s", diff)
	}
	if len(got.Deletions) != 0 {
		t.Errorf("deletions = %v, want none", got.Deletions)
	}
}

func TestProvider_UpsertReplacesExisting(t *testing.T) {
	old := &dns.ResourceRecordSet{Name: "home.example.com.", Type: "AAAA", Ttl: 300, Rrdatas: []string{"2001:db8::1"}}
	fake := &fakeCloudDNS{rrsets: []*dns.ResourceRecordSet{
		old,
		{Name: "home.example.com.", Type: "A", Ttl: 300, Rrdatas: []string{"198.51.100.1"}},
	}}
	p := newTestProvider(t, fake)

	err := p.Upsert(context.Background(), provider.Change{
		ZoneID: "example-zone", Name: "home.example.com.", Type: provider.RecordTypeAAAA, Value: "2001:db8::2", TTL: 60,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got := fake.changes[0]
	if diff := cmp.Diff([]*dns.ResourceRecordSet{old}, got.Deletions); diff != "" {
		t.Errorf("deletions mismatch (-want +got):\n%s", diff)
	}
	if len(got.Additions) != 1 || got.Additions[0].Rrdatas[0] != "2001:db8::2" {
		t.Errorf("additions = %+v", got.Additions)
	}
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusForbidden, provider.ErrUnauthorized},
		{http.StatusNotFound, provider.ErrZoneMismatch},
		{http.StatusBadRequest, provider.ErrInvalidChange},
		{http.StatusServiceUnavailable, provider.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, &fakeCloudDNS{status: tt.status})
			err := p.Upsert(context.Background(), provider.Change{
				ZoneID: "example-zone", Name: "home.example.com", Type: provider.RecordTypeA, Value: "203.0.113.7", TTL: 60,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Upsert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_Ping(t *testing.T) {
	p := newTestProvider(t, &fakeCloudDNS{})
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if p.Name() != "gcp" || p.Type() != "googledns" {
		t.Errorf("got provider %s/%s", p.Name(), p.Type())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), "gcp", &Config{}); !provider.IsConfigError(err) {
		t.Errorf("New(no project) error = %v, want config error", err)
	}
	if _, err := New(context.Background(), "gcp", nil); err == nil {
		t.Error("New(nil) error = nil")
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFromMap("gcp", map[string]string{"PROJECT": "p", "CREDENTIALS_FILE": path})
	if !provider.IsConfigError(err) {
		t.Errorf("NewFromMap(bad key file) error = %v, want config error", err)
	}
}
