package dnsupdate

import (
	"testing"

	"github.com/miekg/dns"
)

func TestRecordToRR(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		want    string
		wantErr bool
	}{
		{
			name:   "A",
			record: NewARecord("Home.Example.com", "203.0.113.7", 60),
			want:   "home.example.com.\t60\tIN\tA\t203.0.113.7",
		},
		{
			name:   "AAAA",
			record: NewAAAARecord("v6.example.com.", "2001:db8::1", 60),
			want:   "v6.example.com.\t60\tIN\tAAAA\t2001:db8::1",
		},
		{
			name:    "A with IPv6 value",
			record:  NewARecord("home.example.com", "2001:db8::1", 60),
			wantErr: true,
		},
		{
			name:    "AAAA with mapped IPv4",
			record:  NewAAAARecord("home.example.com", "::ffff:192.0.2.1", 60),
			wantErr: true,
		},
		{
			name:    "garbage value",
			record:  NewARecord("home.example.com", "not-an-ip", 60),
			wantErr: true,
		},
		{
			name:    "empty name",
			record:  NewARecord("", "203.0.113.7", 60),
			wantErr: true,
		},
		{
			name:    "unsupported type",
			record:  Record{Name: "x.example.com", Type: dns.TypeTXT, RData: "203.0.113.7"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := tt.record.ToRR()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", rr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rr.String() != tt.want {
				t.Errorf("ToRR() = %q, want %q", rr.String(), tt.want)
			}
		})
	}
}

func TestStringToType(t *testing.T) {
	if got, err := StringToType("aaaa"); err != nil || got != dns.TypeAAAA {
		t.Errorf("StringToType(aaaa) = %d, %v", got, err)
	}
	if got, err := StringToType("A"); err != nil || got != dns.TypeA {
		t.Errorf("StringToType(A) = %d, %v", got, err)
	}
	if _, err := StringToType("CNAME"); err == nil {
		t.Error("expected error for CNAME")
	}
}
