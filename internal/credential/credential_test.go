package credential

import (
	"errors"
	"strings"
	"testing"
)

func TestDigest(t *testing.T) {
	// sha512("abc") from FIPS 180-2.
	const want = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
	if got := Digest("abc"); got != want {
		t.Errorf("Digest(abc) = %s, want %s", got, want)
	}
	if len(Digest("")) != 128 {
		t.Errorf("digest length = %d, want 128", len(Digest("")))
	}
}

func TestRecord_Verify(t *testing.T) {
	r := Record{Key: "abc", SecretHash: Digest("s3cr3t")}

	tests := []struct {
		name   string
		record Record
		secret string
		want   bool
	}{
		{"correct secret", r, "s3cr3t", true},
		{"wrong secret", r, "s3cr3T", false},
		{"empty secret", r, "", false},
		{"uppercase stored digest", Record{SecretHash: strings.ToUpper(Digest("s3cr3t"))}, "s3cr3t", true},
		{"plaintext stored instead of digest", Record{SecretHash: "s3cr3t"}, "s3cr3t", false},
		{"empty stored digest", Record{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Verify(tt.secret); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.secret, got, tt.want)
			}
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	full := Record{Key: "abc", SecretHash: "x", Domain: "host.example.com", ZoneID: "Z123"}
	if err := full.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	broken := Record{Key: "abc", Domain: "host.example.com"}
	err := broken.Validate()
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if !strings.Contains(err.Error(), "secret_hash") || !strings.Contains(err.Error(), "zone_id") {
		t.Errorf("error should name missing attributes: %v", err)
	}
}

func TestRecord_WithAddress(t *testing.T) {
	r := Record{Key: "abc", SecretHash: "h", Domain: "d", ZoneID: "z", LastSetAddress: "1.2.3.3"}
	updated := r.WithAddress("1.2.3.4")

	if updated.LastSetAddress != "1.2.3.4" {
		t.Errorf("LastSetAddress = %q", updated.LastSetAddress)
	}
	if r.LastSetAddress != "1.2.3.3" {
		t.Error("WithAddress mutated the original record")
	}
	if updated.Key != r.Key || updated.SecretHash != r.SecretHash || updated.Domain != r.Domain || updated.ZoneID != r.ZoneID {
		t.Error("WithAddress changed fields other than LastSetAddress")
	}
}
