// Package credential defines the credential record that authorizes a dynamic
// DNS update and the store contract used to look records up.
package credential

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Store.Get when no record exists for the key.
var ErrNotFound = errors.New("credential not found")

// ErrCorrupt indicates a stored record is missing required attributes.
var ErrCorrupt = errors.New("credential record is corrupt")

// Record is one provisioned dynamic DNS credential.
type Record struct {
	Key            string `json:"key"`
	SecretHash     string `json:"secret_hash"`
	Domain         string `json:"domain"`
	ZoneID         string `json:"zone_id"`
	LastSetAddress string `json:"last_set_address"`
}

// Store looks up and persists credential records.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Put overwrites the record stored under r.Key.
	Put(ctx context.Context, r Record) error
}

// Digest returns the lowercase hex SHA-512 digest of secret.
func Digest(secret string) string {
	sum := sha512.Sum512([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether secret hashes to the stored digest.
func (r Record) Verify(secret string) bool {
	want := strings.ToLower(strings.TrimSpace(r.SecretHash))
	got := Digest(secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Validate checks that the attributes needed to serve an update are present.
// An empty LastSetAddress is allowed.
func (r Record) Validate() error {
	var missing []string
	if r.SecretHash == "" {
		missing = append(missing, "secret_hash")
	}
	if r.Domain == "" {
		missing = append(missing, "domain")
	}
	if r.ZoneID == "" {
		missing = append(missing, "zone_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: key %q missing %s", ErrCorrupt, r.Key, strings.Join(missing, ", "))
	}
	return nil
}

// WithAddress returns a copy of r with LastSetAddress set to addr.
func (r Record) WithAddress(addr string) Record {
	r.LastSetAddress = addr
	return r
}
