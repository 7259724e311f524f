// Package provider defines the interface that all DNS providers must implement.
package provider

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

// RecordType represents the type of DNS record.
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

// DefaultTTL is the TTL applied to address records when none is configured.
const DefaultTTL = 60

// Change describes a single upsert of an address record set.
// The record set identified by (ZoneID, Name, Type) is replaced in full
// with one record holding Value.
type Change struct {
	ZoneID string     // Provider-specific zone identifier (hosted zone ID, zone name, managed zone)
	Name   string     // Fully-qualified record name
	Type   RecordType // A or AAAA
	Value  string     // Textual IP address
	TTL    int
}

// Validate checks that the change carries everything a provider needs.
func (c Change) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidChange)
	}
	if c.ZoneID == "" {
		return fmt.Errorf("%w: zone id is required", ErrInvalidChange)
	}
	if c.Type != RecordTypeA && c.Type != RecordTypeAAAA {
		return fmt.Errorf("%w: unsupported record type %q", ErrInvalidChange, c.Type)
	}
	if c.Value == "" {
		return fmt.Errorf("%w: value is required", ErrInvalidChange)
	}
	if c.TTL < 1 {
		return fmt.Errorf("%w: ttl must be at least 1", ErrInvalidChange)
	}
	return nil
}

// FQDN returns Name with a trailing dot.
func (c Change) FQDN() string {
	return Fqdn(c.Name)
}

// Addr parses Value and checks it matches Type: IPv4 for A, IPv6 for AAAA.
// IPv4-mapped IPv6 addresses are unmapped first.
func (c Change) Addr() (netip.Addr, error) {
	addr, err := netip.ParseAddr(c.Value)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q is not an IP address", ErrInvalidChange, c.Value)
	}
	addr = addr.Unmap()
	if addr.Is4() != (c.Type == RecordTypeA) {
		return netip.Addr{}, fmt.Errorf("%w: %s is not a valid %s value", ErrInvalidChange, addr, c.Type)
	}
	return addr, nil
}

// CheckZone fails with ErrZoneMismatch unless Name is ZoneID or below it.
// Only meaningful for providers whose zone IDs are zone names.
func (c Change) CheckZone() error {
	if !dns.IsSubDomain(dns.Fqdn(c.ZoneID), dns.Fqdn(c.Name)) {
		return fmt.Errorf("%w: %s is not in %s", ErrZoneMismatch, c.FQDN(), c.ZoneID)
	}
	return nil
}

// Provider defines the interface for DNS providers.
// Each provider implementation (Route 53, Cloudflare, RFC 2136, etc.) must satisfy this interface.
type Provider interface {
	// Name returns the provider instance name (e.g., "public-dns").
	Name() string

	// Type returns the provider type (e.g., "route53", "cloudflare").
	Type() string

	// Ping checks connectivity to the provider.
	Ping(ctx context.Context) error

	// Upsert creates the record set if absent or replaces it if present,
	// atomically from the caller's point of view.
	Upsert(ctx context.Context, change Change) error
}

// Fqdn appends a trailing dot to name when it is missing.
func Fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// UnFqdn strips a single trailing dot from name.
func UnFqdn(name string) string {
	return strings.TrimSuffix(name, ".")
}
