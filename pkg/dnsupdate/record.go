package dnsupdate

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

// Record is an address record for RFC 2136 operations.
type Record struct {
	// Name is the DNS name; it is normalized to FQDN form.
	Name string

	// Type is dns.TypeA or dns.TypeAAAA.
	Type uint16

	// TTL is the time-to-live in seconds.
	TTL uint32

	// RData is the textual IP address.
	RData string
}

// TypeString returns the string representation of the record type.
func (r Record) TypeString() string {
	if name, ok := dns.TypeToString[r.Type]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", r.Type)
}

// ToRR converts the record to a miekg/dns resource record.
func (r Record) ToRR() (dns.RR, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("record name is required")
	}

	addr, err := netip.ParseAddr(r.RData)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", r.RData, err)
	}

	hdr := dns.RR_Header{
		Name:   dns.Fqdn(strings.ToLower(r.Name)),
		Rrtype: r.Type,
		Class:  dns.ClassINET,
		Ttl:    r.TTL,
	}

	switch r.Type {
	case dns.TypeA:
		if !addr.Is4() {
			return nil, fmt.Errorf("A record requires an IPv4 address, got %q", r.RData)
		}
		return &dns.A{Hdr: hdr, A: addr.AsSlice()}, nil
	case dns.TypeAAAA:
		if !addr.Is6() || addr.Is4In6() {
			return nil, fmt.Errorf("AAAA record requires an IPv6 address, got %q", r.RData)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: addr.AsSlice()}, nil
	default:
		return nil, fmt.Errorf("unsupported record type: %s", r.TypeString())
	}
}

// NewARecord creates a new A record.
func NewARecord(name, ip string, ttl uint32) Record {
	return Record{Name: name, Type: dns.TypeA, TTL: ttl, RData: ip}
}

// NewAAAARecord creates a new AAAA record.
func NewAAAARecord(name, ip string, ttl uint32) Record {
	return Record{Name: name, Type: dns.TypeAAAA, TTL: ttl, RData: ip}
}

// StringToType converts "A" or "AAAA" to a DNS type.
func StringToType(s string) (uint16, error) {
	switch strings.ToUpper(s) {
	case "A":
		return dns.TypeA, nil
	case "AAAA":
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("unsupported record type: %s", s)
	}
}
