package update

import (
	"fmt"
	"net/netip"
	"strings"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// RecordTypeFor returns A for an IPv4 dotted-quad and AAAA for an IPv6
// literal. Anything else, including zoned IPv6 and IPv4-mapped forms, is
// rejected. No resolution is attempted.
func RecordTypeFor(addr string) (provider.RecordType, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q", errInvalidAddress, addr)
	}
	switch {
	case ip.Is4():
		return provider.RecordTypeA, nil
	case ip.Is6() && ip.Zone() == "" && !ip.Is4In6() && strings.Contains(addr, ":"):
		return provider.RecordTypeAAAA, nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidAddress, addr)
	}
}
