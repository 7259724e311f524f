package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// SourceResolver derives the caller's address from a request. Forwarding
// headers are honoured only when the direct peer is a trusted proxy.
type SourceResolver struct {
	trusted []netip.Prefix
}

// NewSourceResolver creates a resolver that trusts forwarding headers from
// peers inside any of the given prefixes.
func NewSourceResolver(trusted []netip.Prefix) *SourceResolver {
	return &SourceResolver{trusted: trusted}
}

// Resolve returns the caller's IP in canonical text form, or "" when no
// usable address is present.
func (s *SourceResolver) Resolve(r *http.Request) string {
	peer, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !s.isTrusted(peer) {
		return peer.String()
	}

	// Walk X-Forwarded-For from the right; the first hop not operated by a
	// trusted proxy is the client.
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			if !s.isTrusted(addr) {
				return addr.String()
			}
		}
	}

	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return peer.String()
}

func (s *SourceResolver) isTrusted(addr netip.Addr) bool {
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseHostPort(hostport string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return parseAddr(host)
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
