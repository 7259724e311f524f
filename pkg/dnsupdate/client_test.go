package dnsupdate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testServer answers on UDP and TCP at the same address and records every
// UPDATE with the transport it arrived on.
type testServer struct {
	addr string

	mu       sync.Mutex
	updates  []*dns.Msg
	nets     []string
	rcode    int
	truncate bool // answer UDP updates with TC set and no data
}

func (s *testServer) received() []*dns.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*dns.Msg(nil), s.updates...)
}

func (s *testServer) transports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.nets...)
}

func (s *testServer) set(fn func(*testServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *testServer) serveDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)

	if r.IsTsig() != nil {
		if w.TsigStatus() != nil {
			m.Rcode = dns.RcodeNotAuth
		}
		tsig := r.Extra[len(r.Extra)-1].(*dns.TSIG)
		m.SetTsig(tsig.Hdr.Name, tsig.Algorithm, 300, time.Now().Unix())
	}

	network := w.RemoteAddr().Network()

	s.mu.Lock()
	switch {
	case r.Opcode == dns.OpcodeUpdate && s.truncate && network == "udp":
		m.Truncated = true
	case r.Opcode == dns.OpcodeUpdate:
		s.updates = append(s.updates, r.Copy())
		s.nets = append(s.nets, network)
		if m.Rcode == dns.RcodeSuccess {
			m.Rcode = s.rcode
		}
	case r.Question[0].Qtype == dns.TypeSOA:
		q := r.Question[0]
		m.Answer = append(m.Answer, &dns.SOA{
			Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 300},
			Ns:   "ns1." + q.Name,
			Mbox: "admin." + q.Name,
		})
		if q.Name != "." && q.Name != "example.com." {
			m.Rcode = dns.RcodeRefused
		}
	}
	s.mu.Unlock()

	_ = w.WriteMsg(m)
}

func startTestServer(t *testing.T, tsigSecret map[string]string) *testServer {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	ln, err := net.Listen("tcp", pc.LocalAddr().String())
	if err != nil {
		_ = pc.Close()
		t.Skipf("tcp port %s unavailable: %v", pc.LocalAddr(), err)
	}

	ts := &testServer{addr: pc.LocalAddr().String(), rcode: dns.RcodeSuccess}
	handler := dns.HandlerFunc(ts.serveDNS)

	for _, srv := range []*dns.Server{
		{PacketConn: pc, Handler: handler, TsigSecret: tsigSecret},
		{Listener: ln, Handler: handler, TsigSecret: tsigSecret},
	} {
		started := make(chan struct{})
		srv.NotifyStartedFunc = func() { close(started) }
		go func() { _ = srv.ActivateAndServe() }()
		<-started
		t.Cleanup(func() { _ = srv.Shutdown() })
	}
	return ts
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	client, err := NewClient(cfg, WithLogger(testLogger))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "zone and server", config: &Config{Server: "ns1.example.com", Zone: "example.com."}},
		{name: "server only", config: &Config{Server: "ns1.example.com"}},
		{
			name:   "tsig",
			config: &Config{Server: "ns1.example.com", TSIGKeyName: "ddnsweaver.", TSIGSecret: "c2VjcmV0", TSIGAlgorithm: "hmac-sha384"},
		},
		{name: "missing server", config: &Config{Zone: "example.com."}, wantErr: true},
		{name: "secret not base64", config: &Config{Server: "ns1", TSIGKeyName: "k.", TSIGSecret: "!!!"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("NewClient() expected error")
				}
				return
			}
			if err != nil || client == nil {
				t.Fatalf("NewClient() = %v, %v", client, err)
			}
		})
	}

	if _, err := NewClient(nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewClient(nil) error = %v, want ErrNotConfigured", err)
	}
}

func TestClientUpsert_ReplacesRRsetInOneMessage(t *testing.T) {
	srv := startTestServer(t, nil)
	client := newTestClient(t, &Config{Server: srv.addr})

	if err := client.Upsert(context.Background(), "Example.com", NewARecord("home.example.com", "203.0.113.7", 60)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	updates := srv.received()
	if len(updates) != 1 {
		t.Fatalf("server received %d updates, want 1", len(updates))
	}
	msg := updates[0]

	if z := msg.Question[0]; z.Name != "example.com." || z.Qtype != dns.TypeSOA {
		t.Errorf("zone section = %v, want example.com. SOA", z)
	}
	if len(msg.Ns) != 2 {
		t.Fatalf("update section has %d RRs, want 2", len(msg.Ns))
	}

	if del := msg.Ns[0].Header(); del.Class != dns.ClassANY || del.Rrtype != dns.TypeA || del.Name != "home.example.com." {
		t.Errorf("first RR = %v, want RRset deletion of home.example.com. A", msg.Ns[0])
	}
	add, ok := msg.Ns[1].(*dns.A)
	if !ok {
		t.Fatalf("second RR = %T, want *dns.A", msg.Ns[1])
	}
	if add.A.String() != "203.0.113.7" || add.Hdr.Ttl != 60 || add.Hdr.Class != dns.ClassINET {
		t.Errorf("inserted RR = %v", add)
	}
	if got := srv.transports(); len(got) != 1 || got[0] != "udp" {
		t.Errorf("transports = %v, want [udp]", got)
	}
}

func TestClientUpsert_AAAAWithDefaultZone(t *testing.T) {
	srv := startTestServer(t, nil)
	client := newTestClient(t, &Config{Server: srv.addr, Zone: "example.net"})

	if err := client.Upsert(context.Background(), "", NewAAAARecord("v6.example.net", "2001:db8::1", 60)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	msg := srv.received()[0]
	if msg.Question[0].Name != "example.net." {
		t.Errorf("zone = %s, want example.net.", msg.Question[0].Name)
	}
	if msg.Ns[0].Header().Rrtype != dns.TypeAAAA {
		t.Errorf("removed type = %d, want AAAA", msg.Ns[0].Header().Rrtype)
	}
	if _, ok := msg.Ns[1].(*dns.AAAA); !ok {
		t.Errorf("inserted RR = %T, want *dns.AAAA", msg.Ns[1])
	}
}

func TestClientUpsert_Transport(t *testing.T) {
	t.Run("tcp configured", func(t *testing.T) {
		srv := startTestServer(t, nil)
		client := newTestClient(t, &Config{Server: srv.addr, Zone: "example.com.", UseTCP: true})

		if err := client.Upsert(context.Background(), "", NewARecord("home.example.com", "203.0.113.7", 60)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if got := srv.transports(); len(got) != 1 || got[0] != "tcp" {
			t.Errorf("transports = %v, want [tcp]", got)
		}
	})

	t.Run("truncated udp retried over tcp", func(t *testing.T) {
		srv := startTestServer(t, nil)
		srv.set(func(s *testServer) { s.truncate = true })
		client := newTestClient(t, &Config{Server: srv.addr, Zone: "example.com."})

		if err := client.Upsert(context.Background(), "", NewARecord("home.example.com", "203.0.113.7", 60)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if got := srv.transports(); len(got) != 1 || got[0] != "tcp" {
			t.Errorf("transports = %v, want [tcp]", got)
		}
	})
}

func TestClientUpsert_TSIG(t *testing.T) {
	const secret = "c2VjcmV0LXNlY3JldC1zZWNyZXQ="
	srv := startTestServer(t, map[string]string{"ddnsweaver.": secret})

	client := newTestClient(t, &Config{
		Server:      srv.addr,
		Zone:        "example.com.",
		TSIGKeyName: "ddnsweaver",
		TSIGSecret:  secret,
	})
	if err := client.Upsert(context.Background(), "", NewARecord("home.example.com", "198.51.100.1", 60)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if srv.received()[0].IsTsig() == nil {
		t.Error("update was not TSIG signed")
	}

	wrong := newTestClient(t, &Config{
		Server:      srv.addr,
		Zone:        "example.com.",
		TSIGKeyName: "ddnsweaver",
		TSIGSecret:  "d3Jvbmc=",
	})
	err := wrong.Upsert(context.Background(), "", NewARecord("home.example.com", "198.51.100.1", 60))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Upsert(wrong key) error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestClientUpsert_Errors(t *testing.T) {
	a := NewARecord("home.example.com", "203.0.113.7", 60)

	tests := []struct {
		name    string
		zone    string
		record  Record
		rcode   int
		wantErr error
	}{
		{name: "refused", zone: "example.com.", record: a, rcode: dns.RcodeRefused, wantErr: ErrAuthenticationFailed},
		{name: "not authorized", zone: "example.com.", record: a, rcode: dns.RcodeNotAuth, wantErr: ErrAuthenticationFailed},
		{name: "not zone", zone: "example.com.", record: a, rcode: dns.RcodeNotZone, wantErr: ErrZoneMismatch},
		{name: "servfail", zone: "example.com.", record: a, rcode: dns.RcodeServerFailure, wantErr: ErrServerFailure},
		{name: "yxrrset", zone: "example.com.", record: a, rcode: dns.RcodeYXRrset, wantErr: ErrUpdateFailed},
		{name: "name outside zone", zone: "example.com.", record: NewARecord("home.example.org", "203.0.113.7", 60), wantErr: ErrZoneMismatch},
		{name: "bad zone", zone: "exa mple..com", record: a, wantErr: ErrZoneMismatch},
		{name: "no zone", record: a, wantErr: ErrNoZone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startTestServer(t, nil)
			srv.set(func(s *testServer) { s.rcode = tt.rcode })
			client := newTestClient(t, &Config{Server: srv.addr})

			if err := client.Upsert(context.Background(), tt.zone, tt.record); !errors.Is(err, tt.wantErr) {
				t.Errorf("Upsert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientUpsert_InvalidRecordNotSent(t *testing.T) {
	srv := startTestServer(t, nil)
	client := newTestClient(t, &Config{Server: srv.addr, Zone: "example.com."})

	if err := client.Upsert(context.Background(), "", NewARecord("home.example.com", "2001:db8::1", 60)); err == nil {
		t.Error("expected error for IPv6 value in A record")
	}
	if n := len(srv.received()); n != 0 {
		t.Errorf("server received %d updates, want 0", n)
	}
}

func TestClientUpsert_ConnectionFailure(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := pc.LocalAddr().String()
	_ = pc.Close()

	client := newTestClient(t, &Config{Server: addr, Zone: "example.com.", Timeout: 200 * time.Millisecond})

	err = client.Upsert(context.Background(), "", NewARecord("home.example.com", "203.0.113.7", 60))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Upsert() error = %v, want ErrConnectionFailed", err)
	}
	if !IsNetworkError(err) {
		t.Error("IsNetworkError() = false, want true")
	}
}

func TestClientPing(t *testing.T) {
	srv := startTestServer(t, nil)

	if err := newTestClient(t, &Config{Server: srv.addr, Zone: "example.com."}).Ping(context.Background()); err != nil {
		t.Errorf("Ping(zone) error = %v", err)
	}
	if err := newTestClient(t, &Config{Server: srv.addr}).Ping(context.Background()); err != nil {
		t.Errorf("Ping(no zone) error = %v", err)
	}
	err := newTestClient(t, &Config{Server: srv.addr, Zone: "example.org."}).Ping(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Ping(unserved zone) error = %v, want ErrConnectionFailed", err)
	}
}

func TestRcodeToError(t *testing.T) {
	if err := RcodeToError(dns.RcodeSuccess); err != nil {
		t.Errorf("RcodeToError(NOERROR) = %v, want nil", err)
	}
	if err := RcodeToError(dns.RcodeServerFailure); !IsNetworkError(err) {
		t.Errorf("SERVFAIL error %v should count as a network error", err)
	}
	if err := RcodeToError(dns.RcodeFormatError); IsNetworkError(err) || !errors.Is(err, ErrUpdateFailed) {
		t.Errorf("FORMERR error = %v, want plain ErrUpdateFailed", err)
	}
}
