package dnsupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

var (
	ErrNotConfigured = errors.New("dnsupdate client is not configured")
	ErrNoZone        = errors.New("no zone given and no default zone configured")

	// ErrConnectionFailed wraps transport errors talking to the server.
	ErrConnectionFailed = errors.New("connection to dns server failed")

	// ErrAuthenticationFailed covers NOTAUTH, REFUSED and responses whose
	// TSIG does not verify.
	ErrAuthenticationFailed = errors.New("tsig authentication failed")

	ErrZoneMismatch  = errors.New("record name does not match zone")
	ErrServerFailure = errors.New("dns server failure")
	ErrUpdateFailed  = errors.New("dns update failed")
)

// Client sends RFC 2136 UPDATE messages to one server.
type Client struct {
	config *Config
	tsig   *TSIG
	logger *slog.Logger

	udp, tcp *dns.Client

	// mu serialises updates so two changes to the same RRset cannot
	// interleave on the server.
	mu sync.Mutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient validates config and prepares the transports. Nothing is sent.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, ErrNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	tsig, err := TSIGFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid tsig configuration: %w", err)
	}

	c := &Client{
		config: config,
		tsig:   tsig,
		logger: slog.Default(),
		udp:    &dns.Client{Net: "udp", Timeout: config.GetTimeout()},
		tcp:    &dns.Client{Net: "tcp", Timeout: config.GetTimeout()},
	}
	tsig.ApplyToClient(c.udp)
	tsig.ApplyToClient(c.tcp)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping asks for an SOA. With a default zone the answer must be NOERROR;
// without one any reply proves the server is up.
func (c *Client) Ping(ctx context.Context) error {
	zone := c.config.GetZone()

	q := new(dns.Msg)
	q.SetQuestion(zone, dns.TypeSOA)
	if zone == "" {
		q.SetQuestion(".", dns.TypeSOA)
	}
	q.RecursionDesired = false

	resp, err := c.exchange(ctx, q)
	if err != nil {
		return err
	}
	if zone != "" && resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("%w: SOA %s: %s", ErrConnectionFailed, zone, dns.RcodeToString[resp.Rcode])
	}
	return nil
}

// Upsert replaces the RRset at the record's name and type with record alone.
// The delete and the add travel in one UPDATE, so the server applies both or
// neither. An empty zone selects the configured one.
func (c *Client) Upsert(ctx context.Context, zone string, record Record) error {
	zone, err := c.resolveZone(zone)
	if err != nil {
		return err
	}
	rr, err := record.ToRR()
	if err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	owner := rr.Header().Name
	if !dns.IsSubDomain(zone, owner) {
		return fmt.Errorf("%w: %s is outside %s", ErrZoneMismatch, owner, zone)
	}

	m := new(dns.Msg)
	m.SetUpdate(zone)
	m.RemoveRRset([]dns.RR{rr})
	m.Insert([]dns.RR{rr})
	c.tsig.ApplyToMessage(m)

	log := c.logger.With(
		slog.String("zone", zone),
		slog.String("name", owner),
		slog.String("type", record.TypeString()),
	)
	log.Debug("sending dns update", slog.String("rdata", record.RData))

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.exchange(ctx, m)
	if err != nil {
		return err
	}
	if err := RcodeToError(resp.Rcode); err != nil {
		return err
	}

	log.Debug("dns update applied")
	return nil
}

func (c *Client) resolveZone(zone string) (string, error) {
	if zone == "" {
		if zone = c.config.GetZone(); zone == "" {
			return "", ErrNoZone
		}
	}
	if _, ok := dns.IsDomainName(zone); !ok {
		return "", fmt.Errorf("%w: invalid zone %q", ErrZoneMismatch, zone)
	}
	return dns.Fqdn(strings.ToLower(zone)), nil
}

// exchange sends m over the configured transport. A truncated UDP reply is
// retried over TCP.
func (c *Client) exchange(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	server := c.config.GetServer()

	transport := c.udp
	if c.config.UseTCP {
		transport = c.tcp
	}

	resp, _, err := transport.ExchangeContext(ctx, m, server)
	if err == nil && resp.Truncated && transport == c.udp {
		c.logger.Debug("truncated reply, retrying over tcp", slog.String("server", server))
		resp, _, err = c.tcp.ExchangeContext(ctx, m, server)
	}
	if err != nil {
		return nil, transportError(server, err)
	}
	return resp, nil
}

func transportError(server string, err error) error {
	switch {
	case errors.Is(err, dns.ErrSig), errors.Is(err, dns.ErrTime), errors.Is(err, dns.ErrKeyAlg), errors.Is(err, dns.ErrSecret):
		return fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, server, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, server, err)
	}
}

// RcodeToError maps an UPDATE response code to an error; NOERROR is nil.
func RcodeToError(rcode int) error {
	text := dns.RcodeToString[rcode]
	switch rcode {
	case dns.RcodeSuccess:
		return nil
	case dns.RcodeNotAuth, dns.RcodeRefused:
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, text)
	case dns.RcodeNotZone:
		return fmt.Errorf("%w: %s", ErrZoneMismatch, text)
	case dns.RcodeServerFailure:
		return fmt.Errorf("%w: %s", ErrServerFailure, text)
	default:
		return fmt.Errorf("%w: %s", ErrUpdateFailed, text)
	}
}

// IsNetworkError reports whether err came from the transport or a failing
// server, either of which may clear on retry.
func IsNetworkError(err error) bool {
	if errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrServerFailure) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
