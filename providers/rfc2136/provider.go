package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const providerType = "rfc2136"

// updater is the part of dnsupdate.Client the provider drives.
type updater interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, zone string, record dnsupdate.Record) error
}

// Provider sends Dynamic DNS UPDATE messages to an authoritative server
// (BIND, Knot, PowerDNS, Windows DNS, ...).
type Provider struct {
	name   string
	client updater
	logger *slog.Logger
}

type ProviderOption func(*Provider)

func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds the provider around a dnsupdate client. Nothing is sent until
// Ping or Upsert.
func New(name string, config *dnsupdate.Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("rfc2136: config is required")
	}

	p := &Provider{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("provider", name), slog.String("provider_type", providerType))

	client, err := dnsupdate.NewClient(config, dnsupdate.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("rfc2136 %s: %w", name, err)
	}
	p.client = client

	p.logger.Debug("rfc2136 provider ready",
		slog.String("server", config.GetServer()),
		slog.String("default_zone", config.GetZone()),
		slog.Bool("tsig", config.HasTSIG()),
		slog.Bool("tcp", config.UseTCP),
	)
	return p, nil
}

// NewFromMap reads SERVER (required), ZONE, TSIG_KEY_NAME, TSIG_SECRET or
// TSIG_SECRET_FILE, TSIG_ALGORITHM, TSIG_KEY_FILE (a BIND key file in place
// of name and secret), TIMEOUT and USE_TCP.
func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := dnsupdate.LoadConfigFromMap(settings)
	if err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", name, err)
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return providerType }

// Ping queries the SOA of the default zone, or the root when none is set.
func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", classify(p.client.Ping(ctx)))
}

// Upsert replaces the name's A or AAAA RRset with the single new record. The
// change's zone ID is the zone name; empty falls back to ZONE.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	rrType, err := dnsupdate.StringToType(string(change.Type))
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrInvalidChange, err)
	}
	record := dnsupdate.Record{
		Name:  change.FQDN(),
		Type:  rrType,
		TTL:   uint32(change.TTL),
		RData: change.Value,
	}

	if err := p.client.Upsert(ctx, change.ZoneID, record); err != nil {
		return provider.WrapError(p.name, "upsert", classify(err))
	}

	p.logger.Info("record updated",
		slog.String("record", record.Name),
		slog.String("type", record.TypeString()),
		slog.String("value", record.RData),
	)
	return nil
}

// classify tags a dnsupdate error with the matching provider sentinel.
func classify(err error) error {
	var sentinel error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dnsupdate.ErrAuthenticationFailed):
		sentinel = provider.ErrUnauthorized
	case errors.Is(err, dnsupdate.ErrZoneMismatch):
		sentinel = provider.ErrZoneMismatch
	case dnsupdate.IsNetworkError(err):
		sentinel = provider.ErrProviderUnavailable
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

var _ provider.Provider = (*Provider)(nil)
