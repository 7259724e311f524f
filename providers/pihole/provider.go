package pihole

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const providerType = "pihole"

// Provider keeps Pi-hole "local DNS records" (dns.hosts) pointed at the
// client's address. Pi-hole has no zones: the zone ID only limits which names
// may be written, and the change TTL is ignored.
type Provider struct {
	name   string
	client *Client
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

// New builds the provider. The session is opened lazily on first use.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("pihole: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("provider", name), slog.String("provider_type", providerType))

	if config.InsecureSkipVerify {
		p.logger.Warn("tls verification disabled", slog.String("url", config.URL))
	}
	hc := httputil.NewClient(&httputil.ClientConfig{
		Timeout:       config.Timeout,
		TLSSkipVerify: config.InsecureSkipVerify,
		Logger:        p.logger,
	})
	p.client = NewClient(config.URL, config.Password, WithHTTPClient(hc), WithLogger(p.logger))
	return p, nil
}

func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, settings)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return providerType }

// Ping logs in (or reuses the session) to prove URL and password.
func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", p.client.Ping(ctx))
}

// Upsert points the change's name at its address, replacing any entry of the
// same family.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	if err := change.CheckZone(); err != nil {
		return err
	}
	addr, err := change.Addr()
	if err != nil {
		return err
	}

	host := provider.UnFqdn(change.Name)
	if err := p.client.SetAddress(ctx, host, addr); err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	p.logger.Info("local dns record set",
		slog.String("record", host),
		slog.String("type", string(change.Type)),
		slog.String("value", addr.String()),
	)
	return nil
}

// Close ends the API session so it does not count against Pi-hole's
// session limit.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

var _ provider.Provider = (*Provider)(nil)
