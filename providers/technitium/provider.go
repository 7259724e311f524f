package technitium

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// Provider writes address records to a Technitium server. The change's
// zone_id is the Technitium zone name.
type Provider struct {
	name   string
	client *Client
	logger *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the logger. Nil is ignored.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New validates config and builds the provider.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("technitium: nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	log := p.logger.With(slog.String("provider", name))

	if config.InsecureSkipVerify {
		log.Warn("skipping TLS verification", slog.String("url", config.URL))
	}

	hc := httputil.NewClient(&httputil.ClientConfig{
		Timeout:       config.Timeout,
		TLSSkipVerify: config.InsecureSkipVerify,
		Logger:        log,
	})
	p.client = NewClient(config.URL, config.Token, WithHTTPClient(hc), WithLogger(log))
	return p, nil
}

// NewFromMap loads the config from settings and builds the provider.
func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, settings)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Type() string { return "technitium" }

func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", p.client.Ping(ctx))
}

// Upsert replaces the A or AAAA records at the change's name. Nothing is
// written when the single existing record already matches.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	ip, err := change.Addr()
	if err != nil {
		return err
	}

	zone := provider.UnFqdn(change.ZoneID)
	domain := provider.UnFqdn(change.Name)
	kind := string(change.Type)

	records, err := p.client.Records(ctx, zone, domain)
	switch {
	case errors.Is(err, provider.ErrZoneMismatch), errors.Is(err, provider.ErrUnauthorized):
		return provider.WrapError(p.name, "upsert", err)
	case err != nil:
		// The write below reports anything that matters.
		p.logger.Debug("record lookup failed", slog.String("provider", p.name), slog.Any("error", err))
	case current(records, domain, kind, ip, change.TTL):
		p.logger.Debug("record already current",
			slog.String("provider", p.name),
			slog.String("name", domain),
			slog.String("type", kind),
		)
		return nil
	}

	if err := p.client.SetAddressRecord(ctx, zone, domain, kind, ip.String(), change.TTL); err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	p.logger.Info("upserted record",
		slog.String("provider", p.name),
		slog.String("zone", zone),
		slog.String("name", domain),
		slog.String("type", kind),
		slog.String("value", ip.String()),
		slog.Int("ttl", change.TTL),
	)
	return nil
}

// Factory returns the registry constructor for the "technitium" type.
func Factory() provider.Factory {
	return func(name string, settings map[string]string) (provider.Provider, error) {
		return NewFromMap(name, settings)
	}
}

var _ provider.Provider = (*Provider)(nil)
