package webhook

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const providerType = "webhook"

// Provider hands each change to an external endpoint. The zone ID is passed
// through as configured; only the receiver knows what it means.
type Provider struct {
	name   string
	client *Client
	logger *slog.Logger
}

type ProviderOption func(*Provider)

// WithProviderLogger sets the logger used by the provider and its client.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New validates config and builds the provider. No request is made.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("webhook: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("provider", name), slog.String("provider_type", providerType))
	p.client = NewClient(config, WithLogger(p.logger))

	if !config.authenticated() {
		p.logger.Warn("webhook requests are neither authenticated nor signed", slog.String("url", config.URL))
	}
	return p, nil
}

// NewFromMap reads the instance settings (URL, AUTH_TOKEN[_FILE],
// AUTH_HEADER, SIGNING_SECRET[_FILE], TIMEOUT, RETRIES, RETRY_DELAY) and calls New.
func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, settings)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return providerType }

// Ping calls GET {URL}/ping.
func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", p.client.Ping(ctx))
}

// Upsert posts the change as a Notification. Names are sent without the
// trailing dot.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	n := Notification{
		ZoneID: change.ZoneID,
		Name:   provider.UnFqdn(change.Name),
		Type:   string(change.Type),
		Value:  change.Value,
		TTL:    change.TTL,
	}
	if err := p.client.Upsert(ctx, n); err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	p.logger.Info("webhook accepted record",
		slog.String("zone_id", n.ZoneID),
		slog.String("record", n.Name),
		slog.String("type", n.Type),
		slog.String("value", n.Value),
	)
	return nil
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

var _ provider.Provider = (*Provider)(nil)
