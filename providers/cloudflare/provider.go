package cloudflare

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

const providerType = "cloudflare"

// autoTTL is Cloudflare's "automatic" TTL, the only one proxied records take.
const autoTTL = 1

// zoneIDPattern matches a Cloudflare zone identifier; anything else in a
// change's zone ID is taken as a zone name.
var zoneIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

type Provider struct {
	name    string
	proxied bool
	client  *Client
	logger  *slog.Logger

	mu      sync.Mutex
	zoneIDs map[string]string // zone name -> id
}

type ProviderOption func(*Provider)

func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("cloudflare: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:    name,
		proxied: config.Proxied,
		logger:  slog.Default(),
		zoneIDs: map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("provider", name), slog.String("provider_type", providerType))

	clientOpts := []ClientOption{
		WithLogger(p.logger),
		WithHTTPClient(httputil.NewClient(&httputil.ClientConfig{Timeout: config.Timeout, Logger: p.logger})),
	}
	if config.APIEndpoint != "" {
		clientOpts = append(clientOpts, WithAPIEndpoint(config.APIEndpoint))
	}
	p.client = NewClient(config.Token, clientOpts...)
	return p, nil
}

// NewFromMap reads TOKEN or TOKEN_FILE, PROXIED, TIMEOUT and API_ENDPOINT.
func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, settings)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return providerType }

// Ping verifies the API token.
func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", p.client.Ping(ctx))
}

// Upsert edits the record with the change's name and type in place, creating
// it when absent. A record that already matches is left alone. The zone ID
// may be a Cloudflare zone identifier or a zone name.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	zoneID, err := p.zoneID(ctx, change.ZoneID)
	if err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	want := dnsRecord{
		Type:    string(change.Type),
		Name:    provider.UnFqdn(change.Name),
		Content: change.Value,
		TTL:     change.TTL,
		Proxied: p.proxied,
	}
	if p.proxied {
		want.TTL = autoTTL
	}

	have, err := p.client.FindRecord(ctx, zoneID, want.Type, want.Name)
	if err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	log := p.logger.With(
		slog.String("zone_id", zoneID),
		slog.String("record", want.Name),
		slog.String("type", want.Type),
		slog.String("value", want.Content),
	)
	switch {
	case have == nil:
		err = p.client.CreateRecord(ctx, zoneID, want)
	case have.Content == want.Content && have.TTL == want.TTL && have.Proxied == want.Proxied:
		log.Debug("record already current")
		return nil
	default:
		err = p.client.UpdateRecord(ctx, zoneID, have.ID, want)
	}
	if err != nil {
		return provider.WrapError(p.name, "upsert", err)
	}

	log.Info("record updated", slog.Bool("created", have == nil))
	return nil
}

// zoneID returns zone unchanged when it is already an identifier, otherwise
// the cached or looked-up id for the zone name.
func (p *Provider) zoneID(ctx context.Context, zone string) (string, error) {
	if zoneIDPattern.MatchString(zone) {
		return zone, nil
	}

	p.mu.Lock()
	id, ok := p.zoneIDs[zone]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := p.client.GetZoneID(ctx, zone)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.zoneIDs[zone] = id
	p.mu.Unlock()
	return id, nil
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

var _ provider.Provider = (*Provider)(nil)
