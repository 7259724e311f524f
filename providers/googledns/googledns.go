// Package googledns implements the provider interface for Google Cloud DNS.
//
// A credential's zone_id is the managed zone name. Each upsert is one
// changes.create call that deletes the current RRset for the name and type
// (when present) and adds the new one, so Cloud DNS applies it atomically.
package googledns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	dns "google.golang.org/api/dns/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// Config holds Google Cloud DNS provider configuration.
type Config struct {
	// Project is the GCP project that owns the managed zones (required).
	Project string

	// CredentialsFile is a service account JSON key. When empty, Application
	// Default Credentials are used.
	CredentialsFile string

	// Endpoint overrides the API base URL.
	Endpoint string
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.Project == "" {
		return provider.ErrConfigMissing("PROJECT")
	}
	return nil
}

// Provider implements provider.Provider for Google Cloud DNS.
type Provider struct {
	name       string
	project    string
	svc        *dns.Service
	httpClient *http.Client
	logger     *slog.Logger
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient supplies an already authorized HTTP client and skips
// credential discovery.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// New creates a new Google Cloud DNS provider instance.
func New(ctx context.Context, name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:    name,
		project: config.Project,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		client, err := authorizedClient(ctx, config.CredentialsFile)
		if err != nil {
			return nil, err
		}
		p.httpClient = client
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(p.httpClient)}
	if config.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(config.Endpoint))
	}

	svc, err := dns.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloud dns service: %w", err)
	}
	p.svc = svc

	return p, nil
}

// authorizedClient returns an OAuth2 client for the Cloud DNS read-write scope.
func authorizedClient(ctx context.Context, credentialsFile string) (*http.Client, error) {
	if credentialsFile == "" {
		client, err := google.DefaultClient(ctx, dns.NdevClouddnsReadwriteScope)
		if err != nil {
			return nil, fmt.Errorf("finding default google credentials: %w", err)
		}
		return client, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading service account file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, dns.NdevClouddnsReadwriteScope)
	if err != nil {
		return nil, provider.ErrConfigInvalid("CREDENTIALS_FILE", credentialsFile, err.Error())
	}
	return conf.Client(ctx), nil
}

// NewFromMap creates a Google Cloud DNS provider from a configuration map.
// Keys: PROJECT (required), CREDENTIALS_FILE, ENDPOINT.
func NewFromMap(name string, config map[string]string, opts ...ProviderOption) (*Provider, error) {
	return New(context.Background(), name, &Config{
		Project:         config["PROJECT"],
		CredentialsFile: config["CREDENTIALS_FILE"],
		Endpoint:        config["ENDPOINT"],
	}, opts...)
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "googledns".
func (p *Provider) Type() string { return "googledns" }

// Ping lists at most one managed zone.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.svc.ManagedZones.List(p.project).MaxResults(1).Context(ctx).Do()
	return provider.WrapError(p.name, "ping", classify(err))
}

// Upsert replaces the RRset for the change's name and type.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	addr, err := change.Addr()
	if err != nil {
		return err
	}

	name := change.FQDN()
	rrType := string(change.Type)

	existing, err := p.svc.ResourceRecordSets.List(p.project, change.ZoneID).
		Name(name).
		Type(rrType).
		Context(ctx).
		Do()
	if err != nil {
		return provider.WrapError(p.name, "upsert", classify(err))
	}

	dnsChange := &dns.Change{
		Additions: []*dns.ResourceRecordSet{{
			Name:    name,
			Type:    rrType,
			Ttl:     int64(change.TTL),
			Rrdatas: []string{addr.String()},
		}},
	}
	for _, rrset := range existing.Rrsets {
		if rrset.Name == name && rrset.Type == rrType {
			dnsChange.Deletions = append(dnsChange.Deletions, rrset)
		}
	}

	result, err := p.svc.Changes.Create(p.project, change.ZoneID, dnsChange).Context(ctx).Do()
	if err != nil {
		return provider.WrapError(p.name, "upsert", classify(err))
	}

	p.logger.Info("upserted record",
		slog.String("provider", p.name),
		slog.String("managed_zone", change.ZoneID),
		slog.String("name", name),
		slog.String("type", rrType),
		slog.String("value", addr.String()),
		slog.Int("replaced", len(dnsChange.Deletions)),
		slog.String("change_id", result.Id),
		slog.String("status", result.Status),
	)
	return nil
}

// classify attaches the provider sentinel matching a Cloud DNS API error.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", provider.ErrZoneMismatch, err)
	case apiErr.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", provider.ErrInvalidChange, err)
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	default:
		return err
	}
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)
