package dnsmasq

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/sshutil"
)

const providerType = "dnsmasq"

// Provider keeps one address=/name/ip line per name and family in a file
// dnsmasq includes. The zone ID only bounds which names may be written;
// dnsmasq answers with its own local-ttl, so the change TTL is unused.
type Provider struct {
	name   string
	client *Client
	ssh    *sshutil.Client // nil when the file is local
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

// WithClient replaces the file client, skipping the local or SSH setup.
func WithClient(client *Client) ProviderOption {
	return func(p *Provider) { p.client = client }
}

// New builds the provider. When config.SSH is set the file is edited over
// SFTP and the reload runs on the remote host; the connection is opened on
// first use.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, errors.New("dnsmasq: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("provider", name), slog.String("provider_type", providerType))
	if p.client != nil {
		return p, nil
	}

	clientOpts := []ClientOption{WithLogger(p.logger)}
	if config.IsSSHEnabled() {
		conn, err := sshutil.NewClient(config.SSH, sshutil.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("dnsmasq %s: %w", name, err)
		}
		p.ssh = conn
		clientOpts = append(clientOpts,
			WithFileSystem(sshutil.NewSFTPFileSystem(conn, sshutil.WithSFTPLogger(p.logger))),
			WithCommandRunner(sshutil.NewSSHCommandRunner(conn, sshutil.WithCommandLogger(p.logger))),
		)
		p.logger.Info("managing dnsmasq over ssh", slog.String("host", config.SSH.Address()), slog.String("file", config.ConfigFilePath()))
	}

	p.client = NewClient(config.ConfigDir, config.ConfigFile, config.ReloadCommand, clientOpts...)
	return p, nil
}

// NewFromMap reads CONFIG_DIR, CONFIG_FILE, RELOAD_COMMAND and, for remote
// hosts, the SSH_* keys.
func NewFromMap(name string, settings map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, settings)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return providerType }

// Ping checks the config directory can be reached.
func (p *Provider) Ping(ctx context.Context) error {
	return provider.WrapError(p.name, "ping", classify(p.client.Ping(ctx)))
}

// Upsert rewrites the name's line for the change's family and reloads
// dnsmasq if the file changed.
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
		return provider.WrapError(p.name, "upsert", classify(err))
	}

	p.logger.Info("dnsmasq address set",
		slog.String("record", host),
		slog.String("type", string(change.Type)),
		slog.String("value", addr.String()),
	)
	return nil
}

// Close drops the SSH connection, if any.
func (p *Provider) Close() error {
	if p.ssh == nil {
		return nil
	}
	return p.ssh.Close()
}

// classify tags file and transport errors: credential and permission
// failures are unauthorized, everything else is treated as unavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	sentinel := provider.ErrProviderUnavailable
	if errors.Is(err, sshutil.ErrAuthenticationFailed) || errors.Is(err, sshutil.ErrHostKeyMismatch) || errors.Is(err, fs.ErrPermission) {
		sentinel = provider.ErrUnauthorized
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
