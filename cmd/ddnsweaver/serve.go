package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/api"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/config"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/health"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/update"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/cloudflare"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/dnsmasq"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/googledns"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/pihole"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/rfc2136"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/route53"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/technitium"
	"gitlab.bluewillows.net/root/ddnsweaver/providers/webhook"
)

// shutdownTimeout bounds how long in-flight updates may take after a signal.
const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the update service",
		Long: `Run the HTTP update endpoint and the health/metrics server.

Configuration comes from DDNSWEAVER_* environment variables and an optional
YAML or TOML file (--config or DDNSWEAVER_CONFIG). Environment variables take
precedence over the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadWithFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := setupLogger(os.Stdout, cfg.LogLevel(), cfg.LogFormat())
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("ddnsweaver starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Bool("dry_run", cfg.DryRun()),
	)

	credStore, storeCloser, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer closeQuietly(logger, "credential store", storeCloser)

	dns, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := dns.(io.Closer); ok {
		defer closeQuietly(logger, "provider", c)
	}

	handler := update.New(credStore, dns,
		update.WithLogger(logger),
		update.WithTTL(cfg.TTL()),
		update.WithMetrics(metrics.Prometheus{}),
		update.WithDryRun(cfg.DryRun()),
	)

	srvCfg := cfg.Server()
	apiServer := api.NewServer(srvCfg.ListenAddr, srvCfg.UpdatePath,
		api.NewHandler(handler,
			api.WithRequestTimeout(srvCfg.RequestTimeout),
			api.WithSourceResolver(api.NewSourceResolver(srvCfg.TrustedProxies)),
			api.WithHandlerLogger(logger),
		),
		api.WithLogger(logger),
	)

	var healthServer *health.Server
	if srvCfg.HealthPort > 0 {
		healthServer = health.New(srvCfg.HealthPort,
			health.WithLogger(logger),
			health.WithVersion(Version),
		)
		if p, ok := credStore.(store.Pinger); ok {
			healthServer.RegisterChecker("store", p.Ping)
		}
		healthServer.RegisterChecker("provider:"+dns.Name(), dns.Ping)
	} else {
		logger.Info("health server disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(apiServer.ListenAndServe)
	if healthServer != nil {
		g.Go(healthServer.ListenAndServe)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("update api shutdown: %w", err))
		}
		if healthServer != nil {
			if err := healthServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ddnsweaver shutdown complete")
	return nil
}

// newRegistry registers every built-in provider type.
func newRegistry(logger *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry(logger)
	registry.RegisterFactory("route53", route53.Factory())
	registry.RegisterFactory("cloudflare", cloudflare.Factory())
	registry.RegisterFactory("rfc2136", rfc2136.Factory())
	registry.RegisterFactory("googledns", googledns.Factory())
	registry.RegisterFactory("technitium", technitium.Factory())
	registry.RegisterFactory("webhook", webhook.Factory())
	registry.RegisterFactory("dnsmasq", dnsmasq.Factory())
	registry.RegisterFactory("pihole", pihole.Factory())
	return registry
}

func newProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	pc := cfg.Provider()
	p, err := newRegistry(logger).Create(pc.Name, pc.Type, pc.Settings)
	if err != nil {
		return nil, fmt.Errorf("creating DNS provider: %w", err)
	}
	return p, nil
}

func closeQuietly(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", slog.String("component", what), slog.String("error", err.Error()))
	}
}
