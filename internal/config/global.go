package config

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// Configuration defaults.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultListenAddr     = ":8080"
	DefaultUpdatePath     = "/update"
	DefaultHealthPort     = 8081
	DefaultRequestTimeout = 10 * time.Second
	DefaultTTL            = provider.DefaultTTL
	DefaultStoreType      = "dynamodb"
	DefaultProviderType   = "route53"
)

func defaultSettings() *settings {
	return &settings{
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		ListenAddr:       DefaultListenAddr,
		UpdatePath:       DefaultUpdatePath,
		HealthPort:       DefaultHealthPort,
		RequestTimeout:   DefaultRequestTimeout,
		TTL:              DefaultTTL,
		StoreType:        DefaultStoreType,
		ProviderType:     DefaultProviderType,
		ProviderSettings: make(map[string]string),
	}
}

// applyEnv overrides s with every DDNSWEAVER_* variable that is set.
// Environment variables always take precedence over file config.
func applyEnv(s *settings) []string {
	var errs []string

	if v := getEnv(EnvPrefix + "LOG_LEVEL"); v != "" {
		s.LogLevel = strings.ToLower(v)
	}
	if v := getEnv(EnvPrefix + "LOG_FORMAT"); v != "" {
		s.LogFormat = strings.ToLower(v)
	}
	if v := getEnv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := getEnv(EnvPrefix + "UPDATE_PATH"); v != "" {
		s.UpdatePath = v
	}

	if v := getEnv(EnvPrefix + "HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sHEALTH_PORT: invalid integer %q", EnvPrefix, v))
		} else {
			s.HealthPort = port
		}
	}

	if v := getEnv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Sprintf("%sREQUEST_TIMEOUT: invalid duration %q (use format like 10s, 1m)", EnvPrefix, v))
		} else {
			s.RequestTimeout = d
		}
	}

	if v := getEnv(EnvPrefix + "TTL"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sTTL: invalid integer %q", EnvPrefix, v))
		} else {
			s.TTL = ttl
		}
	}

	if v := getEnv(EnvPrefix + "TRUSTED_PROXIES"); v != "" {
		prefixes, err := parseTrustedProxies(strings.Split(v, ","))
		if err != nil {
			errs = append(errs, EnvPrefix+"TRUSTED_PROXIES: "+err.Error())
		} else {
			s.TrustedProxies = prefixes
		}
	}

	if v := getEnv(EnvPrefix + "DRY_RUN"); v != "" {
		s.DryRun = parseBool(v, s.DryRun)
	}

	if v := getEnv(EnvPrefix + "STORE_TYPE"); v != "" {
		s.StoreType = strings.ToLower(v)
	}
	// DATABASE is the table variable of earlier deployments.
	if v := getEnv("DATABASE"); v != "" {
		s.StoreTable = v
	}
	if v := getEnv(EnvPrefix + "STORE_TABLE"); v != "" {
		s.StoreTable = v
	}
	if v := getEnv(EnvPrefix + "STORE_REGION"); v != "" {
		s.StoreRegion = v
	}
	if v := getEnv(EnvPrefix + "STORE_PATH"); v != "" {
		s.StorePath = v
	}

	if v := getEnv(EnvPrefix + "PROVIDER_TYPE"); v != "" {
		s.ProviderType = strings.ToLower(v)
	}
	if v := getEnv(EnvPrefix + "PROVIDER_NAME"); v != "" {
		s.ProviderName = v
	}
	for k, v := range providerEnvSettings() {
		s.ProviderSettings[k] = v
	}

	return errs
}

// parseTrustedProxies accepts CIDR prefixes and bare addresses.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", e)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", e)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
