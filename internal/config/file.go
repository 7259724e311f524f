package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig is the layout of the optional configuration file. The same
// structure is accepted as YAML or TOML.
type FileConfig struct {
	Logging  *FileLoggingConfig  `yaml:"logging,omitempty" toml:"logging"`
	Server   *FileServerConfig   `yaml:"server,omitempty" toml:"server"`
	DNS      *FileDNSConfig      `yaml:"dns,omitempty" toml:"dns"`
	Store    *FileStoreConfig    `yaml:"store,omitempty" toml:"store"`
	Provider *FileProviderConfig `yaml:"provider,omitempty" toml:"provider"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileServerConfig holds listener settings.
type FileServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr,omitempty" toml:"listen_addr"`
	UpdatePath     string   `yaml:"update_path,omitempty" toml:"update_path"`
	HealthPort     *int     `yaml:"health_port,omitempty" toml:"health_port"` // 0 disables
	RequestTimeout string   `yaml:"request_timeout,omitempty" toml:"request_timeout"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty" toml:"trusted_proxies"`
}

// FileDNSConfig holds record settings.
type FileDNSConfig struct {
	TTL    int   `yaml:"ttl,omitempty" toml:"ttl"`
	DryRun *bool `yaml:"dry_run,omitempty" toml:"dry_run"`
}

// FileStoreConfig selects the credential store.
type FileStoreConfig struct {
	Type   string `yaml:"type,omitempty" toml:"type"`
	Table  string `yaml:"table,omitempty" toml:"table"`
	Region string `yaml:"region,omitempty" toml:"region"`
	Path   string `yaml:"path,omitempty" toml:"path"`
}

// FileProviderConfig selects the DNS provider.
type FileProviderConfig struct {
	Name   string            `yaml:"name,omitempty" toml:"name"`
	Type   string            `yaml:"type,omitempty" toml:"type"`
	Config map[string]string `yaml:"config,omitempty" toml:"config"` // Provider-specific settings
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadFile reads a configuration file. Files ending in .toml are parsed as
// TOML, everything else as YAML. ${VAR} references are expanded before
// parsing.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := InterpolateEnvVars(string(data))

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}
	return &cfg, nil
}

// apply copies every value set in the file onto s.
func (c *FileConfig) apply(s *settings) []string {
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			s.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			s.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if c.Server != nil {
		if c.Server.ListenAddr != "" {
			s.ListenAddr = c.Server.ListenAddr
		}
		if c.Server.UpdatePath != "" {
			s.UpdatePath = c.Server.UpdatePath
		}
		if c.Server.HealthPort != nil {
			s.HealthPort = *c.Server.HealthPort
		}
		if c.Server.RequestTimeout != "" {
			if d, err := parsePositiveDuration(c.Server.RequestTimeout); err == nil {
				s.RequestTimeout = d
			} else {
				errs = append(errs, "server.request_timeout: "+err.Error())
			}
		}
		if len(c.Server.TrustedProxies) > 0 {
			prefixes, err := parseTrustedProxies(c.Server.TrustedProxies)
			if err != nil {
				errs = append(errs, "server.trusted_proxies: "+err.Error())
			} else {
				s.TrustedProxies = prefixes
			}
		}
	}

	if c.DNS != nil {
		if c.DNS.TTL != 0 {
			s.TTL = c.DNS.TTL
		}
		if c.DNS.DryRun != nil {
			s.DryRun = *c.DNS.DryRun
		}
	}

	if c.Store != nil {
		if c.Store.Type != "" {
			s.StoreType = strings.ToLower(c.Store.Type)
		}
		if c.Store.Table != "" {
			s.StoreTable = c.Store.Table
		}
		if c.Store.Region != "" {
			s.StoreRegion = c.Store.Region
		}
		if c.Store.Path != "" {
			s.StorePath = c.Store.Path
		}
	}

	if c.Provider != nil {
		if c.Provider.Type != "" {
			s.ProviderType = strings.ToLower(c.Provider.Type)
		}
		if c.Provider.Name != "" {
			s.ProviderName = c.Provider.Name
		}
		for k, v := range c.Provider.Config {
			// Normalize keys to uppercase for consistency with env var loading
			s.ProviderSettings[strings.ToUpper(k)] = v
		}
	}

	return errs
}
