// Package config handles loading and validation of ddnsweaver configuration
// from environment variables and an optional YAML or TOML file.
package config

import (
	"maps"
	"net/netip"
	"slices"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/store"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "DDNSWEAVER_"

// Config is the loaded configuration. It is built once by Load and never
// modified; accessors return copies.
type Config struct {
	s settings
}

// settings is the mutable form used while loading.
type settings struct {
	LogLevel  string
	LogFormat string

	ListenAddr     string
	UpdatePath     string
	HealthPort     int
	RequestTimeout time.Duration
	TrustedProxies []netip.Prefix

	TTL    int
	DryRun bool

	StoreType   string
	StoreTable  string
	StoreRegion string
	StorePath   string

	ProviderName     string
	ProviderType     string
	ProviderSettings map[string]string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr     string
	UpdatePath     string
	HealthPort     int
	RequestTimeout time.Duration
	TrustedProxies []netip.Prefix
}

// ProviderConfig selects the DNS provider and carries its settings keyed by
// upper-case name (e.g. "TOKEN", "ZONE").
type ProviderConfig struct {
	Name     string
	Type     string
	Settings map[string]string
}

// LogLevel returns debug, info, warn or error.
func (c *Config) LogLevel() string { return c.s.LogLevel }

// LogFormat returns json or text.
func (c *Config) LogFormat() string { return c.s.LogFormat }

// TTL returns the TTL written with each address record.
func (c *Config) TTL() int { return c.s.TTL }

// DryRun reports whether DNS changes are logged instead of applied.
func (c *Config) DryRun() bool { return c.s.DryRun }

// Server returns the listener settings.
func (c *Config) Server() ServerConfig {
	return ServerConfig{
		ListenAddr:     c.s.ListenAddr,
		UpdatePath:     c.s.UpdatePath,
		HealthPort:     c.s.HealthPort,
		RequestTimeout: c.s.RequestTimeout,
		TrustedProxies: slices.Clone(c.s.TrustedProxies),
	}
}

// Store returns the credential store settings.
func (c *Config) Store() store.Config {
	return store.Config{
		Type:   c.s.StoreType,
		Table:  c.s.StoreTable,
		Region: c.s.StoreRegion,
		Path:   c.s.StorePath,
	}
}

// Provider returns the DNS provider settings.
func (c *Config) Provider() ProviderConfig {
	return ProviderConfig{
		Name:     c.s.ProviderName,
		Type:     c.s.ProviderType,
		Settings: maps.Clone(c.s.ProviderSettings),
	}
}
