package webhook

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by LoadConfigFromMap.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// Config holds webhook-specific configuration.
type Config struct {
	URL     string // endpoint base; /ping and /upsert are appended
	Timeout time.Duration

	// AuthToken is sent as "Authorization: Bearer <token>", or verbatim in
	// AuthHeader when that is set.
	AuthHeader string
	AuthToken  string

	// SigningSecret enables the X-Ddnsweaver-Signature header.
	SigningSecret string

	Retries    int           // extra attempts after the first
	RetryDelay time.Duration // doubled per attempt
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	switch {
	case c.URL == "":
		errs = append(errs, "URL is required")
	case !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://"):
		errs = append(errs, "URL must start with http:// or https://")
	}
	if c.AuthHeader != "" && c.AuthToken == "" {
		errs = append(errs, "AUTH_TOKEN is required when AUTH_HEADER is set")
	}
	if c.Timeout < 0 {
		errs = append(errs, "TIMEOUT must be non-negative")
	}
	if c.Retries < 0 {
		errs = append(errs, "RETRIES must be non-negative")
	}
	if c.RetryDelay < 0 {
		errs = append(errs, "RETRY_DELAY must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("webhook config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// authenticated reports whether requests carry a token or a signature.
func (c *Config) authenticated() bool {
	return c.AuthToken != "" || c.SigningSecret != ""
}

// LoadConfigFromMap creates a Config from provider settings.
//
// Required keys: URL
// Optional keys: TIMEOUT, AUTH_HEADER, AUTH_TOKEN[_FILE],
// SIGNING_SECRET[_FILE], RETRIES, RETRY_DELAY
func LoadConfigFromMap(instanceName string, m map[string]string) (*Config, error) {
	config := &Config{
		URL:        m["URL"],
		AuthHeader: m["AUTH_HEADER"],
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}

	var err error
	if config.AuthToken, err = secretValue(m, "AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if config.SigningSecret, err = secretValue(m, "SIGNING_SECRET"); err != nil {
		return nil, err
	}

	if v := m["TIMEOUT"]; v != "" {
		if config.Timeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", v, err)
		}
	}
	if v := m["RETRIES"]; v != "" {
		if config.Retries, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid RETRIES value %q: %w", v, err)
		}
	}
	if v := m["RETRY_DELAY"]; v != "" {
		if config.RetryDelay, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid RETRY_DELAY value %q: %w", v, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}
	return config, nil
}

// secretValue returns m[key], or the trimmed contents of the file named by
// m[key+"_FILE"].
func secretValue(m map[string]string, key string) (string, error) {
	if v := m[key]; v != "" {
		return v, nil
	}
	path := m[key+"_FILE"]
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s_FILE: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}
