package cloudflare

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is one Cloudflare account.
type Config struct {
	Token   string // API token with Zone.DNS edit permission
	Proxied bool   // create and update records as proxied (orange cloud)
	Timeout time.Duration

	// APIEndpoint replaces DefaultAPIEndpoint, for tests and API gateways.
	APIEndpoint string
}

func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("TOKEN (or TOKEN_FILE) is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("TIMEOUT must not be negative"))
	}
	if e := c.APIEndpoint; e != "" && !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
		errs = append(errs, fmt.Errorf("API_ENDPOINT %q is not an http(s) URL", e))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cloudflare: %w", err)
	}
	return nil
}

// LoadConfigFromMap reads TOKEN or TOKEN_FILE, PROXIED, TIMEOUT and
// API_ENDPOINT.
func LoadConfigFromMap(instanceName string, settings map[string]string) (*Config, error) {
	fail := func(err error) (*Config, error) {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}

	cfg := &Config{
		Token:       strings.TrimSpace(settings["TOKEN"]),
		APIEndpoint: settings["API_ENDPOINT"],
	}
	if path := settings["TOKEN_FILE"]; cfg.Token == "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(fmt.Errorf("reading TOKEN_FILE: %w", err))
		}
		cfg.Token = strings.TrimSpace(string(data))
	}
	if v := settings["PROXIED"]; v != "" {
		proxied, err := parseBool(v)
		if err != nil {
			return fail(err)
		}
		cfg.Proxied = proxied
	}
	if v := settings["TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fail(fmt.Errorf("TIMEOUT %q: %w", v, err))
		}
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	return cfg, nil
}

// parseBool accepts strconv.ParseBool forms plus yes/no and on/off.
func parseBool(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("PROXIED %q is not a boolean", s)
	}
	return v, nil
}
