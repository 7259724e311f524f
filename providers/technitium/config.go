package technitium

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each API call.
const DefaultTimeout = 30 * time.Second

// Config holds Technitium-specific configuration.
type Config struct {
	URL     string // e.g. http://dns:5380
	Token   string
	Timeout time.Duration

	InsecureSkipVerify bool
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var problems []string

	switch {
	case c.URL == "":
		problems = append(problems, "URL is required")
	case !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://"):
		problems = append(problems, "URL must start with http:// or https://")
	}
	if c.Token == "" {
		problems = append(problems, "TOKEN (or TOKEN_FILE) is required")
	}
	if c.Timeout < 0 {
		problems = append(problems, "TIMEOUT must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("technitium: %s", strings.Join(problems, "; "))
}

// LoadConfigFromMap reads URL, TOKEN or TOKEN_FILE, TIMEOUT and
// INSECURE_SKIP_VERIFY.
func LoadConfigFromMap(instanceName string, m map[string]string) (*Config, error) {
	cfg := &Config{URL: m["URL"], Token: m["TOKEN"], Timeout: DefaultTimeout}

	if path := m["TOKEN_FILE"]; path != "" && cfg.Token == "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("configuration for %s: reading TOKEN_FILE: %w", instanceName, err)
		}
		cfg.Token = strings.TrimSpace(string(b))
	}
	if v := m["TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("configuration for %s: TIMEOUT %q: %w", instanceName, v, err)
		}
		cfg.Timeout = d
	}
	if v := m["INSECURE_SKIP_VERIFY"]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("configuration for %s: INSECURE_SKIP_VERIFY %q: %w", instanceName, v, err)
		}
		cfg.InsecureSkipVerify = skip
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}
	return cfg, nil
}
