package pihole

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each Pi-hole API call.
const DefaultTimeout = 15 * time.Second

// Config is one Pi-hole instance.
type Config struct {
	URL      string // web interface base, e.g. http://pi.hole
	Password string // web or app password
	Timeout  time.Duration

	// InsecureSkipVerify accepts the self-signed certificate Pi-hole
	// generates for its HTTPS listener.
	InsecureSkipVerify bool
}

func (c *Config) Validate() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, errors.New("URL is required"))
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("URL must start with http:// or https:// and name a host, got %q", c.URL))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("PASSWORD (or PASSWORD_FILE) is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("TIMEOUT must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pihole: %w", err)
	}
	return nil
}

// LoadConfigFromMap reads URL, PASSWORD or PASSWORD_FILE, TIMEOUT and
// INSECURE_SKIP_VERIFY.
func LoadConfigFromMap(instanceName string, settings map[string]string) (*Config, error) {
	cfg, err := parseSettings(settings)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}
	return cfg, nil
}

func parseSettings(settings map[string]string) (*Config, error) {
	cfg := &Config{
		URL:      strings.TrimRight(settings["URL"], "/"),
		Password: settings["PASSWORD"],
		Timeout:  DefaultTimeout,
	}

	if path := settings["PASSWORD_FILE"]; cfg.Password == "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading PASSWORD_FILE: %w", err)
		}
		cfg.Password = strings.TrimSpace(string(data))
	}

	if v := settings["TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TIMEOUT %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	if v := settings["INSECURE_SKIP_VERIFY"]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("INSECURE_SKIP_VERIFY %q: %w", v, err)
		}
		cfg.InsecureSkipVerify = skip
	}
	return cfg, nil
}
