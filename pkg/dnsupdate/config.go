package dnsupdate

import (
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Defaults.
const (
	DefaultPort          = 53
	DefaultTimeout       = 10 * time.Second
	DefaultTSIGAlgorithm = dns.HmacSHA256
)

// Config holds RFC 2136 client configuration.
type Config struct {
	// Server is host or host:port; port 53 is assumed when absent.
	Server string

	// Zone is used when a change does not name one.
	Zone string

	// TSIG key. All three are empty for unsigned updates.
	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string

	Timeout time.Duration
	UseTCP  bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	}
	if c.Zone != "" {
		if _, ok := dns.IsDomainName(c.Zone); !ok {
			errs = append(errs, fmt.Sprintf("zone %q is not a valid domain name", c.Zone))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		switch {
		case c.TSIGKeyName == "":
			errs = append(errs, "tsig_key_name is required when using TSIG authentication")
		case c.TSIGSecret == "":
			errs = append(errs, "tsig_secret is required when using TSIG authentication")
		}
		if c.TSIGSecret != "" {
			if _, err := base64.StdEncoding.DecodeString(c.TSIGSecret); err != nil {
				errs = append(errs, "tsig_secret must be base64")
			}
		}
		if _, ok := lookupAlgorithm(c.TSIGAlgorithm); !ok {
			errs = append(errs, fmt.Sprintf("unsupported tsig_algorithm: %s", c.TSIGAlgorithm))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("dnsupdate config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetServer returns Server with the default port filled in.
func (c *Config) GetServer() string {
	if c.Server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(c.Server); err == nil {
		return c.Server
	}
	return net.JoinHostPort(strings.Trim(c.Server, "[]"), strconv.Itoa(DefaultPort))
}

// GetZone returns Zone as a lower-case FQDN, or "".
func (c *Config) GetZone() string {
	if c.Zone == "" {
		return ""
	}
	return dns.Fqdn(strings.ToLower(c.Zone))
}

// GetTimeout returns Timeout or DefaultTimeout.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// GetTSIGAlgorithm returns the algorithm in miekg/dns form, or "" if the
// configured name is unknown.
func (c *Config) GetTSIGAlgorithm() string {
	alg, _ := lookupAlgorithm(c.TSIGAlgorithm)
	return alg
}

// HasTSIG reports whether updates are signed.
func (c *Config) HasTSIG() bool {
	return c.TSIGKeyName != "" && c.TSIGSecret != ""
}

// LoadConfigFromMap creates a Config from provider settings.
//
// Required keys: SERVER
// Optional keys: ZONE, TIMEOUT (duration or seconds), USE_TCP, and the key as
// either TSIG_KEY_FILE (BIND key file) or TSIG_KEY_NAME, TSIG_SECRET
// (or TSIG_SECRET_FILE) and TSIG_ALGORITHM.
func LoadConfigFromMap(m map[string]string) (*Config, error) {
	config := &Config{
		Server:        m["SERVER"],
		Zone:          m["ZONE"],
		TSIGKeyName:   m["TSIG_KEY_NAME"],
		TSIGSecret:    m["TSIG_SECRET"],
		TSIGAlgorithm: m["TSIG_ALGORITHM"],
	}

	if path := m["TSIG_KEY_FILE"]; path != "" {
		if config.TSIGKeyName != "" || config.TSIGSecret != "" {
			return nil, fmt.Errorf("TSIG_KEY_FILE cannot be combined with TSIG_KEY_NAME or TSIG_SECRET")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading TSIG_KEY_FILE: %w", err)
		}
		key, err := ParseKeyFile(data)
		if err != nil {
			return nil, fmt.Errorf("parsing TSIG_KEY_FILE %s: %w", path, err)
		}
		config.TSIGKeyName, config.TSIGSecret, config.TSIGAlgorithm = key.Name, key.Secret, key.Algorithm
	} else if path := m["TSIG_SECRET_FILE"]; path != "" && config.TSIGSecret == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading TSIG_SECRET_FILE: %w", err)
		}
		config.TSIGSecret = strings.TrimSpace(string(data))
	}

	if v := m["TIMEOUT"]; v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", v, err)
		}
		config.Timeout = timeout
	}
	if v := m["USE_TCP"]; v != "" {
		useTCP, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid USE_TCP value %q: %w", v, err)
		}
		config.UseTCP = useTCP
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// parseTimeout accepts a bare number of seconds or a Go duration.
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
