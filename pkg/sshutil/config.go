package sshutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHTimeout bounds dialing and the handshake.
	DefaultSSHTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the interval between keepalive requests.
	DefaultKeepaliveInterval = 15 * time.Second
)

// Config holds SSH connection configuration.
type Config struct {
	// Host is the SSH server hostname or IP address (required).
	Host string

	// Port is the SSH server port (default: 22).
	Port int

	// User is the SSH username (required).
	User string

	// KeyFile, KeyData and Password are the supported credentials.
	// At least one must be set. Keys are tried before the password.
	KeyFile       string
	KeyData       string
	KeyPassphrase string
	Password      string

	// Timeout is the connection timeout (default: 30s).
	Timeout time.Duration

	// KeepaliveInterval is the keepalive interval. Negative disables keepalives.
	KeepaliveInterval time.Duration

	// Host key policy, exactly one of: an OpenSSH known_hosts file, a pinned
	// "SHA256:..." fingerprint as printed by ssh-keygen -lf, or no check.
	KnownHostsFile        string
	HostKeyFingerprint    string
	InsecureIgnoreHostKey bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}
	if c.User == "" {
		errs = append(errs, "user is required")
	}
	if c.KeyFile == "" && c.KeyData == "" && c.Password == "" {
		errs = append(errs, "at least one authentication method required (key_file, key_data, or password)")
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}
	switch policies := c.hostKeyPolicies(); {
	case policies == 0:
		errs = append(errs, "a host key policy is required: known_hosts, host_key_fingerprint or insecure_ignore_host_key")
	case policies > 1:
		errs = append(errs, "known_hosts, host_key_fingerprint and insecure_ignore_host_key are mutually exclusive")
	}
	if fp := c.HostKeyFingerprint; fp != "" && !strings.HasPrefix(fp, "SHA256:") {
		errs = append(errs, "host_key_fingerprint must start with SHA256:")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ssh config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) hostKeyPolicies() int {
	n := 0
	for _, set := range []bool{c.KnownHostsFile != "", c.HostKeyFingerprint != "", c.InsecureIgnoreHostKey} {
		if set {
			n++
		}
	}
	return n
}

// Address returns the SSH server address in host:port form.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultSSHTimeout
}

// GetKeepaliveInterval returns the keepalive interval, or zero when disabled.
func (c *Config) GetKeepaliveInterval() time.Duration {
	switch {
	case c.KeepaliveInterval < 0:
		return 0
	case c.KeepaliveInterval == 0:
		return DefaultKeepaliveInterval
	default:
		return c.KeepaliveInterval
	}
}

// LoadConfigFromMap builds a Config from provider settings. Every key is
// looked up with prefix prepended, so a provider can nest SSH settings
// under SSH_ in its own namespace.
//
// Keys: HOST, PORT, USER, KEY_FILE, KEY_DATA, KEY_PASSPHRASE, PASSWORD,
// TIMEOUT (seconds), KEEPALIVE_INTERVAL (seconds, 0 disables),
// KNOWN_HOSTS, HOST_KEY_FINGERPRINT, INSECURE_IGNORE_HOST_KEY.
func LoadConfigFromMap(m map[string]string, prefix string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(m[prefix+key]) }

	config := &Config{
		Host:               get("HOST"),
		Port:               DefaultSSHPort,
		User:               get("USER"),
		KeyFile:            get("KEY_FILE"),
		KeyData:            m[prefix+"KEY_DATA"],
		KeyPassphrase:      m[prefix+"KEY_PASSPHRASE"],
		Password:           m[prefix+"PASSWORD"],
		KnownHostsFile:     get("KNOWN_HOSTS"),
		HostKeyFingerprint: get("HOST_KEY_FINGERPRINT"),
	}

	if v := get("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sPORT value %q: %w", prefix, v, err)
		}
		config.Port = port
	}

	if v := get("TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sTIMEOUT value %q: %w", prefix, v, err)
		}
		config.Timeout = time.Duration(secs) * time.Second
	}

	if v := get("KEEPALIVE_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sKEEPALIVE_INTERVAL value %q: %w", prefix, v, err)
		}
		if secs == 0 {
			config.KeepaliveInterval = -1
		} else {
			config.KeepaliveInterval = time.Duration(secs) * time.Second
		}
	}

	if v := get("INSECURE_IGNORE_HOST_KEY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sINSECURE_IGNORE_HOST_KEY value %q: %w", prefix, v, err)
		}
		config.InsecureIgnoreHostKey = b
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
