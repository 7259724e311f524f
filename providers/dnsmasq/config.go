package dnsmasq

import (
	"cmp"
	"fmt"
	"path"
	"strings"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/sshutil"
)

// Defaults match a stock Debian dnsmasq install.
const (
	DefaultConfigDir     = "/etc/dnsmasq.d"
	DefaultConfigFile    = "ddnsweaver.conf"
	DefaultReloadCommand = "systemctl reload dnsmasq"
)

// Config describes where the managed file lives and how dnsmasq is told to
// re-read it.
type Config struct {
	ConfigDir  string
	ConfigFile string // bare file name inside ConfigDir

	// ReloadCommand runs after the file changes. Empty disables reloading.
	ReloadCommand string

	// SSH, when set, moves both the file and the reload to a remote host.
	SSH *sshutil.Config
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.ConfigDir == "" {
		problems = append(problems, "CONFIG_DIR is required")
	}
	switch name := c.ConfigFile; {
	case name == "":
		problems = append(problems, "CONFIG_FILE is required")
	case strings.ContainsRune(name, '/'), name == ".", name == "..":
		problems = append(problems, "CONFIG_FILE must be a file name, not a path")
	}
	if c.SSH != nil {
		if err := c.SSH.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("dnsmasq: %s", strings.Join(problems, "; "))
}

// IsSSHEnabled reports whether the file is managed on a remote host.
func (c *Config) IsSSHEnabled() bool { return c.SSH != nil }

// ConfigFilePath joins ConfigDir and ConfigFile with forward slashes, which
// both the local file system and SFTP accept.
func (c *Config) ConfigFilePath() string {
	return path.Join(c.ConfigDir, c.ConfigFile)
}

// LoadConfigFromMap reads CONFIG_DIR, CONFIG_FILE and RELOAD_COMMAND ("none"
// disables reloading). A non-empty SSH_HOST switches to remote management
// with the remaining SSH_* keys.
func LoadConfigFromMap(instanceName string, m map[string]string) (*Config, error) {
	setting := func(key, fallback string) string {
		return cmp.Or(strings.TrimSpace(m[key]), fallback)
	}

	cfg := &Config{
		ConfigDir:     setting("CONFIG_DIR", DefaultConfigDir),
		ConfigFile:    setting("CONFIG_FILE", DefaultConfigFile),
		ReloadCommand: setting("RELOAD_COMMAND", DefaultReloadCommand),
	}
	if strings.EqualFold(cfg.ReloadCommand, "none") {
		cfg.ReloadCommand = ""
	}

	if setting("SSH_HOST", "") != "" {
		ssh, err := sshutil.LoadConfigFromMap(m, "SSH_")
		if err != nil {
			return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
		}
		cfg.SSH = ssh
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}
	return cfg, nil
}
