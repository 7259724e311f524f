package dnsmasq

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/sshutil"
)

// FileSystem abstracts file operations so the config can live locally or
// on a remote host.
type FileSystem = sshutil.FileSystem

// CommandRunner abstracts running the reload command.
type CommandRunner = sshutil.CommandRunner

// osFileSystem implements FileSystem using the real OS.
type osFileSystem struct{}

func (osFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes to a temporary file in the same directory and renames
// it into place so dnsmasq never reads a partial file.
func (osFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (osFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (osFileSystem) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(name, perm)
}

// osCommandRunner implements CommandRunner using the local shell.
type osCommandRunner struct {
	logger *slog.Logger
}

func (r *osCommandRunner) Run(ctx context.Context, command string) error {
	r.logger.Debug("executing command", slog.String("command", command))
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Client edits the managed dnsmasq config file and triggers reloads.
type Client struct {
	configDir     string
	configFile    string
	reloadCommand string
	logger        *slog.Logger

	mu     sync.Mutex
	fs     FileSystem
	runner CommandRunner
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFileSystem sets the file system the config is read from and written to.
func WithFileSystem(fs FileSystem) ClientOption {
	return func(c *Client) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithCommandRunner sets the runner used for the reload command.
func WithCommandRunner(runner CommandRunner) ClientOption {
	return func(c *Client) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// NewClient creates a new dnsmasq client. Without options it works on the
// local file system and shell.
func NewClient(configDir, configFile, reloadCommand string, opts ...ClientOption) *Client {
	c := &Client{
		configDir:     configDir,
		configFile:    configFile,
		reloadCommand: reloadCommand,
		logger:        slog.Default(),
		fs:            osFileSystem{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = &osCommandRunner{logger: c.logger}
	}
	return c
}

// ConfigFilePath returns the full path to the managed config file.
func (c *Client) ConfigFilePath() string {
	return path.Join(c.configDir, c.configFile)
}

// Ping checks that the config directory exists.
func (c *Client) Ping(_ context.Context) error {
	info, err := c.fs.Stat(c.configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config directory does not exist: %s", c.configDir)
		}
		return fmt.Errorf("checking config directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config path is not a directory: %s", c.configDir)
	}
	return nil
}

// addressPattern matches the dnsmasq address= directive: address=/hostname/ip
var addressPattern = regexp.MustCompile(`^address=/([^/]+)/(.+)$`)

// parseAddressLine returns the hostname and address of an address= line.
// ok is false for comments, other directives, and unparsable addresses.
func parseAddressLine(line string) (hostname string, addr netip.Addr, ok bool) {
	m := addressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(m[2])
	if err != nil {
		return "", netip.Addr{}, false
	}
	return m[1], addr, true
}

// SetAddress makes hostname resolve to addr for addr's family, replacing
// any existing address= line for the same hostname and family. Lines for
// the other family and unrelated lines are preserved. When the file
// already holds exactly this mapping nothing is written or reloaded.
func (c *Client) SetAddress(ctx context.Context, hostname string, addr netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	configPath := c.ConfigFilePath()
	existing, err := c.fs.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	content, changed, err := rewriteAddress(string(existing), hostname, addr)
	if err != nil {
		return err
	}
	if !changed {
		c.logger.Debug("record already current",
			slog.String("hostname", hostname),
			slog.String("address", addr.String()))
		return nil
	}

	if err := c.fs.MkdirAll(c.configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := c.fs.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	c.logger.Debug("wrote record",
		slog.String("path", configPath),
		slog.String("hostname", hostname),
		slog.String("address", addr.String()))

	return c.Reload(ctx)
}

// rewriteAddress returns content with the hostname's address line for
// addr's family set to addr. The new line takes the place of the first
// matching line; further duplicates are dropped.
func rewriteAddress(content, hostname string, addr netip.Addr) (string, bool, error) {
	newLine := fmt.Sprintf("address=/%s/%s", hostname, addr)

	var (
		lines    []string
		replaced bool
		changed  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		host, old, ok := parseAddressLine(line)
		if !ok || !strings.EqualFold(host, hostname) || old.Is4() != addr.Is4() {
			lines = append(lines, line)
			continue
		}
		if replaced {
			changed = true
			continue
		}
		replaced = true
		if strings.TrimSpace(line) != newLine {
			changed = true
		}
		lines = append(lines, newLine)
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("scanning config content: %w", err)
	}

	if !replaced {
		if len(lines) == 0 {
			lines = append(lines, strings.Split(strings.TrimSuffix(fileHeader, "\n"), "\n")...)
		}
		lines = append(lines, newLine)
		changed = true
	}

	return strings.Join(lines, "\n") + "\n", changed, nil
}

const fileHeader = `# Managed by ddnsweaver. Manual edits to address= lines for managed
# hostnames are overwritten on the next update.

`

// Reload runs the configured reload command, if any.
func (c *Client) Reload(ctx context.Context) error {
	if c.reloadCommand == "" {
		return nil
	}
	if err := c.runner.Run(ctx, c.reloadCommand); err != nil {
		return fmt.Errorf("reloading dnsmasq: %w", err)
	}
	return nil
}
