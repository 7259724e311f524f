package sshutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrAuthenticationFailed = errors.New("ssh authentication failed")
	ErrConnectionTimeout    = errors.New("ssh connection timed out")
	ErrHostKeyMismatch      = errors.New("ssh host key verification failed")
)

// Client holds one SSH connection, dialed on first use and again after Reset.
// It is safe for concurrent use.
type Client struct {
	config *Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *ssh.Client
	stop context.CancelFunc // stops the keepalive loop of conn
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient validates config. Nothing is dialed until Connection.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("sshutil: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("sshutil: %w", err)
	}

	c := &Client{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connection returns the shared connection, dialing when there is none.
// Callers must not close it; use Reset or Close.
func (c *Client) Connection(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if every := c.config.GetKeepaliveInterval(); every > 0 {
		kctx, stop := context.WithCancel(context.Background())
		c.stop = stop
		go c.keepalive(kctx, conn, every)
	}

	c.logger.Info("ssh connected",
		slog.String("address", c.config.Address()),
		slog.String("user", c.config.User),
	)
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}
	verify, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	addr := c.config.Address()
	timeout := c.config.GetTimeout()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrConnectionTimeout, addr, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	// The handshake gets whatever is left of the dial budget.
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            auth,
		HostKeyCallback: verify,
		Timeout:         timeout,
	})
	if err != nil {
		_ = raw.Close()
		return nil, classifyHandshake(addr, err)
	}
	_ = raw.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyHandshake maps handshake failures onto the package sentinels.
func classifyHandshake(addr string, err error) error {
	var (
		keyErr *knownhosts.KeyError
		netErr net.Error
		msg    = err.Error()
	)
	switch {
	case errors.Is(err, ErrHostKeyMismatch):
		return err
	case errors.As(err, &keyErr), strings.Contains(msg, "knownhosts:"), strings.Contains(msg, ErrHostKeyMismatch.Error()):
		return fmt.Errorf("%w: %s: %w", ErrHostKeyMismatch, addr, err)
	case isAuthError(err):
		return fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, addr, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %w", ErrConnectionTimeout, addr, err)
	default:
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
}

// Reset drops the connection so the next Connection call redials. Callers use
// it after an operation fails on a broken transport.
func (c *Client) Reset() {
	_ = c.Close()
}

// Close closes the connection if there is one. It may be called repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.logger.Debug("ssh connection closed", slog.String("address", c.config.Address()))
	return err
}

// authMethods returns public keys first, then the password.
func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer

	if path := c.config.KeyFile; path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", path, err)
		}
		s, err := c.signer(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", path, err)
		}
		signers = append(signers, s)
	}
	if c.config.KeyData != "" {
		s, err := c.signer([]byte(c.config.KeyData))
		if err != nil {
			return nil, fmt.Errorf("parsing key data: %w", err)
		}
		signers = append(signers, s)
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no authentication methods configured")
	}
	return methods, nil
}

func (c *Client) signer(pem []byte) (ssh.Signer, error) {
	if c.config.KeyPassphrase == "" {
		return ssh.ParsePrivateKey(pem)
	}
	return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(c.config.KeyPassphrase))
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case c.config.KnownHostsFile != "":
		cb, err := knownhosts.New(c.config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", c.config.KnownHostsFile, err)
		}
		return cb, nil
	case c.config.HostKeyFingerprint != "":
		return pinnedHostKey(c.config.HostKeyFingerprint), nil
	default:
		c.logger.Warn("ssh host key not verified", slog.String("host", c.config.Host))
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly configured
	}
}

// pinnedHostKey accepts only a server key whose SHA256 fingerprint, as printed
// by ssh-keygen -lf, equals want.
func pinnedHostKey(want string) ssh.HostKeyCallback {
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		if got := ssh.FingerprintSHA256(key); got != want {
			return fmt.Errorf("%w: %s presented %s, pinned %s", ErrHostKeyMismatch, hostname, got, want)
		}
		return nil
	}
}

// keepalive pings conn every interval and drops it from the client on the
// first failure so the next Connection call redials.
func (c *Client) keepalive(ctx context.Context, conn *ssh.Client, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
		if err == nil {
			continue
		}
		c.logger.Warn("ssh keepalive failed",
			slog.String("address", c.config.Address()),
			slog.Any("error", err),
		)

		c.mu.Lock()
		if c.conn == conn {
			_ = c.dropLocked()
		}
		c.mu.Unlock()
		return
	}
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unable to authenticate", "no supported methods", "permission denied"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
