package sshutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/ssh"
)

// maxOutput caps how much command output is kept for error messages.
const maxOutput = 4 << 10

// CommandRunner runs a shell command and fails on a non-zero exit.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// CommandError is returned when a remote command exits non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string // stderr, or stdout when stderr is empty
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %q: exit code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q: exit code %d: %s", e.Command, e.ExitCode, e.Output)
}

// SSHCommandRunner runs commands in SSH exec sessions on a shared Client.
type SSHCommandRunner struct {
	client *Client
	logger *slog.Logger
}

// CommandRunnerOption configures an SSHCommandRunner.
type CommandRunnerOption func(*SSHCommandRunner)

// WithCommandLogger sets the logger. Nil is ignored.
func WithCommandLogger(logger *slog.Logger) CommandRunnerOption {
	return func(r *SSHCommandRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewSSHCommandRunner(client *Client, opts ...CommandRunnerOption) *SSHCommandRunner {
	r := &SSHCommandRunner{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command remotely. On cancellation the command is sent SIGTERM
// and the session closed; ctx.Err() is returned.
func (r *SSHCommandRunner) Run(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := r.client.Connection(ctx)
	if err != nil {
		return err
	}

	session, err := conn.NewSession()
	if err != nil {
		// EOF here means the transport died under a cached connection.
		if errors.Is(err, io.EOF) {
			r.client.Reset()
		}
		return fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	stdout := &cappedBuffer{max: maxOutput}
	stderr := &cappedBuffer{max: maxOutput}
	session.Stdout, session.Stderr = stdout, stderr

	r.logger.Debug("running remote command", slog.String("command", command))

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		return ctx.Err()
	case err = <-done:
	}

	var exit *ssh.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exit):
		out := strings.TrimSpace(stderr.String())
		if out == "" {
			out = strings.TrimSpace(stdout.String())
		}
		return &CommandError{Command: command, ExitCode: exit.ExitStatus(), Output: out}
	default:
		return fmt.Errorf("running %q: %w", command, err)
	}
}

// cappedBuffer keeps the first max bytes written and discards the rest.
type cappedBuffer struct {
	max int
	b   strings.Builder
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.max - c.b.Len(); room > 0 {
		if len(p) > room {
			c.b.Write(p[:room])
		} else {
			c.b.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.b.String() }

var _ CommandRunner = (*SSHCommandRunner)(nil)
