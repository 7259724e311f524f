package sshutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
)

// FileSystem is the set of file operations a file-backed provider needs.
// WriteFile must replace the target atomically.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(name string, perm os.FileMode) error
}

// SFTPFileSystem implements FileSystem over SFTP. The session is opened on
// first use and reopened after a transport failure.
type SFTPFileSystem struct {
	client *Client
	logger *slog.Logger

	mu         sync.Mutex
	sftpClient *sftp.Client
}

// SFTPOption is a functional option for configuring the SFTPFileSystem.
type SFTPOption func(*SFTPFileSystem)

// WithSFTPLogger sets a custom logger for SFTP operations.
func WithSFTPLogger(logger *slog.Logger) SFTPOption {
	return func(fs *SFTPFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// NewSFTPFileSystem creates a FileSystem backed by the given SSH client.
func NewSFTPFileSystem(client *Client, opts ...SFTPOption) *SFTPFileSystem {
	fs := &SFTPFileSystem{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *SFTPFileSystem) session() (*sftp.Client, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient != nil {
		return fs.sftpClient, nil
	}

	sshConn, err := fs.client.Connection(context.Background())
	if err != nil {
		return nil, err
	}

	sc, err := sftp.NewClient(sshConn)
	if err != nil {
		fs.client.Reset()
		return nil, fmt.Errorf("creating SFTP client: %w", err)
	}

	fs.sftpClient = sc
	fs.logger.Debug("SFTP session established")
	return sc, nil
}

// check drops the session when err indicates the transport is gone.
func (fs *SFTPFileSystem) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) {
		fs.logger.Warn("SFTP session lost, will reconnect", slog.String("error", err.Error()))
		_ = fs.Close()
		if fs.client != nil {
			fs.client.Reset()
		}
	}
	return err
}

// Close closes the SFTP session. The SSH connection stays open.
func (fs *SFTPFileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient == nil {
		return nil
	}
	err := fs.sftpClient.Close()
	fs.sftpClient = nil
	return err
}

// ReadFile returns the content of the remote file. A missing file reports
// an error satisfying os.IsNotExist.
func (fs *SFTPFileSystem) ReadFile(name string) ([]byte, error) {
	sc, err := fs.session()
	if err != nil {
		return nil, err
	}

	f, err := sc.Open(name)
	if err != nil {
		return nil, fs.check(err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fs.check(fmt.Errorf("reading %s: %w", name, err))
	}
	return data, nil
}

// WriteFile writes data to a temporary sibling and renames it over name.
func (fs *SFTPFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	sc, err := fs.session()
	if err != nil {
		return err
	}

	tmp := path.Join(path.Dir(name), "."+path.Base(name)+".tmp")

	f, err := sc.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fs.check(fmt.Errorf("creating %s: %w", tmp, err))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = sc.Remove(tmp)
		return fs.check(fmt.Errorf("writing %s: %w", tmp, err))
	}
	if err := f.Chmod(perm); err != nil {
		fs.logger.Debug("chmod on temp file failed", slog.String("path", tmp), slog.String("error", err.Error()))
	}
	if err := f.Close(); err != nil {
		_ = sc.Remove(tmp)
		return fs.check(fmt.Errorf("closing %s: %w", tmp, err))
	}

	if err := sc.PosixRename(tmp, name); err == nil {
		return nil
	}

	// Servers without posix-rename refuse to rename over an existing file.
	if err := sc.Remove(name); err != nil && !os.IsNotExist(err) {
		_ = sc.Remove(tmp)
		return fs.check(fmt.Errorf("replacing %s: %w", name, err))
	}
	if err := sc.Rename(tmp, name); err != nil {
		return fs.check(fmt.Errorf("renaming %s: %w", tmp, err))
	}
	return nil
}

// Stat returns file info for the remote path.
func (fs *SFTPFileSystem) Stat(name string) (os.FileInfo, error) {
	sc, err := fs.session()
	if err != nil {
		return nil, err
	}
	info, err := sc.Stat(name)
	return info, fs.check(err)
}

// MkdirAll creates the remote directory and any missing parents.
func (fs *SFTPFileSystem) MkdirAll(name string, _ os.FileMode) error {
	sc, err := fs.session()
	if err != nil {
		return err
	}
	return fs.check(sc.MkdirAll(name))
}

var _ FileSystem = (*SFTPFileSystem)(nil)
