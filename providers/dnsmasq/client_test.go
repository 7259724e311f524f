package dnsmasq

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFileSystem implements FileSystem for testing.
type mockFileSystem struct {
	files    map[string][]byte
	dirs     map[string]bool
	writes   int
	readErr  error
	writeErr error
}

func newMockFileSystem() *mockFileSystem {
	return &mockFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func (m *mockFileSystem) ReadFile(path string) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if content, ok := m.files[path]; ok {
		return content, nil
	}
	return nil, os.ErrNotExist
}

func (m *mockFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.files[path] = data
	return nil
}

type mockFileInfo struct {
	name  string
	isDir bool
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return 0 }
func (m mockFileInfo) Mode() fs.FileMode  { return 0o755 }
func (m mockFileInfo) ModTime() time.Time { return time.Now() }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) Sys() interface{}   { return nil }

func (m *mockFileSystem) Stat(path string) (os.FileInfo, error) {
	if m.dirs[path] {
		return mockFileInfo{name: path, isDir: true}, nil
	}
	if _, ok := m.files[path]; ok {
		return mockFileInfo{name: path, isDir: false}, nil
	}
	return nil, os.ErrNotExist
}

func (m *mockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.dirs[path] = true
	return nil
}

// mockRunner records commands and optionally fails them.
type mockRunner struct {
	commands []string
	err      error
}

func (r *mockRunner) Run(_ context.Context, command string) error {
	r.commands = append(r.commands, command)
	return r.err
}

func newTestClient(fsys *mockFileSystem, runner *mockRunner) *Client {
	return NewClient("/etc/dnsmasq.d", "ddnsweaver.conf", "systemctl reload dnsmasq",
		WithFileSystem(fsys), WithCommandRunner(runner), WithLogger(testLogger()))
}

const testPath = "/etc/dnsmasq.d/ddnsweaver.conf"

func TestClient_ConfigFilePath(t *testing.T) {
	c := NewClient("/etc/dnsmasq.d", "ddnsweaver.conf", "")
	if got := c.ConfigFilePath(); got != testPath {
		t.Errorf("ConfigFilePath() = %q, want %q", got, testPath)
	}
}

func TestClient_Ping(t *testing.T) {
	fsys := newMockFileSystem()
	c := newTestClient(fsys, &mockRunner{})

	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() expected error for missing directory")
	}

	fsys.dirs["/etc/dnsmasq.d"] = true
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	fsys.dirs = map[string]bool{}
	fsys.files["/etc/dnsmasq.d"] = []byte("not a dir")
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() expected error when path is a file")
	}
}

func TestRewriteAddress(t *testing.T) {
	v4 := netip.MustParseAddr("192.0.2.10")
	v6 := netip.MustParseAddr("2001:db8::10")

	tests := []struct {
		name        string
		content     string
		hostname    string
		addr        netip.Addr
		want        string
		wantChanged bool
	}{
		{
			name:        "empty file gets header",
			hostname:    "home.example.com",
			addr:        v4,
			want:        fileHeader + "address=/home.example.com/192.0.2.10\n",
			wantChanged: true,
		},
		{
			name:        "replace in place",
			content:     "# keep\naddress=/home.example.com/192.0.2.1\naddress=/nas.example.com/192.0.2.2\n",
			hostname:    "home.example.com",
			addr:        v4,
			want:        "# keep\naddress=/home.example.com/192.0.2.10\naddress=/nas.example.com/192.0.2.2\n",
			wantChanged: true,
		},
		{
			name:        "other family untouched",
			content:     "address=/home.example.com/2001:db8::1\n",
			hostname:    "home.example.com",
			addr:        v4,
			want:        "address=/home.example.com/2001:db8::1\naddress=/home.example.com/192.0.2.10\n",
			wantChanged: true,
		},
		{
			name:        "ipv6 replaces ipv6 only",
			content:     "address=/home.example.com/192.0.2.1\naddress=/home.example.com/2001:db8::1\n",
			hostname:    "home.example.com",
			addr:        v6,
			want:        "address=/home.example.com/192.0.2.1\naddress=/home.example.com/2001:db8::10\n",
			wantChanged: true,
		},
		{
			name:        "duplicates collapsed",
			content:     "address=/home.example.com/192.0.2.1\naddress=/HOME.example.com/192.0.2.2\n",
			hostname:    "home.example.com",
			addr:        v4,
			want:        "address=/home.example.com/192.0.2.10\n",
			wantChanged: true,
		},
		{
			name:        "already current",
			content:     "address=/home.example.com/192.0.2.10\n",
			hostname:    "home.example.com",
			addr:        v4,
			want:        "address=/home.example.com/192.0.2.10\n",
			wantChanged: false,
		},
		{
			name:        "other directives preserved",
			content:     "cname=www.example.com,home.example.com\nlocal-ttl=60",
			hostname:    "home.example.com",
			addr:        v4,
			want:        "cname=www.example.com,home.example.com\nlocal-ttl=60\naddress=/home.example.com/192.0.2.10\n",
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := rewriteAddress(tt.content, tt.hostname, tt.addr)
			if err != nil {
				t.Fatalf("rewriteAddress() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("rewriteAddress() =\n%q\nwant\n%q", got, tt.want)
			}
			if changed != tt.wantChanged {
				t.Errorf("rewriteAddress() changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestClient_SetAddress(t *testing.T) {
	fsys := newMockFileSystem()
	runner := &mockRunner{}
	c := newTestClient(fsys, runner)
	addr := netip.MustParseAddr("192.0.2.10")

	if err := c.SetAddress(context.Background(), "home.example.com", addr); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if !fsys.dirs["/etc/dnsmasq.d"] {
		t.Error("SetAddress() did not create the config directory")
	}
	if fsys.writes != 1 || len(runner.commands) != 1 {
		t.Fatalf("writes = %d, reloads = %d, want 1 and 1", fsys.writes, len(runner.commands))
	}
	if runner.commands[0] != "systemctl reload dnsmasq" {
		t.Errorf("reload command = %q", runner.commands[0])
	}

	// Same mapping again is a no-op.
	if err := c.SetAddress(context.Background(), "home.example.com", addr); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if fsys.writes != 1 || len(runner.commands) != 1 {
		t.Errorf("unchanged SetAddress() wrote %d times and reloaded %d times", fsys.writes, len(runner.commands))
	}
}

func TestClient_SetAddress_Errors(t *testing.T) {
	addr := netip.MustParseAddr("192.0.2.10")

	t.Run("read failure", func(t *testing.T) {
		fsys := newMockFileSystem()
		fsys.readErr = errors.New("io error")
		if err := newTestClient(fsys, &mockRunner{}).SetAddress(context.Background(), "h.example.com", addr); err == nil {
			t.Error("SetAddress() expected error")
		}
	})

	t.Run("write failure skips reload", func(t *testing.T) {
		fsys := newMockFileSystem()
		fsys.writeErr = os.ErrPermission
		runner := &mockRunner{}
		err := newTestClient(fsys, runner).SetAddress(context.Background(), "h.example.com", addr)
		if !errors.Is(err, os.ErrPermission) {
			t.Errorf("SetAddress() error = %v, want permission error", err)
		}
		if len(runner.commands) != 0 {
			t.Error("reload ran after failed write")
		}
	})

	t.Run("reload failure", func(t *testing.T) {
		runner := &mockRunner{err: errors.New("exit status 1")}
		if err := newTestClient(newMockFileSystem(), runner).SetAddress(context.Background(), "h.example.com", addr); err == nil {
			t.Error("SetAddress() expected reload error")
		}
	})
}

func TestClient_NoReloadCommand(t *testing.T) {
	runner := &mockRunner{}
	c := NewClient("/etc/dnsmasq.d", "ddnsweaver.conf", "",
		WithFileSystem(newMockFileSystem()), WithCommandRunner(runner))

	if err := c.SetAddress(context.Background(), "h.example.com", netip.MustParseAddr("192.0.2.1")); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if len(runner.commands) != 0 {
		t.Errorf("reload ran %d times with no command configured", len(runner.commands))
	}
}

func TestOSFileSystem_WriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ddnsweaver.conf")
	var fsys osFileSystem

	if err := fsys.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := fsys.WriteFile(path, []byte("two\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := fsys.ReadFile(path)
	if err != nil || string(got) != "two\n" {
		t.Errorf("ReadFile() = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want no leftover temp files", len(entries))
	}
}

func TestOSCommandRunner(t *testing.T) {
	r := &osCommandRunner{logger: testLogger()}
	if err := r.Run(context.Background(), "true"); err != nil {
		t.Errorf("Run(true) error = %v", err)
	}
	if err := r.Run(context.Background(), "echo boom >&2; exit 2"); err == nil {
		t.Error("Run() expected error for non-zero exit")
	}
}
