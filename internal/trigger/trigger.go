// Package trigger is the client side of the update protocol: it reads a key
// and secret and posts them once to the update endpoint. The server infers
// the address to register from the connection, so the client sends none.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/httputil"
)

// KeyringService is the OS keyring service the secret is looked up under,
// with the client key as the user.
const KeyringService = "ddnsweaver"

// DefaultTimeout bounds the single request.
const DefaultTimeout = 30 * time.Second

// maxResponseBody caps how much of the server reply is read.
const maxResponseBody = 64 << 10

// ErrMissingSetting is returned by LoadConfig when a required value is unset.
var ErrMissingSetting = errors.New("missing required setting")

// StatusError is returned by Run when the server answers with a non-2xx
// status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("update rejected: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Config holds what the trigger needs for one run.
type Config struct {
	Key     string
	Secret  string
	URL     string
	Timeout time.Duration
}

// LoadConfig reads KEY, SECRET, URL and the optional TIMEOUT from the
// environment. Each of KEY, SECRET and URL may instead name a file through
// the _FILE suffix. envFile, when it exists, is loaded first without
// overriding variables that are already set. A missing SECRET falls back to
// the OS keyring.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{Timeout: DefaultTimeout}
	for name, dst := range map[string]*string{"KEY": &cfg.Key, "SECRET": &cfg.Secret, "URL": &cfg.URL} {
		v, err := envOrFile(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	var missing []string
	if cfg.Key == "" {
		missing = append(missing, "KEY")
	}
	if cfg.URL == "" {
		missing = append(missing, "URL")
	}

	if cfg.Secret == "" && cfg.Key != "" {
		secret, err := keyring.Get(KeyringService, cfg.Key)
		switch {
		case err == nil:
			cfg.Secret = secret
		case errors.Is(err, keyring.ErrNotFound):
		default:
			slog.Debug("keyring lookup failed", slog.String("error", err.Error()))
		}
	}
	if cfg.Secret == "" {
		missing = append(missing, "SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	if u, err := url.Parse(cfg.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: must be an absolute http or https URL", cfg.URL)
	}

	if v := os.Getenv("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TIMEOUT %q: use a positive duration like 30s", v)
		}
		cfg.Timeout = d
	}

	return cfg, nil
}

// StoreSecret saves secret in the OS keyring for key, so LoadConfig can
// find it without SECRET in the environment.
func StoreSecret(key, secret string) error {
	if err := keyring.Set(KeyringService, key, secret); err != nil {
		return fmt.Errorf("saving secret to keyring: %w", err)
	}
	return nil
}

// envOrFile prefers the file named by name_FILE. A _FILE that cannot be read
// is an error rather than a silent fallback to name.
func envOrFile(name string) (string, error) {
	path := os.Getenv(name + "_FILE")
	if path == "" {
		return os.Getenv(name), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s_FILE: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Option configures Run.
type Option func(*runner)

type runner struct {
	client *http.Client
	logger *slog.Logger
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *runner) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type requestBody struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Run sends exactly one update request. A transport failure or a non-2xx
// status is an error; otherwise the server's plain-text reply is returned.
func Run(ctx context.Context, cfg *Config, opts ...Option) (string, error) {
	r := &runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = httputil.NewClient(&httputil.ClientConfig{
			Timeout:   cfg.Timeout,
			UserAgent: "ddnsweaver-trigger",
			Logger:    r.logger,
		})
	}

	payload, err := json.Marshal(requestBody{Key: cfg.Key, Secret: cfg.Secret})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending update: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	r.logger.Info("update accepted",
		slog.String("key", cfg.Key),
		slog.Int("status", resp.StatusCode),
		slog.String("response", text),
	)
	return text, nil
}
