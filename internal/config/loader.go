package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Load builds the configuration from defaults, the optional file named by
// DDNSWEAVER_CONFIG, and environment variables, in increasing precedence.
// All problems are reported together in a *ValidationError.
func Load() (*Config, error) {
	return LoadWithFile(getEnv(EnvPrefix + "CONFIG"))
}

// LoadWithFile is Load with an explicit file path. An empty path skips the
// file.
func LoadWithFile(path string) (*Config, error) {
	s := defaultSettings()
	var errs []string

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, &ValidationError{Errors: []string{"config file: " + err.Error()}}
		}
		slog.Info("loaded configuration from file", slog.String("path", path))
		errs = append(errs, fileCfg.apply(s)...)
	}

	errs = append(errs, applyEnv(s)...)

	if s.ProviderName == "" {
		s.ProviderName = s.ProviderType
	}

	errs = append(errs, validate(s)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return &Config{s: *s}, nil
}

func parsePositiveDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use format like 10s, 1m)", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", v)
	}
	return d, nil
}
