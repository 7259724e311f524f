package config

import (
	"fmt"
	"strings"
)

// ValidationError collects every configuration problem found by Load.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validStoreTypes = []string{"dynamodb", "sqlite", "file", "memory"}
)

// validate checks the merged settings. Provider types are checked later
// against the registry, and a missing store table or path is allowed.
func validate(s *settings) []string {
	var errs []string

	if !oneOf(s.LogLevel, validLogLevels) {
		errs = append(errs, fmt.Sprintf("%sLOG_LEVEL: invalid value %q (must be debug, info, warn, or error)", EnvPrefix, s.LogLevel))
	}
	if !oneOf(s.LogFormat, validLogFormats) {
		errs = append(errs, fmt.Sprintf("%sLOG_FORMAT: invalid value %q (must be json or text)", EnvPrefix, s.LogFormat))
	}
	if !strings.HasPrefix(s.UpdatePath, "/") {
		errs = append(errs, fmt.Sprintf("%sUPDATE_PATH: must start with /, got %q", EnvPrefix, s.UpdatePath))
	}
	if s.ListenAddr == "" {
		errs = append(errs, EnvPrefix+"LISTEN_ADDR: must not be empty")
	}
	if s.HealthPort < 0 || s.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("%sHEALTH_PORT: must be between 0 and 65535, got %d", EnvPrefix, s.HealthPort))
	}
	if s.TTL < 1 {
		errs = append(errs, fmt.Sprintf("%sTTL: must be at least 1, got %d", EnvPrefix, s.TTL))
	}
	if !oneOf(s.StoreType, validStoreTypes) {
		errs = append(errs, fmt.Sprintf("%sSTORE_TYPE: invalid value %q (must be %s)", EnvPrefix, s.StoreType, strings.Join(validStoreTypes, ", ")))
	}
	if s.ProviderType == "" {
		errs = append(errs, EnvPrefix+"PROVIDER_TYPE: must not be empty")
	}

	return errs
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
