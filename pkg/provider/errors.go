package provider

import (
	"errors"
	"fmt"
)

// Sentinels that backends wrap so callers can tell failures apart without
// knowing which backend produced them.
var (
	ErrInvalidChange       = errors.New("invalid change")
	ErrZoneMismatch        = errors.New("record name does not belong to zone")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// causes orders the sentinels checked by Cause.
var causes = []struct {
	err   error
	label string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrProviderUnavailable, "unavailable"},
	{ErrZoneMismatch, "zone_mismatch"},
	{ErrInvalidChange, "invalid_change"},
}

// Cause returns a short stable label for the sentinel err wraps, "" for
// nil and "error" when none matches. Used as a log attribute.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range causes {
		if errors.Is(err, c.err) {
			return c.label
		}
	}
	return "error"
}

// ConfigError reports a bad provider setting. Value is omitted from the
// message when empty.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
}

// ErrConfigMissing reports a required setting that was not provided.
func ErrConfigMissing(field string) error {
	return &ConfigError{Field: field, Message: "required but not set"}
}

// ErrConfigInvalid reports a setting whose value cannot be used.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ProviderError records which provider instance and operation failed.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err, otherwise a *ProviderError.
func WrapError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Operation: operation, Err: err}
}

// IsUnauthorized reports whether err wraps ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsProviderUnavailable reports whether err wraps ErrProviderUnavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
