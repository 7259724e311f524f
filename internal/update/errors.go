package update

import (
	"errors"
	"fmt"
)

// Kind classifies an update failure for the caller.
type Kind int

const (
	// KindInternal covers store, DNS and configuration failures.
	KindInternal Kind = iota
	// KindValidation covers malformed or unusable input.
	KindValidation
	// KindAuth covers unknown keys and wrong secrets alike.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	default:
		return "internal"
	}
}

// Sentinel causes.
var (
	errMalformedBody   = errors.New("malformed request body")
	errMissingField    = errors.New("key and secret are required")
	errNoSourceAddress = errors.New("source address unavailable")
	errInvalidAddress  = errors.New("source address is not an IPv4 or IPv6 literal")
	errBadCredentials  = errors.New("unknown key or wrong secret")
)

// Error is returned by HandleUpdate for every non-success outcome.
type Error struct {
	Kind Kind
	Op   string // pipeline step that failed
	Key  string // credential key, when known
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("update %s (key %s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("update %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. Errors not produced by this package are
// internal.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindInternal
}

func validationError(op, key string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Key: key, Err: err}
}

func internalError(op, key string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Key: key, Err: err}
}
