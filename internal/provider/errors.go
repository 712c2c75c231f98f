package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a provider failure. Every kind drives fallback
// advancement; none is surfaced raw to the caller.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
	KindTransport   Kind = "transport"
	KindRefused     Kind = "refused"
)

type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(name string, kind Kind, err error) *Error {
	return &Error{Provider: name, Kind: kind, Err: err}
}

// KindFromStatus maps an upstream HTTP status to a failure kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 400 || status == 404 || status == 422:
		return KindRefused
	default:
		return KindTransport
	}
}

// Classify wraps an arbitrary transport-level error into *Error. Already
// classified errors pass through unchanged.
func Classify(name string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(name, KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(name, KindTimeout, err)
	}
	return NewError(name, KindTransport, err)
}

// KindOf extracts the failure kind, defaulting to transport for
// unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}
