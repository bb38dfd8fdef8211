// Package apperr defines the error kinds surfaced by the search pipeline and
// how each maps onto an HTTP response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// Internal is the zero value so unclassified errors never look like user errors.
	Internal Kind = iota
	Validation
	Configuration
	Upstream
	Storage
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Configuration:
		return "configuration"
	case Upstream:
		return "upstream"
	case Storage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is a classified failure. Provider and Status are only set for
// Upstream and Configuration errors.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// NewConfiguration reports a missing or unusable operator-supplied setting.
func NewConfiguration(provider, format string, args ...any) *Error {
	return &Error{Kind: Configuration, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// NewUpstream reports a provider failure. status is 0 when no HTTP response
// was received.
func NewUpstream(provider string, status int, err error, format string, args ...any) *Error {
	return &Error{Kind: Upstream, Provider: provider, Status: status, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewStorage(err error, format string, args ...any) *Error {
	return &Error{Kind: Storage, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewInternal(err error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(k Kind) int {
	if k == Validation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Code is the stable machine-readable "error" value written in responses.
func Code(k Kind) string {
	return k.String() + "_error"
}

// PublicMessage is the human-readable summary safe to show an end user.
// Provider bodies are kept out of it; they go to the logs instead.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case Validation:
		return e.Message
	case Configuration:
		if e.Provider != "" {
			return e.Provider + " is not configured"
		}
		return "service is not configured"
	case Upstream:
		if e.Status != 0 {
			return fmt.Sprintf("%s request failed with status %d", e.Provider, e.Status)
		}
		return e.Provider + " request failed"
	case Storage:
		return "failed to store search"
	default:
		return "internal error"
	}
}
