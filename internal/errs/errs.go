// Package errs contains the error kinds shared by every layer and their mapping
// to external status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error surfaced to a client unwraps to exactly one of these.
var (
	// ErrAuthenticationFailed indicates a missing, invalid or revoked credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAccessForbidden indicates a blocked relationship, a role denial or a locked account.
	ErrAccessForbidden = errors.New("access forbidden")

	// ErrNotFound indicates a missing identity, edge or message.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates a duplicate edge or account.
	ErrConflict = errors.New("resource conflict")

	// ErrInvalidInput indicates a malformed request or a self-directed social operation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSystem indicates an unexpected infrastructure failure.
	ErrSystem = errors.New("system error")
)

// Error carries a client-safe message together with its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// E builds a typed error of the given kind.
func E(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef is E with formatting.
func Ef(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

type mapping struct {
	kind   error
	status int
	code   string
}

var mappings = []mapping{
	{ErrAuthenticationFailed, http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	{ErrAccessForbidden, http.StatusForbidden, "ACCESS_FORBIDDEN"},
	{ErrNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
	{ErrConflict, http.StatusConflict, "RESOURCE_CONFLICT"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrSystem, http.StatusInternalServerError, "SYSTEM_ERROR"},
}

func lookup(err error) mapping {
	for _, m := range mappings {
		if errors.Is(err, m.kind) {
			return m
		}
	}
	return mappings[len(mappings)-1]
}

// Kind returns the kind err unwraps to, ErrSystem when none matches.
func Kind(err error) error { return lookup(err).kind }

// Status maps err to an HTTP status code.
func Status(err error) int { return lookup(err).status }

// Code maps err to a stable machine-readable code.
func Code(err error) string { return lookup(err).code }

// Message returns the text that may be shown to a client. Errors of unknown
// kind never leak their internals.
func Message(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Msg
	}
	m := lookup(err)
	if m.kind == ErrSystem {
		return "internal server error"
	}
	return m.kind.Error()
}

// IsKnown reports whether err carries one of the client-facing kinds other than ErrSystem.
func IsKnown(err error) bool {
	return lookup(err).kind != ErrSystem
}
