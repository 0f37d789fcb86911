// Package errors defines the error taxonomy shared across the PKD mirror.
// Every error that crosses a component boundary is either a *PKDError with
// one of the Kinds below, or is wrapped into one by the nearest boundary.
package errors

import "fmt"

// Kind provides a coarse category for PKDError, matching the error
// taxonomy in the system's error handling design: each Kind dictates how
// the error is recovered, retried, or surfaced.
type Kind int

const (
	// InternalServer is an unexpected, uncategorized failure.
	InternalServer Kind = iota
	// Parse covers malformed input at the file/entry level (PEM, DER,
	// LDIF, CMS). Recovered per-entry; the surrounding ingest continues.
	Parse
	// Validation covers key-usage, validity-period, signature, and
	// basic-constraints failures during chain building or PA. Not
	// locally recoverable; surfaced in the verdict.
	Validation
	// Revocation covers a missing or expired CRL. Treated as a warning,
	// not a hard failure.
	Revocation
	// Store covers database failures. A unique-constraint violation is
	// treated as idempotent (duplicate insert); anything else propagates.
	Store
	// Directory covers LDAP failures. An "already exists" result is
	// treated as idempotent; anything else propagates.
	Directory
	// Network covers HTTP/SMTP/LDAP transport failures. Subject to
	// bounded retry with jittered backoff.
	Network
	// Config covers malformed or missing configuration. The process
	// aborts at startup; never retried.
	Config
	// Conflict covers a request that collides with in-progress work,
	// e.g. a second reconciliation pass while one is running.
	Conflict
	// NotFound covers lookups (by fingerprint, by subject DN) that find
	// nothing.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "ParseError"
	case Validation:
		return "ValidationError"
	case Revocation:
		return "RevocationError"
	case Store:
		return "StoreError"
	case Directory:
		return "DirectoryError"
	case Network:
		return "NetworkError"
	case Config:
		return "ConfigError"
	case Conflict:
		return "ConflictError"
	case NotFound:
		return "NotFoundError"
	default:
		return "InternalServerError"
	}
}

// PKDError is the concrete error type carried across component
// boundaries. Detail is a human-readable message; it must never contain
// cryptographic secrets or full certificate/CRL bodies.
type PKDError struct {
	Kind   Kind
	Detail string
	// Code is a stable, machine-readable identifier a caller can switch
	// on without string-matching Detail, e.g. "ISSUER_NOT_FOUND".
	Code string
}

func (e *PKDError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Detail, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// New builds a PKDError of the given Kind.
func New(kind Kind, msg string, args ...interface{}) error {
	return &PKDError{Kind: kind, Detail: fmt.Sprintf(msg, args...)}
}

// WithCode builds a PKDError of the given Kind carrying a stable code.
func WithCode(kind Kind, code string, msg string, args ...interface{}) error {
	return &PKDError{Kind: kind, Code: code, Detail: fmt.Sprintf(msg, args...)}
}

// Is reports whether err is a PKDError of the given Kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*PKDError)
	if !ok {
		return false
	}
	return pe.Kind == kind
}

func ParseError(msg string, args ...interface{}) error {
	return New(Parse, msg, args...)
}

func ValidationError(msg string, args ...interface{}) error {
	return New(Validation, msg, args...)
}

func RevocationError(msg string, args ...interface{}) error {
	return New(Revocation, msg, args...)
}

func StoreError(msg string, args ...interface{}) error {
	return New(Store, msg, args...)
}

func DirectoryError(msg string, args ...interface{}) error {
	return New(Directory, msg, args...)
}

func NetworkError(msg string, args ...interface{}) error {
	return New(Network, msg, args...)
}

func ConfigError(msg string, args ...interface{}) error {
	return New(Config, msg, args...)
}

func ConflictError(msg string, args ...interface{}) error {
	return New(Conflict, msg, args...)
}

func NotFoundError(msg string, args ...interface{}) error {
	return New(NotFound, msg, args...)
}
