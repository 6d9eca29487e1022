package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFormat   = errors.New("cannot determine input format")
	ErrContentBlocked  = errors.New("content blocked by safety policy")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrProviderFailure = errors.New("provider failure")
	ErrEmptyResponse   = errors.New("provider returned no media")
)

// ErrorKind classifies provider and storage failures for retry eligibility.
// The kind is decided at the collaborator boundary, not by inspecting error
// text downstream.
type ErrorKind int

const (
	// KindPermanent errors cannot be fixed by retrying (invalid input,
	// content policy, malformed response).
	KindPermanent ErrorKind = iota
	// KindTransient errors are expected to be retry-recoverable (network,
	// timeout, quota).
	KindTransient
)

// ProviderError carries a classified failure from a generation or storage
// collaborator.
type ProviderError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider failure.
func Transient(op string, err error) error {
	return &ProviderError{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(op string, err error) error {
	return &ProviderError{Kind: KindPermanent, Op: op, Err: err}
}

// IsTransient reports whether err is classified as retryable. Unclassified
// errors default to permanent.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return false
}

// FieldError describes a single failing field of an input row.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors aggregates every failing field of a row so callers report all
// problems at once instead of only the first.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(parts, "; ")
}
