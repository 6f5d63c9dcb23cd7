// Package faults defines the failure taxonomy shared by recalld's adapters
// and orchestrators.
//
// Adapters classify every external failure into a Kind; orchestrators retry
// only the retryable kinds and let everything else propagate unchanged to the
// protocol layer, which maps each kind to a stable machine-readable code.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure. The string value is the stable machine-readable
// code exposed on the protocol surface.
type Kind string

const (
	// KindInvalidArgument indicates malformed or out-of-range caller input.
	// Never retried; returned immediately with a descriptive message.
	KindInvalidArgument Kind = "invalid_argument"

	// KindInvalidInput indicates content rejected by an external provider,
	// e.g. empty or oversized text. Never retried.
	KindInvalidInput Kind = "invalid_input"

	// KindRateLimited indicates the provider asked us to back off. Retryable.
	KindRateLimited Kind = "rate_limited"

	// KindUnavailable indicates a transient provider failure, including
	// exceeded deadlines. Retryable.
	KindUnavailable Kind = "unavailable"

	// KindQuotaExceeded is fatal for the current request. Never retried.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindNotFound indicates a referenced document does not exist.
	KindNotFound Kind = "not_found"

	// KindInternal indicates a pipeline bug, e.g. mismatched chunk and
	// embedding counts. Always fatal, never silently tolerated.
	KindInternal Kind = "internal_inconsistency"

	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = "unknown"
)

// Error is a classified failure. It wraps an optional cause and names the
// operation that produced it.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "embeddings.embed_documents"
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, string(e.Kind))
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil. If err is
// already classified, the existing kind is preserved and only the operation
// context is added.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if existing := KindOf(err); existing != KindUnknown {
		kind = existing
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or KindUnknown if err carries
// none. Context deadline expiry counts as KindUnavailable so the retry layer
// treats per-call timeouts as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindUnknown
}

// Retryable reports whether err is worth retrying with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
