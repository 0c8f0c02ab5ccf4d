package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. Every precondition failure maps to
// exactly one kind; callers never see a request silently degraded into a
// different outcome.
type Kind string

const (
	KindNotFound         Kind = "not_found"         // referenced job does not exist
	KindConflict         Kind = "conflict"          // operation invalid for current status
	KindForbidden        Kind = "forbidden"         // actor not authorized for the mutation
	KindExpired          Kind = "expired"           // admission window elapsed before claim
	KindLeaseTimeout     Kind = "lease_timeout"     // submission arrived after lease expiry
	KindCapacityExceeded Kind = "capacity_exceeded" // owner at the active-job limit
	KindCostExceeded     Kind = "cost_exceeded"     // estimate above caller's ceiling
	KindInvalid          Kind = "invalid"           // malformed request attributes
)

// Error is a kind-tagged, per-request engine error. Nothing in the engine
// is fatal to the process.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errf builds a kind-tagged error
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, or "" for untagged errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
