// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package errs classifies the errors the migration engine produces into a
// small set of kinds so callers (retry policy, runtime, report) can decide
// whether to retry, abort, or surface a finding without string-matching
// error messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies the origin of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnector
	KindDatabase
	KindSettings
	KindAdapter
	KindTransform
	KindState
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindConnector:
		return "connector"
	case KindDatabase:
		return "database"
	case KindSettings:
		return "settings"
	case KindAdapter:
		return "adapter"
	case KindTransform:
		return "transform"
	case KindState:
		return "state"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is a wrapped error tagged with a Kind and a Transient flag. Retry
// and circuit-breaker logic (internal/retry) inspects Transient to decide
// whether an operation is worth retrying; the runtime inspects Kind to
// decide whether to surface a Finding or abort the run outright.
type Error struct {
	Kind      Kind
	Transient bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a non-transient Error of the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Transient wraps cause as a transient Error of the given kind — one the
// retry policy should attempt again.
func Transient(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Transient: true, Cause: cause}
}

// IsTransient reports whether err (or any error it wraps) is a transient
// *Error.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown if err does not wrap an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrBadConnection mirrors the teacher's sentinel-error pattern
// (store.ErrBadHostname): a connector was given insufficient connection
// details to even attempt a dial.
var ErrBadConnection = errors.New("errs: connection details incomplete")
