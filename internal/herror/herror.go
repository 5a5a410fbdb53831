// Package herror defines the tagged error kinds used across heraclitus,
// wrapped the way the rest of the pack wraps errors: fmt.Errorf with %w.
package herror

import (
	"errors"
	"fmt"
)

// Kind tags an error with the category of failure, per the error model.
type Kind string

const (
	// KindIO covers filesystem and network failures from a storage backend.
	KindIO Kind = "io"
	// KindStorage covers backend-reported transaction/constraint failures.
	KindStorage Kind = "storage"
	// KindModel covers violations of the data model's structural invariants.
	KindModel Kind = "model"
	// KindNotFound covers lookups against unknown artifacts/versions/partitions.
	KindNotFound Kind = "not_found"
	// KindCycle covers attempts to introduce a cycle into a DAG.
	KindCycle Kind = "cycle"
	// KindTODO marks an intentionally unimplemented code path.
	KindTODO Kind = "todo"
)

// Error is a heraclitus error tagged with a Kind, wrapping an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target shares this error's Kind, so callers can use
// errors.Is(err, herror.NotFound("")) as a kind check.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a cause as an I/O failure.
func IO(cause error, format string, args ...any) error {
	return &Error{Kind: KindIO, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Storage wraps a cause as a backend storage failure.
func Storage(cause error, format string, args ...any) error {
	return &Error{Kind: KindStorage, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Model reports a violation of a structural invariant.
func Model(format string, args ...any) error {
	return newf(KindModel, format, args...)
}

// NotFound reports a missing artifact/version/partition lookup.
func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

// Cycle reports an attempt to introduce a cycle into a DAG.
func Cycle(format string, args ...any) error {
	return newf(KindCycle, format, args...)
}

// TODO marks a deliberately unimplemented code path, naming the gap.
func TODO(note string) error {
	return newf(KindTODO, "not implemented: %s", note)
}

// Is reports whether err is a heraclitus error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
