// Package apperr classifies the error taxonomy that every layer of the
// engine maps its failures into: user-facing mistakes, transient remote
// faults, corrupted remote volumes, database inconsistencies, and
// cooperative cancellation.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the coarse category a caller switches on to decide whether to
// retry, skip-and-warn, abort the whole operation, or just print a
// message and exit.
type Kind string

const (
	// KindUser marks a mistake the operator can fix: a bad flag, a
	// missing source path, a malformed policy file.
	KindUser Kind = "user"
	// KindRemoteTransient marks a remote-backend fault that a retry
	// with backoff may clear: timeouts, 5xx, connection resets.
	KindRemoteTransient Kind = "remote_transient"
	// KindCorrupted marks a downloaded volume that fails its hash or
	// structural check. Outside test mode this is warn-and-skip;
	// inside test mode it is promoted to fatal.
	KindCorrupted Kind = "corrupted_volume"
	// KindInconsistentDatabase marks a local index invariant violation
	// that indicates the database and remote state have diverged
	// beyond what any in-process repair can fix. Always fatal.
	KindInconsistentDatabase Kind = "inconsistent_database"
	// KindCancelled marks cooperative cancellation via context.
	KindCancelled Kind = "cancelled"
)

// Error wraps an underlying cause with a Kind, so callers can
// errors.As it without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// User reports an operator-facing mistake.
func User(format string, args ...any) error {
	return &Error{Kind: KindUser, Message: fmt.Sprintf(format, args...)}
}

// RemoteTransient wraps a remote-backend error believed to be retryable.
func RemoteTransient(err error, format string, args ...any) error {
	return &Error{Kind: KindRemoteTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// Corrupted wraps a volume verification failure.
func Corrupted(err error, format string, args ...any) error {
	return &Error{Kind: KindCorrupted, Message: fmt.Sprintf(format, args...), Err: err}
}

// Inconsistent wraps a local-index invariant violation. Per spec this is
// always fatal: no caller should attempt to continue past one.
func Inconsistent(err error, format string, args ...any) error {
	return &Error{Kind: KindInconsistentDatabase, Message: fmt.Sprintf(format, args...), Err: err}
}

// FromContext recasts ctx.Err() (if any) into a KindCancelled *Error, so
// cancellation flows through the same taxonomy as everything else.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCancelled, Message: "operation cancelled", Err: err}
	}
	return nil
}

// Is reports whether err (or something it wraps) carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsCancelled reports whether err represents cooperative cancellation,
// either wrapped as KindCancelled or a bare context error.
func IsCancelled(err error) bool {
	if Is(err, KindCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
