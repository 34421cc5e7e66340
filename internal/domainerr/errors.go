// Package domainerr declares the engine's error taxonomy as sentinel-wrapped
// kinds rather than bespoke types, following the fmt.Errorf("...: %w", err)
// wrapping idiom used throughout the storage and engine layers.
package domainerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error classes.
type Kind string

const (
	// KindConfig is missing/invalid configuration at startup; fatal.
	KindConfig Kind = "config_error"
	// KindTransientInfra is a broker/lock/persistence error expected to
	// clear on retry.
	KindTransientInfra Kind = "transient_infra"
	// KindNotFound is an unknown workflow, version, event, or execution.
	KindNotFound Kind = "not_found"
	// KindConflict is a duplicate processing_id, an invariant violation.
	KindConflict Kind = "conflict"
	// KindValidation is a missing required parameter or malformed envelope;
	// always permanent.
	KindValidation Kind = "validation_error"
	// KindExecutor is an error raised by an action body or execute function.
	KindExecutor Kind = "executor_error"
	// KindLockContention is a failed lock acquisition; never a side effect.
	KindLockContention Kind = "lock_contention"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func Config(op string, err error) error         { return New(KindConfig, op, err) }
func TransientInfra(op string, err error) error { return New(KindTransientInfra, op, err) }
func NotFound(op string, err error) error       { return New(KindNotFound, op, err) }
func Conflict(op string, err error) error       { return New(KindConflict, op, err) }
func Validation(op string, err error) error     { return New(KindValidation, op, err) }
func Executor(op string, err error) error       { return New(KindExecutor, op, err) }
func LockContention(op string, err error) error { return New(KindLockContention, op, err) }
