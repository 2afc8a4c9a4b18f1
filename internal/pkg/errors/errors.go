package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAmbiguousMatch is returned when signature matching produces a tie.
	// The tie is surfaced, never resolved by guessing.
	ErrAmbiguousMatch = errors.New("ambiguous screen match")
)

// TransientStorageError wraps a store failure that is safe to retry.
type TransientStorageError struct {
	Store string
	Op    string
	Cause error
}

func (e *TransientStorageError) Error() string {
	if e == nil {
		return "transient storage error"
	}
	return fmt.Sprintf("transient storage error (store=%s op=%s): %v", e.Store, e.Op, e.Cause)
}

func (e *TransientStorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func Transient(store, op string, cause error) error {
	return &TransientStorageError{Store: store, Op: op, Cause: cause}
}

func IsTransient(err error) bool {
	var t *TransientStorageError
	return errors.As(err, &t)
}

// ValidationError marks a single malformed entity. It never aborts the batch
// that produced it; callers record it and continue.
type ValidationError struct {
	EntityKind string
	NaturalKey string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	return fmt.Sprintf("invalid %s (key=%s): %s", e.EntityKind, e.NaturalKey, e.Reason)
}

func Invalid(kind, key, reason string) error {
	return &ValidationError{EntityKind: kind, NaturalKey: key, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ExhaustedRetriesError is terminal for a job: the stage failed on every
// attempt up to the configured ceiling.
type ExhaustedRetriesError struct {
	Stage    string
	Attempts int
	History  []string
}

func (e *ExhaustedRetriesError) Error() string {
	if e == nil {
		return "retries exhausted"
	}
	return fmt.Sprintf("retries exhausted (stage=%s attempts=%d)", e.Stage, e.Attempts)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ConsistencyViolation is reported by the validator; repair happens only when
// explicitly requested.
type ConsistencyViolation struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	EntityID string   `json:"entity_id"`
	Detail   string   `json:"detail"`
}

func (e *ConsistencyViolation) Error() string {
	if e == nil {
		return "consistency violation"
	}
	return fmt.Sprintf("consistency violation (check=%s severity=%s entity=%s): %s", e.Check, e.Severity, e.EntityID, e.Detail)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
