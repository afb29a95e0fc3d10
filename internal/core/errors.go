package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEntity is returned when a batch names an unregistered entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrEmptyBatch is returned for a batch without records.
	ErrEmptyBatch = errors.New("empty batch: no records provided")

	// ErrRowNotFound is returned by Tx.Update when the row matched at lookup
	// was deleted before the update ran.
	ErrRowNotFound = errors.New("row no longer exists")
)

// ErrorKind classifies store errors for retry and isolation decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindUniqueness
	KindForeignKey
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUniqueness:
		return "uniqueness"
	case KindForeignKey:
		return "foreign_key"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Fatal reports whether the error must abort the chunk regardless of mode.
// Unknown errors fail closed.
func (k ErrorKind) Fatal() bool {
	return k == KindConnection || k == KindUnknown
}

// Source tells the caller whether the terminal's data or the server is at fault.
func (k ErrorKind) Source() string {
	switch k {
	case KindValidation, KindUniqueness, KindForeignKey:
		return "client_data"
	default:
		return "server_db"
	}
}

// StoreError is a classified store failure. Store implementations return it
// with whatever constraint detail the driver exposes.
type StoreError struct {
	Kind       ErrorKind
	Code       string // driver error code (SQLSTATE, sqlite extended code)
	Constraint string
	Table      string // referenced table for foreign key violations
	Column     string
	Value      any
	Err        error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with a kind.
func NewStoreError(kind ErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// Classify returns the StoreError in err's chain, or classifies err by its
// message when the store did not.
func Classify(err error) *StoreError {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &StoreError{Kind: KindConnection, Err: err}
	}
	if errors.Is(err, ErrRowNotFound) {
		return &StoreError{Kind: KindValidation, Err: err}
	}
	return &StoreError{Kind: classifyMessage(err.Error()), Err: err}
}

// kindPatterns are checked in order; the first match wins.
var kindPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindForeignKey, []string{"foreign key constraint", "violates foreign key"}},
	{KindUniqueness, []string{"duplicate key", "unique constraint", "violates unique", "already exists"}},
	{KindValidation, []string{"not null constraint", "violates not-null", "cannot be null", "required field", "violates check constraint", "invalid input syntax", "validation"}},
	{KindConnection, []string{"connection refused", "connection reset", "broken pipe", "timeout", "no connection", "conn closed", "bad connection", "database is closed", "network"}},
}

func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	for _, kp := range kindPatterns {
		for _, p := range kp.patterns {
			if strings.Contains(lower, p) {
				return kp.kind
			}
		}
	}
	return KindUnknown
}

// BatchError reports a chunk that aborted on a fatal error.
type BatchError struct {
	Chunk int
	Start int // index of the first record in the chunk
	End   int // index after the last record in the chunk
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("chunk %d (records %d-%d): %v", e.Chunk, e.Start, e.End-1, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
