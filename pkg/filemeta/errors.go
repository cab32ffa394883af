package filemeta

import (
	"errors"
	"fmt"
)

// MetaError represents a domain error from file-metadata operations.
//
// These are business logic errors (precondition violated, entity missing)
// as opposed to infrastructure errors (store I/O failure). Callers inspect
// Code to decide how to react; infrastructure errors are wrapped with %w
// and surface as plain errors instead.
type MetaError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// FileID identifies the file the error relates to (0 if not applicable)
	FileID uint64
}

// Error implements the error interface.
func (e *MetaError) Error() string {
	if e.FileID != 0 {
		return fmt.Sprintf("%s (file %d)", e.Message, e.FileID)
	}
	return e.Message
}

// ErrorCode represents the category of a metadata error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested file or block doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrInvalidArgument indicates a caller precondition was violated:
	// wrong block type for the file, header encode with invalid
	// replication or EC policy ID, out-of-range index.
	// Never retried internally.
	ErrInvalidArgument

	// ErrInvalidState indicates an operation was issued against a file in
	// the wrong lifecycle state (already/never under construction,
	// snapshot feature already attached).
	ErrInvalidState

	// ErrInvariantViolation indicates internal state that an upstream
	// pipeline should have made impossible (e.g. finalizing a file whose
	// block-completeness check fails). Treated as fatal by callers and
	// reported with full diagnostic context.
	ErrInvariantViolation
)

func errInvalidArgf(format string, v ...any) *MetaError {
	return &MetaError{Code: ErrInvalidArgument, Message: fmt.Sprintf(format, v...)}
}

func errInvalidStatef(fileID uint64, format string, v ...any) *MetaError {
	return &MetaError{Code: ErrInvalidState, FileID: fileID, Message: fmt.Sprintf(format, v...)}
}

func errInvariantf(fileID uint64, format string, v ...any) *MetaError {
	return &MetaError{Code: ErrInvariantViolation, FileID: fileID, Message: fmt.Sprintf(format, v...)}
}

// CodeOf extracts the ErrorCode from err if a MetaError is anywhere in its
// chain. The second return is false for nil or non-domain errors.
func CodeOf(err error) (ErrorCode, bool) {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Code, true
	}
	return 0, false
}
