package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure category with a stable symbolic name.
type ErrorCode string

// Error codes, grouped by session stage.
const (
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"

	// Option errors
	ErrKeepInvalid       ErrorCode = "KEEP_INVALID"
	ErrFQDNToggleInvalid ErrorCode = "FQDN_TOGGLE_INVALID"

	// Specification errors
	ErrSourcePairMalformed  ErrorCode = "SOURCE_PAIR_MALFORMED"
	ErrDuplicateSourceID    ErrorCode = "DUPLICATE_SOURCE_ID"
	ErrExcludePairMalformed ErrorCode = "EXCLUDE_PAIR_MALFORMED"
	ErrExcludeIDUnresolved  ErrorCode = "EXCLUDE_ID_UNRESOLVED"
	ErrExcludeAmbiguous     ErrorCode = "EXCLUDE_AMBIGUOUS"
	ErrExcludeMissingID     ErrorCode = "EXCLUDE_MISSING_ID"

	// Precondition errors
	ErrSourceDirMissing    ErrorCode = "SOURCE_DIR_MISSING"
	ErrDestDirMissing      ErrorCode = "DEST_DIR_MISSING"
	ErrSourceMarkerMissing ErrorCode = "SOURCE_MARKER_MISSING"
	ErrDestMarkerMissing   ErrorCode = "DEST_MARKER_MISSING"
	ErrSourceUnreadable    ErrorCode = "SOURCE_UNREADABLE"
	ErrDestUnwritable      ErrorCode = "DEST_UNWRITABLE"

	// Execution errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
)

// exitCodes maps error codes to the numeric process exit codes consumed
// by scripting and automation. The numbering is part of the CLI contract
// and must not change between releases.
var exitCodes = map[ErrorCode]int{
	ErrKeepInvalid:          11,
	ErrFQDNToggleInvalid:    12,
	ErrSourcePairMalformed:  21,
	ErrDuplicateSourceID:    22,
	ErrExcludePairMalformed: 23,
	ErrExcludeIDUnresolved:  24,
	ErrExcludeAmbiguous:     25,
	ErrExcludeMissingID:     26,
	ErrSourceDirMissing:     31,
	ErrDestDirMissing:       32,
	ErrSourceMarkerMissing:  33,
	ErrDestMarkerMissing:    34,
	ErrSourceUnreadable:     35,
	ErrDestUnwritable:       36,
	ErrSyncFailed:           51,
}

// IncbakError is a structured error carrying a code and optional details.
type IncbakError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *IncbakError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *IncbakError) Unwrap() error {
	return e.Wrapped
}

// Is matches two IncbakErrors on their code.
func (e *IncbakError) Is(target error) bool {
	var targetErr *IncbakError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new IncbakError with the given code and message
func New(code ErrorCode, message string) *IncbakError {
	return &IncbakError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new IncbakError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *IncbakError {
	return &IncbakError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an IncbakError
func Wrap(err error, code ErrorCode, message string) *IncbakError {
	if err == nil {
		return nil
	}
	return &IncbakError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *IncbakError {
	if err == nil {
		return nil
	}
	return &IncbakError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *IncbakError) WithDetail(key string, value interface{}) *IncbakError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var ibErr *IncbakError
	if errors.As(err, &ibErr) {
		return ibErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not
// an IncbakError.
func GetErrorCode(err error) ErrorCode {
	var ibErr *IncbakError
	if errors.As(err, &ibErr) {
		return ibErr.Code
	}
	return ErrUnknown
}

// ExitCode returns the numeric process exit code for an error. A nil
// error maps to 0, an error outside the stable numbering maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[GetErrorCode(err)]; ok {
		return code
	}
	return 1
}
