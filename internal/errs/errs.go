// Package errs provides coded errors so callers can tell apart the failure
// classes of a scan (bad input, OCR backend missing, external data problems).
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error.
type Code int

const (
	// CodeUnknown is reported for errors that carry no code.
	CodeUnknown Code = iota
	// CodeInvalidInput means the screenshot could not be opened or decoded.
	CodeInvalidInput
	// CodeOCRUnavailable means the OCR backend is missing or failed to initialize.
	CodeOCRUnavailable
	// CodeOCRFailed means the backend was available but a recognition call failed.
	CodeOCRFailed
	// CodeExternalData means a lookup, price or composition table is missing or corrupt.
	CodeExternalData
	// CodeNetwork means a refreshable external data source could not be reached.
	CodeNetwork
	// CodeConfig means the configuration is invalid.
	CodeConfig
	// CodeInternal is an unexpected failure (image conversion, OpenCV).
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeInvalidInput:
		return "INVALID_INPUT"
	case CodeOCRUnavailable:
		return "OCR_UNAVAILABLE"
	case CodeOCRFailed:
		return "OCR_FAILED"
	case CodeExternalData:
		return "EXTERNAL_DATA"
	case CodeNetwork:
		return "NETWORK"
	case CodeConfig:
		return "CONFIG"
	case CodeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Error is an error with a Code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps err with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// With adds a metadata key/value and returns the receiver.
func (e *Error) With(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether err's chain contains an *Error with the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
