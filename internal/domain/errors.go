package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	// Resolution-time errors abort the run before any file is processed.
	ErrorTypePathNotFound      ErrorType = "path_not_found"
	ErrorTypeUnsupportedFormat ErrorType = "unsupported_format"
	ErrorTypeFileTooLarge      ErrorType = "file_too_large"
	ErrorTypeEmptyBatch        ErrorType = "empty_batch"

	// ErrorTypeAuth is fatal for the whole batch.
	ErrorTypeAuth ErrorType = "auth"

	// Per-file errors, recorded and skipped.
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeService    ErrorType = "service"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"

	ErrorTypeConfig ErrorType = "config"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the type of the first DomainError in err's chain, or ""
// when err carries none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsResolutionError reports whether err happened while resolving the input
// set, before any file was processed.
func IsResolutionError(err error) bool {
	switch TypeOf(err) {
	case ErrorTypePathNotFound, ErrorTypeUnsupportedFormat, ErrorTypeFileTooLarge, ErrorTypeEmptyBatch:
		return true
	}
	return false
}

// Common error constructors
func PathNotFoundError(message string, err error) *DomainError {
	return NewError(ErrorTypePathNotFound, message, err)
}

func UnsupportedFormatError(message string, err error) *DomainError {
	return NewError(ErrorTypeUnsupportedFormat, message, err)
}

func FileTooLargeError(message string, err error) *DomainError {
	return NewError(ErrorTypeFileTooLarge, message, err)
}

func EmptyBatchError(message string, err error) *DomainError {
	return NewError(ErrorTypeEmptyBatch, message, err)
}

func AuthError(message string, err error) *DomainError {
	return NewError(ErrorTypeAuth, message, err)
}

func RateLimitError(message string, err error) *DomainError {
	return NewError(ErrorTypeRateLimit, message, err)
}

func ServiceError(message string, err error) *DomainError {
	return NewError(ErrorTypeService, message, err)
}

func TransportError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}
