// Package perrors provides a structured error system for the path index,
// with error codes, categories, and operational context.
package perrors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Code identifies a class of index error.
type Code string

const (
	// Connection errors (session to the index store)
	CodeConnectionFailed  Code = "CONNECTION_FAILED"
	CodeConnectionTimeout Code = "CONNECTION_TIMEOUT"
	CodeNoHostAvailable   Code = "NO_HOST_AVAILABLE"

	// Path / filesystem errors
	CodePathInvalid     Code = "PATH_INVALID"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNotDirectory    Code = "NOT_DIRECTORY"
	CodeDirectoryNotEmpty Code = "DIRECTORY_NOT_EMPTY"

	// Consistency / protocol errors
	CodeChecksumConflict Code = "CHECKSUM_CONFLICT"
	CodeReclaimConflict  Code = "RECLAIM_CONFLICT"

	// Configuration errors
	CodeInvalidConfig Code = "INVALID_CONFIG"
	CodeMissingConfig Code = "MISSING_CONFIG"

	// Resource / state errors
	CodeShutdownInProgress Code = "SHUTDOWN_IN_PROGRESS"
	CodeQueueFull          Code = "QUEUE_FULL"

	// Internal
	CodeInternal Code = "INTERNAL_ERROR"
)

// Category groups codes for reporting and dashboards.
type Category string

const (
	CategoryConnection    Category = "connection"
	CategoryFilesystem    Category = "filesystem"
	CategoryConsistency   Category = "consistency"
	CategoryConfiguration Category = "configuration"
	CategoryState         Category = "state"
	CategoryInternal      Category = "internal"
)

// IndexError is the structured error type returned across package
// boundaries in the path index. Foreground index operations report
// their outcome as a value, bool or sentinel; they pass an IndexError
// through to the caller when the connection shim cannot reach the
// store, and Open returns one when the executor fails to start. It is
// also used by background task logging.
type IndexError struct {
	Code      Code                   `json:"code"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Context   map[string]string      `json:"context,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Retryable bool                   `json:"retryable"`
}

func (e *IndexError) Error() string {
	if e.Component != "" && e.Operation != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IndexError) Unwrap() error { return e.Cause }

// Is implements errors.Is comparison based on error code.
func (e *IndexError) Is(target error) bool {
	if other, ok := target.(*IndexError); ok {
		return e.Code == other.Code
	}
	return false
}

// New creates an IndexError with derived category and retryability.
func New(code Code, message string) *IndexError {
	return &IndexError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryableByDefault(code),
	}
}

func categoryOf(code Code) Category {
	switch {
	case strings.HasPrefix(string(code), "CONNECTION_") || code == CodeNoHostAvailable:
		return CategoryConnection
	case strings.HasPrefix(string(code), "PATH_") || code == CodeNotFound || code == CodeNotDirectory || code == CodeDirectoryNotEmpty:
		return CategoryFilesystem
	case code == CodeChecksumConflict || code == CodeReclaimConflict:
		return CategoryConsistency
	case strings.HasPrefix(string(code), "CONFIG") || code == CodeInvalidConfig || code == CodeMissingConfig:
		return CategoryConfiguration
	case code == CodeShutdownInProgress || code == CodeQueueFull:
		return CategoryState
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code Code) bool {
	switch code {
	case CodeConnectionFailed, CodeConnectionTimeout, CodeNoHostAvailable:
		return true
	default:
		return false
	}
}

// WithComponent sets the originating component (e.g. "store", "pathmap").
func (e *IndexError) WithComponent(component string) *IndexError {
	e.Component = component
	return e
}

// WithOperation sets the operation name (e.g. "insert", "makeDirs").
func (e *IndexError) WithOperation(operation string) *IndexError {
	e.Operation = operation
	return e
}

// WithCause attaches the underlying cause for unwrapping.
func (e *IndexError) WithCause(cause error) *IndexError {
	e.Cause = cause
	return e
}

// WithContext attaches a contextual key/value pair (fs, path, fileId, ...).
func (e *IndexError) WithContext(key, value string) *IndexError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// JSON renders the error as a JSON document, for structured log sinks.
func (e *IndexError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}
