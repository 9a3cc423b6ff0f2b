package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ValidationError represents malformed transport input with field-level details
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// GRPCStatus returns the gRPC status for this error
func (e *ValidationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// NotFoundError represents a referenced resource that does not exist
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// GRPCStatus returns the gRPC status for this error
func (e *NotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, e.Error())
}

// StorageError reports that the backend was unreachable or rejected a write.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError creates a new storage error for the given operation
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Err: err,
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage error during %s", e.Op)
}

// Unwrap returns the wrapped error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// GRPCStatus returns the gRPC status for this error
func (e *StorageError) GRPCStatus() *status.Status {
	return status.New(codes.Unavailable, e.Error())
}

// InternalError represents an internal server error with context
type InternalError struct {
	Message string
	Err     error
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *InternalError {
	return &InternalError{
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *InternalError) Unwrap() error {
	return e.Err
}

// GRPCStatus returns the gRPC status for this error
func (e *InternalError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Message)
}

// AsInternal returns err unchanged when it already carries a status and
// otherwise wraps it in an InternalError, so unclassified failures surface
// as codes.Internal with the cause kept for logging.
func AsInternal(err error) error {
	if err == nil {
		return nil
	}
	var s GRPCStatuser
	if errors.As(err, &s) {
		return err
	}
	return NewInternalError("unexpected error", err)
}

// GRPCStatuser interface for errors that can provide gRPC status
type GRPCStatuser interface {
	GRPCStatus() *status.Status
}

// Code returns the gRPC code classifying err. Wrapped errors are unwrapped
// until one that carries a status is found; anything else is codes.Internal.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var s GRPCStatuser
	if errors.As(err, &s) {
		return s.GRPCStatus().Code()
	}
	return codes.Internal
}

// Kind returns a short machine-readable name for the error class,
// used as the "error" field of HTTP error bodies.
func Kind(err error) string {
	switch Code(err) {
	case codes.OK:
		return ""
	case codes.NotFound:
		return "not_found"
	case codes.InvalidArgument:
		return "validation_error"
	case codes.Unavailable:
		return "storage_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err to the HTTP status code returned to clients.
func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound reports whether err is, or wraps, a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStorage reports whether err is, or wraps, a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
