// Package errors provides centralized error definitions and error handling utilities
// for todohub. It defines domain-specific errors, semantic error types, error
// constructors with context wrapping, and classification helpers used by the
// HTTP and websocket boundaries.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - AuthError: credential issuance or validation failures
//   - StoreError: persistence failures (Redis)
//   - ProtocolError: malformed or incomplete inbound websocket messages
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input
//   - ConflictError: the request conflicts with current state (e.g. a
//     forbidden status transition)
//
// # Usage
//
//	err := errors.NewNotFoundError("todo", id)
//	err := errors.NewStoreError("read todo", redisErr).WithKey(key)
//
//	if errors.Is(err, errors.ErrInvalidToken) { ... }
//
//	var conflict *errors.ConflictError
//	if errors.As(err, &conflict) { ... }
//
//	status := errors.HTTPStatus(err)
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for expected conditions such as a rejected credential.
	SeverityInfo
	// SeverityWarning is for errors caused by client input.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Auth-related sentinel errors
var (
	// ErrMissingToken indicates that no credential was presented.
	ErrMissingToken = New("missing token")
	// ErrInvalidToken indicates that a credential failed validation.
	ErrInvalidToken = New("invalid token")
	// ErrMissingSecret indicates that no signing secret is configured.
	ErrMissingSecret = New("signing secret not configured")
)

// Store-related sentinel errors
var (
	// ErrStoreUnavailable indicates that the backing store could not be reached.
	ErrStoreUnavailable = New("store unavailable")
	// ErrCorruptRecord indicates that a stored record could not be decoded.
	ErrCorruptRecord = New("corrupt record")
)

// Protocol-related sentinel errors
var (
	// ErrMalformedMessage indicates that an inbound frame was not valid JSON.
	ErrMalformedMessage = New("malformed message")
	// ErrUnknownMessageType indicates an inbound message with an unrecognized type.
	ErrUnknownMessageType = New("unknown message type")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrConflict indicates that an operation conflicts with current state.
	ErrConflict = New("conflict with current state")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// AppError is the base interface for all todohub errors.
type AppError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to show to clients.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<prefix> [k=v, ...]: message[: cause]".
func (e *baseError) format(prefix string, context []string) string {
	if len(context) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(context, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// AuthError represents a credential that could not be issued or validated.
//
// Example:
//
//	err := errors.NewAuthError("token rejected", errors.ErrInvalidToken).WithUser("alice")
//	fmt.Println(err) // "auth error [user=alice]: token rejected: invalid token"
type AuthError struct {
	baseError
	User string
}

// NewAuthError creates a new AuthError.
func NewAuthError(message string, cause error) *AuthError {
	return &AuthError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityInfo,
			userFacing: true,
		},
	}
}

// WithUser adds the user name to the error context.
func (e *AuthError) WithUser(name string) *AuthError {
	e.User = name
	return e
}

// Error returns the formatted error message.
func (e *AuthError) Error() string {
	var parts []string
	if e.User != "" {
		parts = append(parts, "user="+e.User)
	}
	return e.format("auth error", parts)
}

// Is checks if this error matches the target.
func (e *AuthError) Is(target error) bool {
	if _, ok := target.(*AuthError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StoreError represents a failure talking to the persistence layer.
// Store errors are retryable by default and never shown to clients verbatim.
//
// Example:
//
//	err := errors.NewStoreError("read todo", redisErr).WithOp("HGETALL").WithKey("todohub:todo:1")
type StoreError struct {
	baseError
	Op  string
	Key string
}

// NewStoreError creates a new StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
	}
}

// WithOp adds the store operation to the error context.
func (e *StoreError) WithOp(op string) *StoreError {
	e.Op = op
	return e
}

// WithKey adds the affected key to the error context.
func (e *StoreError) WithKey(key string) *StoreError {
	e.Key = key
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *StoreError) WithRetryable(r bool) *StoreError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	return e.format("store error", parts)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProtocolError represents an inbound websocket message that could not be
// decoded or is missing required fields. These are logged and dropped; the
// connection stays open.
//
// Example:
//
//	err := errors.NewProtocolError("collectionKey is required", errors.ErrInvalidInput).
//		WithMessageType("JOIN_COLLECTION")
type ProtocolError struct {
	baseError
	MessageType string
	ConnID      string
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithMessageType adds the inbound message type to the error context.
func (e *ProtocolError) WithMessageType(t string) *ProtocolError {
	e.MessageType = t
	return e
}

// WithConnID adds the connection id to the error context.
func (e *ProtocolError) WithConnID(id string) *ProtocolError {
	e.ConnID = id
	return e
}

// Error returns the formatted error message.
func (e *ProtocolError) Error() string {
	var parts []string
	if e.MessageType != "" {
		parts = append(parts, "type="+e.MessageType)
	}
	if e.ConnID != "" {
		parts = append(parts, "conn="+e.ConnID)
	}
	return e.format("protocol error", parts)
}

// Is checks if this error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if _, ok := target.(*ProtocolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("collection", "01hx...")
//	fmt.Println(err) // "collection '01hx...' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("name is required").WithField("name")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// ConflictError represents a request that is well-formed but not allowed in
// the current state, such as moving a todo from DONE straight back to TODO.
//
// Example:
//
//	err := errors.NewConflictError("invalid status change").WithTransition("DONE", "TODO")
type ConflictError struct {
	baseError
	From string
	To   string
}

// NewConflictError creates a new ConflictError.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithTransition records the rejected state change.
func (e *ConflictError) WithTransition(from, to string) *ConflictError {
	e.From = from
	e.To = to
	return e
}

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	var parts []string
	if e.From != "" || e.To != "" {
		parts = append(parts, fmt.Sprintf("%s->%s", e.From, e.To))
	}
	return e.format("conflict", parts)
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	if errors.Is(target, ErrConflict) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr AppError
	if As(err, &appErr) {
		return appErr.IsRetryable()
	}

	return Is(err, ErrStoreUnavailable)
}

// IsUserFacing returns true if the error message is safe to display to clients.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    respond(status, err.Error())
//	} else {
//	    respond(status, "internal error")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var appErr AppError
	if As(err, &appErr) {
		return appErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement AppError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var appErr AppError
	if As(err, &appErr) {
		return appErr.Severity()
	}

	return SeverityError
}

// HTTPStatus maps an error to the HTTP status code a handler should respond with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		auth       *AuthError
		store      *StoreError
	)

	switch {
	case As(err, &validation):
		return http.StatusBadRequest
	case As(err, &auth):
		return http.StatusUnauthorized
	case As(err, &notFound):
		return http.StatusNotFound
	case As(err, &conflict):
		return http.StatusConflict
	case As(err, &store) && store.IsRetryable():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike building a new error, this preserves the AppError chain.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load collection")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
