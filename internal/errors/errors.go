// Package errors provides standardized error codes for the host application.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (protocol, validation, conflict, store, server)
//   - error: The specific error type within that domain
//
// The domains mirror how errors are handled:
//   - protocol.* errors are terminal: the connection is notified once and closed.
//   - validation.* errors are recoverable: the connection stays open and the
//     client may retry with a corrected message.
//   - conflict.* errors are recoverable with a specific reason: the client may
//     retry with a different alias or reconnect.
//   - store.* errors are fatal for the current operation only; they never take
//     down other connections.
//
// These codes are stable and can be used by clients for programmatic error
// handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients can rely on for error handling.
const (
	// Protocol domain - connect-time identity errors (terminal)
	CodeProtocolMissingID = "protocol.missing_id" // No identifier in the connection subprotocols
	CodeProtocolInvalidID = "protocol.invalid_id" // Identifier is not a canonical uuid4

	// Validation domain - message-level client errors (recoverable)
	CodeValidationBadJSON      = "validation.bad_json"      // Message body is not valid JSON
	CodeValidationMissingField = "validation.missing_field" // Required field absent from payload
	CodeValidationInvalidAlias = "validation.invalid_alias" // Alias fails syntax or reserved-word rules

	// Conflict domain - atomic transaction rejections (recoverable with reason)
	CodeConflictAliasTaken    = "conflict.alias_taken"    // Alias already claimed by another device
	CodeConflictDeviceExpired = "conflict.device_expired" // Device record expired mid-transaction

	// Store domain - keyed store failures
	CodeStoreUnavailable = "store.unavailable"  // Store unreachable or timed out
	CodeStoreQueryFailed = "store.query_failed" // Store operation failed

	// Server domain - WebSocket and network errors
	CodeServerUpgradeFailed = "server.upgrade_failed" // WebSocket upgrade failed
	CodeServerSendFailed    = "server.send_failed"    // Failed to send message

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "conflict.alias_taken")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// MissingID creates a "protocol.missing_id" error.
func MissingID() *CodedError {
	return New(CodeProtocolMissingID, "a valid uuid4 must be at index 0 in subprotocols")
}

// InvalidID creates a "protocol.invalid_id" error.
func InvalidID() *CodedError {
	return New(CodeProtocolInvalidID, "a valid uuid4 must be at index 0 in subprotocols")
}

// BadJSON creates a "validation.bad_json" error.
func BadJSON() *CodedError {
	return New(CodeValidationBadJSON, "messages must be in json format")
}

// MissingField creates a "validation.missing_field" error for the named field.
func MissingField(field string) *CodedError {
	return New(CodeValidationMissingField, fmt.Sprintf("missing key %q", field))
}

// InvalidAlias creates a "validation.invalid_alias" error with the validator's reason.
func InvalidAlias(reason string) *CodedError {
	return New(CodeValidationInvalidAlias, reason)
}

// AliasTaken creates a "conflict.alias_taken" error.
func AliasTaken(alias string) *CodedError {
	return New(CodeConflictAliasTaken, fmt.Sprintf("alias %q is already taken", alias))
}

// DeviceExpired creates a "conflict.device_expired" error.
func DeviceExpired(deviceID string) *CodedError {
	return New(CodeConflictDeviceExpired, fmt.Sprintf("device %s has expired, reconnect first", deviceID))
}

// StoreUnavailable creates a "store.unavailable" error wrapping the cause.
func StoreUnavailable(cause error) *CodedError {
	return Wrap(CodeStoreUnavailable, "keyed store unavailable", cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
