// Package errors provides standardized error codes for the editor front-end.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (connection, protocol, request, viewstate)
//   - error: The specific error type within that domain
//
// Codes are stable and let the UI layer decide how to present a failure
// without parsing messages. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Connection domain - transport lifecycle
	CodeConnectionFailed = "connection.failed" // Transport did not reach the open state
	CodeConnectionLost   = "connection.lost"   // Transport closed unexpectedly after opening
	CodeConnectionClosed = "connection.closed" // Connection was closed locally

	// Protocol domain - wire codec
	CodeProtocolMalformed     = "protocol.malformed"      // Not JSON, or params don't fit the method
	CodeProtocolUnknownMethod = "protocol.unknown_method" // Method tag is not part of the protocol
	CodeProtocolEncodeFailed  = "protocol.encode_failed"  // Outbound message could not be serialized

	// Request domain - request/response correlation
	CodeRequestTimedOut      = "request.timed_out"      // No response arrived within the TTL
	CodeRequestStaleResponse = "request.stale_response" // Response id has no pending request
	CodeRequestDuplicate     = "request.duplicate"      // Request id is already pending
	CodeRequestCancelled     = "request.cancelled"      // Request abandoned before its response

	// View state domain - local cache of documents and views
	CodeViewUnknown     = "viewstate.unknown_view"     // Update targets a view not in the store
	CodeDocumentUnknown = "viewstate.unknown_document" // View references a document not in the store

	// Config domain
	CodeConfigInvalid = "config.invalid" // Config value out of range or unparseable

	// Storage domain - protocol trace journal
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "viewstate.unknown_view")
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
// Falls back to CodeUnknown for errors that carry no code.
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

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for turning errors into UI status text.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for the front-end taxonomy.

// ConnectionFailed creates a "connection.failed" error.
// This is the only error the session surfaces to the UI layer.
func ConnectionFailed(addr string, cause error) *CodedError {
	return Wrap(CodeConnectionFailed, fmt.Sprintf("failed to establish session with %s", addr), cause)
}

// ConnectionLost creates a "connection.lost" error.
func ConnectionLost(cause error) *CodedError {
	return Wrap(CodeConnectionLost, "connection closed unexpectedly", cause)
}

// ConnectionClosed creates a "connection.closed" error.
func ConnectionClosed() *CodedError {
	return New(CodeConnectionClosed, "connection closed")
}

// Malformed creates a "protocol.malformed" error.
func Malformed(reason string, cause error) *CodedError {
	return Wrap(CodeProtocolMalformed, reason, cause)
}

// UnknownMethod creates a "protocol.unknown_method" error.
// Callers choose whether to log-and-continue or abort.
func UnknownMethod(method string) *CodedError {
	return New(CodeProtocolUnknownMethod, fmt.Sprintf("unknown method %q", method))
}

// RequestTimedOut creates a "request.timed_out" error.
func RequestTimedOut(requestID string) *CodedError {
	return New(CodeRequestTimedOut, fmt.Sprintf("request %s timed out", requestID))
}

// StaleResponse creates a "request.stale_response" error.
// The response was a duplicate, arrived after a timeout, or was never requested.
func StaleResponse(requestID string) *CodedError {
	return New(CodeRequestStaleResponse, fmt.Sprintf("no pending request %s (duplicate or stale response)", requestID))
}

// RequestDuplicate creates a "request.duplicate" error.
func RequestDuplicate(requestID string) *CodedError {
	return New(CodeRequestDuplicate, fmt.Sprintf("request %s is already pending", requestID))
}

// RequestCancelled creates a "request.cancelled" error.
func RequestCancelled(requestID string, cause error) *CodedError {
	return Wrap(CodeRequestCancelled, fmt.Sprintf("request %s cancelled", requestID), cause)
}

// UnknownView creates a "viewstate.unknown_view" error.
func UnknownView(viewID string) *CodedError {
	return New(CodeViewUnknown, fmt.Sprintf("view %s is not open", viewID))
}

// UnknownDocument creates a "viewstate.unknown_document" error.
func UnknownDocument(documentID string) *CodedError {
	return New(CodeDocumentUnknown, fmt.Sprintf("document %s is not open", documentID))
}
