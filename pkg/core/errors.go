package core

import (
	"errors"
	"fmt"
)

// Error is the common error shape for all voxhire components.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrPermissionDenied: the user or platform refused camera/microphone
	// access. Terminal for the attempt; callers decide whether to re-prompt.
	ErrPermissionDenied ErrorType = "permission_denied"

	// ErrDeviceUnavailable: no matching capture hardware exists.
	ErrDeviceUnavailable ErrorType = "device_unavailable"

	// ErrAudioInit: the output audio graph could not start.
	ErrAudioInit ErrorType = "audio_init_error"

	// ErrTransport: handshake timeout, unexpected close, or malformed
	// inbound payload on the live connection.
	ErrTransport ErrorType = "transport_error"

	// ErrRecordingUnsupported: no compatible recording container/codec.
	// Non-fatal; the call proceeds without an artifact.
	ErrRecordingUnsupported ErrorType = "recording_unsupported"

	// ErrUploadFailed: artifact persistence to external storage failed.
	ErrUploadFailed ErrorType = "upload_failed"

	// ErrInvalidRequest: the caller passed an unusable argument.
	ErrInvalidRequest ErrorType = "invalid_request_error"

	// ErrAPI: a hosted service returned a failure.
	ErrAPI ErrorType = "api_error"
)

// NewPermissionDeniedError creates a permission denial error.
func NewPermissionDeniedError(message string) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message}
}

// NewDeviceUnavailableError creates a missing-hardware error.
func NewDeviceUnavailableError(message string) *Error {
	return &Error{Type: ErrDeviceUnavailable, Message: message}
}

// NewAudioInitError creates an output-audio startup error wrapping the
// device-layer cause, if any.
func NewAudioInitError(message string, cause error) *Error {
	return &Error{Type: ErrAudioInit, Message: message, Cause: cause}
}

// NewTransportError creates a live-connection error wrapping the socket
// or decode cause, if any.
func NewTransportError(message string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: message, Cause: cause}
}

// NewTransportErrorWithCode creates a live-connection error with a code.
func NewTransportErrorWithCode(message, code string) *Error {
	return &Error{Type: ErrTransport, Message: message, Code: code}
}

// NewRecordingUnsupportedError creates a recording-capability error.
func NewRecordingUnsupportedError(message string) *Error {
	return &Error{Type: ErrRecordingUnsupported, Message: message}
}

// NewUploadFailedError creates an artifact-upload error wrapping the
// IO or HTTP cause, if any.
func NewUploadFailedError(message string, cause error) *Error {
	return &Error{Type: ErrUploadFailed, Message: message, Cause: cause}
}

// NewInvalidRequestError creates an invalid request error naming the
// offending parameter.
func NewInvalidRequestError(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewAPIError creates a hosted-service error carrying the upstream
// status or error code when one is known.
func NewAPIError(message, code string) *Error {
	return &Error{Type: ErrAPI, Message: message, Code: code}
}

// IsType reports whether err is (or wraps) a voxhire *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsFatalForCall reports whether the error must abort an interview call.
// Recording and upload failures degrade the call instead of ending it.
func IsFatalForCall(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Type {
	case ErrRecordingUnsupported, ErrUploadFailed:
		return false
	default:
		return true
	}
}
