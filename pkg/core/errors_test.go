package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := NewTransportErrorWithCode("handshake timed out", "handshake_timeout")
	want := "transport_error: handshake timed out (code: handshake_timeout)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	plain := NewPermissionDeniedError("microphone access denied")
	if plain.Error() != "permission_denied: microphone access denied" {
		t.Errorf("Error() = %q", plain.Error())
	}

	caused := NewTransportError("dial live endpoint", fmt.Errorf("connection refused"))
	want = "transport_error: dial live endpoint: connection refused"
	if caused.Error() != want {
		t.Errorf("Error() = %q, want %q", caused.Error(), want)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("pipe broken")
	err := NewUploadFailedError("upload artifact", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is does not reach the cause")
	}
	if !IsType(err, ErrUploadFailed) {
		t.Errorf("IsType(ErrUploadFailed) = false")
	}

	none := NewAudioInitError("speaker closed", nil)
	if errors.Unwrap(none) != nil {
		t.Errorf("Unwrap() = %v for nil cause", errors.Unwrap(none))
	}
}

func TestIsType(t *testing.T) {
	t.Parallel()

	err := NewDeviceUnavailableError("no camera")
	if !IsType(err, ErrDeviceUnavailable) {
		t.Errorf("IsType(ErrDeviceUnavailable) = false")
	}
	if IsType(err, ErrTransport) {
		t.Errorf("IsType(ErrTransport) = true for device error")
	}

	wrapped := fmt.Errorf("start capture: %w", err)
	if !IsType(wrapped, ErrDeviceUnavailable) {
		t.Errorf("IsType should see through wrapping")
	}

	if IsType(fmt.Errorf("plain"), ErrTransport) {
		t.Errorf("IsType(plain error) = true")
	}
}

func TestIsFatalForCall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err   error
		fatal bool
	}{
		{NewPermissionDeniedError("denied"), true},
		{NewTransportError("closed", nil), true},
		{NewRecordingUnsupportedError("no encoder"), false},
		{NewUploadFailedError("storage returned 503", nil), false},
		{fmt.Errorf("unknown"), true},
	}
	for _, tc := range cases {
		if got := IsFatalForCall(tc.err); got != tc.fatal {
			t.Errorf("IsFatalForCall(%v) = %v, want %v", tc.err, got, tc.fatal)
		}
	}
}
