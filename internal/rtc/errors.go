package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrNoDevice         = errors.New("no capture device")
	ErrSignalingClosed  = errors.New("signaling channel closed")
	ErrCallEnded        = errors.New("call ended")
	ErrConnectionFailed = errors.New("connection failed")
)

// ErrorKind classifies a call error for the consuming UI.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission-denied"
	KindNoDevice         ErrorKind = "no-device"
	KindGeneric          ErrorKind = "generic"
)

// Classify maps an error to its user-facing kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNoDevice):
		return KindNoDevice
	default:
		return KindGeneric
	}
}

// CallError wraps a failure with the operation that produced it and a
// classification the portal can render directly.
type CallError struct {
	Op      string
	Kind    ErrorKind
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// UserMessage returns the actionable text shown to the participant: what was
// denied or missing and how to fix it.
func (e *CallError) UserMessage() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Microphone access denied. Please allow microphone permission in your browser settings (click the lock icon in the address bar) and refresh the page."
	case KindNoDevice:
		return "No camera or microphone found. Please connect a device and try again."
	default:
		return "Unable to access camera or microphone. Please check your device settings."
	}
}

// NewError builds a classified CallError.
func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Kind: Classify(err), Err: err}
}

// WrapError attaches free-form details alongside the classification.
func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Kind: Classify(err), Err: err, Details: details}
}
