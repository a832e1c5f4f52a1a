package scene

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes pipeline failures.
type ErrorKind string

const (
	// KindConfiguration means no API credential is configured. Fatal until fixed.
	KindConfiguration ErrorKind = "configuration"
	// KindDevice means the camera stream is not active or stopped delivering frames.
	KindDevice ErrorKind = "device"
	// KindDeviceUnavailable means the platform has no camera or access was denied.
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	// KindDecode means a camera frame could not be decoded or re-encoded.
	KindDecode ErrorKind = "decode"
	// KindRequest means a remote model call failed.
	KindRequest ErrorKind = "request"
	// KindFormat means input could not be converted into the remote transport format.
	KindFormat ErrorKind = "format"
)

// Error is the typed failure every pipeline stage returns at its boundary.
type Error struct {
	Kind    ErrorKind
	Op      string // stage that failed, e.g. "capture", "describe", "weave"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Camera reports whether the error belongs to the capture source rather than a remote call.
func (e *Error) Camera() bool {
	switch e.Kind {
	case KindDevice, KindDeviceUnavailable, KindDecode:
		return true
	default:
		return false
	}
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Errorf builds an Error with a formatted message and no wrapped cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrNotConfigured is returned by every remote stage built without a credential.
var ErrNotConfigured = &Error{
	Kind:    KindConfiguration,
	Message: "Gemini API key is not configured. Please set the GEMINI_API_KEY environment variable",
}
