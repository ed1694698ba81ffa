package camera

import (
	"errors"
	"fmt"
)

// ErrorKind classifies acquisition failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNoDevice
	KindDeviceBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNoDevice:
		return "no_device"
	case KindDeviceBusy:
		return "device_busy"
	default:
		return "unknown"
	}
}

// AcquisitionError is returned when a feed cannot be granted. Its message is
// shown to the user as is.
type AcquisitionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return DefaultFailureMessage
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DefaultFailureMessage is used when a failure carries no message of its own.
const DefaultFailureMessage = "Failed to access camera"

// PermissionDenied builds a KindPermissionDenied error.
func PermissionDenied(format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// NoDevice builds a KindNoDevice error.
func NoDevice(format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: KindNoDevice, Message: fmt.Sprintf(format, args...)}
}

// DeviceBusy builds a KindDeviceBusy error.
func DeviceBusy(format string, args ...any) *AcquisitionError {
	return &AcquisitionError{Kind: KindDeviceBusy, Message: fmt.Sprintf(format, args...)}
}

// Message returns the user-facing text for any acquisition failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return acq.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultFailureMessage
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return acq.Kind
	}
	return KindUnknown
}
