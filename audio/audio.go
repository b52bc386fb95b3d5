package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DataCallback receives raw little-endian S16 mono PCM from the device.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context enumerates capture devices and opens them. One context lives for
// the whole process; capture devices are opened per recording session.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one open handle on the physical input. Close must be safe
// after Stop and must always release the underlying handle.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// DeviceErrorKind classifies why the input device could not be used.
type DeviceErrorKind int

const (
	DeviceUnavailable DeviceErrorKind = iota
	DevicePermissionDenied
)

func (k DeviceErrorKind) String() string {
	switch k {
	case DevicePermissionDenied:
		return "permission denied"
	default:
		return "unavailable"
	}
}

// DeviceError wraps a backend failure to open or read the input device.
type DeviceError struct {
	Kind DeviceErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("input device %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func classifyDeviceErr(err error) *DeviceError {
	kind := DeviceUnavailable
	msg := strings.ToLower(err.Error())
	if errors.Is(err, os.ErrPermission) ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "access denied") {
		kind = DevicePermissionDenied
	}
	return &DeviceError{Kind: kind, Err: err}
}
