// Package audio defines what the bridge needs from the host's audio stack:
// output devices, the per-application sessions playing on them, volume
// control and change notifications.
package audio

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown device or session IDs.
var ErrNotFound = errors.New("audio: not found")

// SessionID is an opaque handle to a session. It stays valid across
// snapshots; writes through a stale handle fail with ErrNotFound.
type SessionID string

// Device is an audio output device.
type Device struct {
	ID   string
	Name string
}

// Session is one application's audio stream on a device.
type Session struct {
	ID          SessionID
	DeviceID    string
	DisplayName string
	// Volume is a fraction in [0, 1].
	Volume   float64
	IconPath string
}

// EventType identifies a change of topology or of a session's volume.
type EventType int

const (
	EventSessionAdded EventType = iota + 1
	EventSessionRemoved
	EventDefaultDeviceChanged
	EventDevicesChanged
	EventVolumeChanged
)

func (t EventType) String() string {
	switch t {
	case EventSessionAdded:
		return "session-added"
	case EventSessionRemoved:
		return "session-removed"
	case EventDefaultDeviceChanged:
		return "default-device-changed"
	case EventDevicesChanged:
		return "devices-changed"
	case EventVolumeChanged:
		return "volume-changed"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is a change notification.
type Event struct {
	Type      EventType
	DeviceID  string
	SessionID SessionID
}

// Source is a host audio backend.
type Source interface {
	// Devices lists output devices in enumeration order.
	Devices() ([]Device, error)
	DefaultDevice() (Device, error)
	SetDefaultDevice(id string) error
	// Sessions lists a device's sessions in enumeration order.
	Sessions(deviceID string) ([]Session, error)
	// SetVolume sets a session's volume, clamped to [0, 1].
	SetVolume(id SessionID, volume float64) error
	Events() <-chan Event
}
