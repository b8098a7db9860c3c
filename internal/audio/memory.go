package audio

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// idNamespace derives stable IDs from names, so a reloaded topology keeps
// the handles of sessions that did not change.
var idNamespace = uuid.MustParse("6f1c2b0e-4d55-4c3a-9a57-2f7e0d8b1c44")

const eventBuffer = 64

// Memory is a Source held entirely in memory.
type Memory struct {
	mu        sync.RWMutex
	devices   []*memDevice
	defaultID string
	events    chan Event
}

type memDevice struct {
	Device
	sessions []Session
}

// NewMemory returns an empty source.
func NewMemory() *Memory {
	return &Memory{events: make(chan Event, eventBuffer)}
}

// Topology is a complete device and session layout.
type Topology struct {
	Default string       `yaml:"default"`
	Devices []DeviceSpec `yaml:"devices"`
}

// DeviceSpec describes one device in a Topology.
type DeviceSpec struct {
	Name     string        `yaml:"name"`
	Sessions []SessionSpec `yaml:"sessions"`
}

// SessionSpec describes one session in a Topology.
type SessionSpec struct {
	Name   string  `yaml:"name"`
	Volume float64 `yaml:"volume"`
	Icon   string  `yaml:"icon"`
}

// Load replaces the whole layout. The default device is the one named
// Default, else the first device.
func (m *Memory) Load(t Topology) {
	devices := make([]*memDevice, 0, len(t.Devices))
	defaultID := ""
	for i, ds := range t.Devices {
		d := &memDevice{Device: Device{
			ID:   stableID(fmt.Sprintf("device/%d/%s", i, ds.Name)),
			Name: ds.Name,
		}}
		for j, s := range ds.Sessions {
			d.sessions = append(d.sessions, Session{
				ID:          SessionID(stableID(fmt.Sprintf("%s/session/%d/%s", d.ID, j, s.Name))),
				DeviceID:    d.ID,
				DisplayName: s.Name,
				Volume:      clampVolume(s.Volume),
				IconPath:    s.Icon,
			})
		}
		devices = append(devices, d)
		if ds.Name == t.Default || (defaultID == "" && i == 0) {
			defaultID = d.ID
		}
	}

	m.mu.Lock()
	m.devices = devices
	m.defaultID = defaultID
	m.mu.Unlock()

	m.emit(Event{Type: EventDevicesChanged})
}

// AddDevice adds an empty device and returns it.
func (m *Memory) AddDevice(name string) Device {
	d := &memDevice{Device: Device{ID: uuid.NewString(), Name: name}}

	m.mu.Lock()
	m.devices = append(m.devices, d)
	if m.defaultID == "" {
		m.defaultID = d.ID
	}
	m.mu.Unlock()

	m.emit(Event{Type: EventDevicesChanged, DeviceID: d.ID})
	return d.Device
}

// AddSession appends a session to a device. A missing ID is generated.
func (m *Memory) AddSession(deviceID string, s Session) (Session, error) {
	m.mu.Lock()
	d := m.findDevice(deviceID)
	if d == nil {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	if s.ID == "" {
		s.ID = SessionID(uuid.NewString())
	}
	s.DeviceID = deviceID
	s.Volume = clampVolume(s.Volume)
	d.sessions = append(d.sessions, s)
	m.mu.Unlock()

	m.emit(Event{Type: EventSessionAdded, DeviceID: deviceID, SessionID: s.ID})
	return s, nil
}

// RemoveSession removes a session from whichever device holds it.
func (m *Memory) RemoveSession(id SessionID) error {
	m.mu.Lock()
	d, i := m.findSession(id)
	if d == nil {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	d.sessions = append(d.sessions[:i], d.sessions[i+1:]...)
	deviceID := d.ID
	m.mu.Unlock()

	m.emit(Event{Type: EventSessionRemoved, DeviceID: deviceID, SessionID: id})
	return nil
}

func (m *Memory) Devices() ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Device, len(m.devices))
	for i, d := range m.devices {
		out[i] = d.Device
	}
	return out, nil
}

func (m *Memory) DefaultDevice() (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.findDevice(m.defaultID)
	if d == nil {
		return Device{}, fmt.Errorf("default device: %w", ErrNotFound)
	}
	return d.Device, nil
}

func (m *Memory) SetDefaultDevice(id string) error {
	m.mu.Lock()
	if m.findDevice(id) == nil {
		m.mu.Unlock()
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	changed := m.defaultID != id
	m.defaultID = id
	m.mu.Unlock()

	if changed {
		m.emit(Event{Type: EventDefaultDeviceChanged, DeviceID: id})
	}
	return nil
}

func (m *Memory) Sessions(deviceID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.findDevice(deviceID)
	if d == nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return append([]Session(nil), d.sessions...), nil
}

func (m *Memory) SetVolume(id SessionID, volume float64) error {
	m.mu.Lock()
	d, i := m.findSession(id)
	if d == nil {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	volume = clampVolume(volume)
	changed := d.sessions[i].Volume != volume
	d.sessions[i].Volume = volume
	deviceID := d.ID
	m.mu.Unlock()

	if changed {
		m.emit(Event{Type: EventVolumeChanged, DeviceID: deviceID, SessionID: id})
	}
	return nil
}

func (m *Memory) Events() <-chan Event {
	return m.events
}

func (m *Memory) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("[audio] Event buffer full, dropping %s", ev.Type)
	}
}

func (m *Memory) findDevice(id string) *memDevice {
	for _, d := range m.devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (m *Memory) findSession(id SessionID) (*memDevice, int) {
	for _, d := range m.devices {
		for i, s := range d.sessions {
			if s.ID == id {
				return d, i
			}
		}
	}
	return nil, -1
}

func stableID(key string) string {
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
