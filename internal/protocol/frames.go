// Package protocol speaks the display's wire format: newline-terminated
// JSON control frames and the acknowledged per-row image transfer.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mixdeck-io/mixdeck/internal/snapshot"
)

// Frame types.
const (
	TypeData          = "data"
	TypeIconRequest   = "icon_request"
	TypeVolumeChange  = "volume_change"
	TypeDeviceChange  = "device_change"
	TypeUpdateRequest = "update_request"
	TypeLog           = "log"
)

var (
	// ErrMalformed is returned for frames that are not JSON objects with
	// a type and the fields that type requires.
	ErrMalformed = errors.New("protocol: malformed frame")

	// ErrUnknownType is returned for well-formed frames of a type the
	// host does not handle.
	ErrUnknownType = errors.New("protocol: unknown frame type")
)

// Application is one entry of a data frame.
type Application struct {
	Title  string `json:"title"`
	Volume int    `json:"volume"`
	Color  uint16 `json:"color"`
}

// DataPacket is the host-to-device snapshot frame.
type DataPacket struct {
	Type          string        `json:"type"`
	Size          int           `json:"size"`
	Applications  []Application `json:"applications"`
	DefaultDevice string        `json:"defaultDevice"`
	AudioDevices  []string      `json:"audioDevices"`
	DeviceCount   int           `json:"deviceCount"`
	// Time is milliseconds since local midnight, for the device clock.
	Time *int64 `json:"time,omitempty"`
}

// NewDataPacket converts a snapshot. A zero now leaves the clock out.
func NewDataPacket(s *snapshot.Snapshot, now time.Time) DataPacket {
	p := DataPacket{
		Type:          TypeData,
		Size:          s.Size(),
		Applications:  make([]Application, 0, s.Size()),
		DefaultDevice: s.DefaultDevice,
		AudioDevices:  make([]string, 0, len(s.Devices)),
		DeviceCount:   len(s.Devices),
	}
	for _, e := range s.Entries {
		p.Applications = append(p.Applications, Application{
			Title:  e.Title,
			Volume: e.Volume,
			Color:  e.Color,
		})
	}
	p.AudioDevices = append(p.AudioDevices, s.Devices...)

	if !now.IsZero() {
		ms := msIntoDay(now)
		p.Time = &ms
	}
	return p
}

func msIntoDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(((h*60+m)*60+s)*1000 + t.Nanosecond()/int(time.Millisecond))
}

// EncodeData returns the data frame for s, without the trailing newline.
func EncodeData(s *snapshot.Snapshot, now time.Time) ([]byte, error) {
	data, err := json.Marshal(NewDataPacket(s, now))
	if err != nil {
		return nil, fmt.Errorf("failed to encode data frame: %w", err)
	}
	return data, nil
}

// Request is a decoded device-to-host frame. Only the fields of its Type
// are meaningful.
type Request struct {
	Type       string
	Index      int
	Volume     float64
	DeviceName string
	Level      int
	Message    string
}

type rawRequest struct {
	Type       *string  `json:"type"`
	Index      *int     `json:"index"`
	Volume     *float64 `json:"volume"`
	DeviceName *string  `json:"deviceName"`
	Level      int      `json:"level"`
	Message    string   `json:"message"`
}

// Decode parses one inbound line.
func Decode(line []byte) (Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(line, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return Request{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	req := Request{Type: *raw.Type}
	switch req.Type {
	case TypeIconRequest:
		if raw.Index == nil {
			return Request{}, fmt.Errorf("%w: %s without index", ErrMalformed, req.Type)
		}
		req.Index = *raw.Index
	case TypeVolumeChange:
		if raw.Index == nil || raw.Volume == nil {
			return Request{}, fmt.Errorf("%w: %s without index or volume", ErrMalformed, req.Type)
		}
		req.Index = *raw.Index
		req.Volume = *raw.Volume
	case TypeDeviceChange:
		if raw.DeviceName == nil {
			return Request{}, fmt.Errorf("%w: %s without deviceName", ErrMalformed, req.Type)
		}
		req.DeviceName = *raw.DeviceName
	case TypeUpdateRequest:
	case TypeLog:
		req.Level = raw.Level
		req.Message = raw.Message
	default:
		return req, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	return req, nil
}
