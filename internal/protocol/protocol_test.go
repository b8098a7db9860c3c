package protocol

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/serial"
	"github.com/mixdeck-io/mixdeck/internal/snapshot"
)

// fakeConn records transfer writes and answers each row with ackFor(row).
type fakeConn struct {
	writes [][]byte
	acks   int
	ackFor func(row int) byte
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func (c *fakeConn) ReadAck() (byte, error) {
	row := c.acks
	c.acks++
	if c.ackFor == nil {
		return serial.AckByte, nil
	}
	return c.ackFor(row), nil
}

type fakeLink struct {
	mu           sync.Mutex
	disconnected bool
	frames       [][]byte
	conn         *fakeConn
}

func (l *fakeLink) Send(encode func() ([]byte, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disconnected {
		return serial.ErrNotConnected
	}
	data, err := encode()
	if err != nil {
		return err
	}
	l.frames = append(l.frames, data)
	return nil
}

func (l *fakeLink) Transfer(fn func(serial.Conn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disconnected {
		return serial.ErrNotConnected
	}
	if l.conn == nil {
		l.conn = &fakeConn{}
	}
	return fn(l.conn)
}

func (l *fakeLink) sent() []DataPacket {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []DataPacket
	for _, f := range l.frames {
		var p DataPacket
		if err := json.Unmarshal(f, &p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func TestWriteImageFullTransfer(t *testing.T) {
	conn := &fakeConn{}
	stats, err := WriteImage(conn, image.NewRGBA(image.Rect(0, 0, 16, 16)), DefaultIconSize)
	if err != nil {
		t.Fatalf("WriteImage() error = %v", err)
	}

	if len(conn.writes) != DefaultIconSize+1 {
		t.Fatalf("writes = %d, want %d rows plus end marker", len(conn.writes), DefaultIconSize)
	}
	for i, w := range conn.writes[:DefaultIconSize] {
		if len(w) != 2*DefaultIconSize {
			t.Fatalf("row %d is %d bytes, want %d", i, len(w), 2*DefaultIconSize)
		}
	}
	if last := conn.writes[DefaultIconSize]; !bytes.Equal(last, []byte{0xFF}) {
		t.Errorf("end marker = %x, want ff", last)
	}
	if stats.Rows != DefaultIconSize || stats.Bytes != DefaultIconSize*2*DefaultIconSize+1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWriteImageAbortsOnBadAck(t *testing.T) {
	conn := &fakeConn{ackFor: func(row int) byte {
		if row == 5 {
			return 0x00
		}
		return 0xFF
	}}

	stats, err := WriteImage(conn, nil, DefaultIconSize)
	if !errors.Is(err, ErrAckMismatch) {
		t.Fatalf("WriteImage() error = %v, want ErrAckMismatch", err)
	}
	if len(conn.writes) != 6 {
		t.Errorf("writes = %d, want 6 rows and nothing after the bad ack", len(conn.writes))
	}
	for _, w := range conn.writes {
		if len(w) == 1 {
			t.Error("end marker sent after aborted transfer")
		}
	}
	if stats.Rows != 5 {
		t.Errorf("stats.Rows = %d, want 5", stats.Rows)
	}
}

func TestWriteImageNilIsBlack(t *testing.T) {
	conn := &fakeConn{}
	if _, err := WriteImage(conn, nil, 8); err != nil {
		t.Fatal(err)
	}
	for i, w := range conn.writes[:8] {
		if !bytes.Equal(w, make([]byte, 16)) {
			t.Errorf("row %d = %x, want black", i, w)
		}
	}
}

func TestWriteImagePixelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 255, 0, 255})
	img.SetRGBA(0, 1, color.RGBA{0, 0, 255, 255})
	img.SetRGBA(1, 1, color.RGBA{255, 255, 255, 255})

	conn := &fakeConn{}
	if _, err := WriteImage(conn, img, 2); err != nil {
		t.Fatal(err)
	}
	want := [][]byte{
		{0xF8, 0x00, 0x07, 0xE0},
		{0x00, 0x1F, 0xFF, 0xFF},
		{0xFF},
	}
	for i := range want {
		if !bytes.Equal(conn.writes[i], want[i]) {
			t.Errorf("write %d = %x, want %x", i, conn.writes[i], want[i])
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr error
	}{
		{"icon", `{"type":"icon_request","index":2}`, Request{Type: TypeIconRequest, Index: 2}, nil},
		{"volume", `{"type":"volume_change","index":1,"volume":42.5}`, Request{Type: TypeVolumeChange, Index: 1, Volume: 42.5}, nil},
		{"device", `{"type":"device_change","deviceName":"Headphones"}`, Request{Type: TypeDeviceChange, DeviceName: "Headphones"}, nil},
		{"update", `{"type":"update_request"}`, Request{Type: TypeUpdateRequest}, nil},
		{"log", `{"type":"log","level":2,"message":"low memory"}`, Request{Type: TypeLog, Level: 2, Message: "low memory"}, nil},
		{"log without level", `{"type":"log","message":"booted"}`, Request{Type: TypeLog, Message: "booted"}, nil},
		{"log with text level", `{"type":"log","level":"warn","message":"x"}`, Request{}, ErrMalformed},
		{"unknown", `{"type":"dance"}`, Request{Type: "dance"}, ErrUnknownType},
		{"garbage", `{"type":`, Request{}, ErrMalformed},
		{"not an object", `[1,2]`, Request{}, ErrMalformed},
		{"no type", `{"index":1}`, Request{}, ErrMalformed},
		{"icon without index", `{"type":"icon_request"}`, Request{}, ErrMalformed},
		{"volume without volume", `{"type":"volume_change","index":0}`, Request{}, ErrMalformed},
		{"device without name", `{"type":"device_change"}`, Request{}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.line))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestEncodeData(t *testing.T) {
	s := &snapshot.Snapshot{
		Entries: []snapshot.AppEntry{
			{Title: "Spotify", Volume: 80, Color: 7852},
			{Title: "Chrome", Volume: 35, Color: 55879},
		},
		DefaultDevice: "Speakers",
		Devices:       []string{"Speakers", "Headphones"},
	}
	now := time.Date(2024, 3, 1, 1, 2, 3, 4_000_000, time.Local)

	data, err := EncodeData(s, now)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "data" || got["size"] != float64(2) || got["deviceCount"] != float64(2) {
		t.Errorf("header fields = %v", got)
	}
	if got["time"] != float64(3723004) {
		t.Errorf("time = %v, want 3723004", got["time"])
	}
	apps := got["applications"].([]any)
	first := apps[0].(map[string]any)
	if first["title"] != "Spotify" || first["volume"] != float64(80) || first["color"] != float64(7852) {
		t.Errorf("applications[0] = %v", first)
	}
}

func TestEncodeDataEmpty(t *testing.T) {
	data, err := EncodeData(&snapshot.Snapshot{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"applications":[]`)) {
		t.Errorf("EncodeData() = %s, want an empty applications array", data)
	}
	if bytes.Contains(data, []byte(`"time"`)) {
		t.Errorf("EncodeData() = %s, want no time without a clock", data)
	}
}

type controllerFixture struct {
	source     *audio.Memory
	builder    *snapshot.Builder
	link       *fakeLink
	controller *Controller
	speakers   audio.Device
	headphones audio.Device
	sessions   []audio.Session
}

type nopResolver struct{}

func (nopResolver) Resolve(string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func newFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{source: audio.NewMemory(), link: &fakeLink{}}
	f.speakers = f.source.AddDevice("Speakers")
	f.headphones = f.source.AddDevice("Headphones")
	for _, name := range []string{"Spotify", "Discord"} {
		s, err := f.source.AddSession(f.speakers.ID, audio.Session{DisplayName: name, Volume: 0.5, IconPath: name + ".png"})
		if err != nil {
			t.Fatal(err)
		}
		f.sessions = append(f.sessions, s)
	}
	f.source.AddSession(f.headphones.ID, audio.Session{DisplayName: "VLC", Volume: 1})

	var err error
	f.builder, err = snapshot.NewBuilder(f.source, nopResolver{}, nil, snapshot.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.builder.Rebuild(); err != nil {
		t.Fatal(err)
	}
	f.controller = NewController(f.link, f.builder, f.source, nopResolver{}, Options{})
	return f
}

func (f *controllerFixture) volume(t *testing.T, i int) float64 {
	t.Helper()
	sessions, err := f.source.Sessions(f.speakers.ID)
	if err != nil {
		t.Fatal(err)
	}
	return sessions[i].Volume
}

func TestControllerVolumeChange(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		index int
		want  float64
	}{
		{"sets fraction", `{"type":"volume_change","index":1,"volume":25}`, 1, 0.25},
		{"clamps above", `{"type":"volume_change","index":0,"volume":150}`, 0, 1},
		{"stale index", `{"type":"volume_change","index":7,"volume":10}`, 0, 0.5},
		{"negative index", `{"type":"volume_change","index":-1,"volume":10}`, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.controller.HandleLine([]byte(tt.line))
			if got := f.volume(t, tt.index); got != tt.want {
				t.Errorf("volume of session %d = %v, want %v", tt.index, got, tt.want)
			}
			if len(f.link.frames) != 0 {
				t.Errorf("volume change sent %d frames, want none", len(f.link.frames))
			}
		})
	}
}

func TestControllerIconRequestOutOfRangeSendsBlank(t *testing.T) {
	f := newFixture(t)
	f.controller.HandleLine([]byte(`{"type":"icon_request","index":9}`))

	conn := f.link.conn
	if conn == nil || len(conn.writes) != DefaultIconSize+1 {
		t.Fatalf("transfer incomplete: %+v", conn)
	}
	for _, w := range conn.writes[:DefaultIconSize] {
		if !bytes.Equal(w, make([]byte, 2*DefaultIconSize)) {
			t.Fatal("blank transfer carried non-black pixels")
		}
	}
	if s := f.controller.Stats(); s.Transfers != 1 || s.AckMismatches != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestControllerCountsAckMismatch(t *testing.T) {
	f := newFixture(t)
	f.link.conn = &fakeConn{ackFor: func(int) byte { return 0x01 }}

	err := f.controller.SendIcon(0)
	if !errors.Is(err, ErrAckMismatch) {
		t.Fatalf("SendIcon() error = %v, want ErrAckMismatch", err)
	}
	if s := f.controller.Stats(); s.AckMismatches != 1 || s.Last.Rows != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestControllerSendIconNotConnected(t *testing.T) {
	f := newFixture(t)
	f.link.disconnected = true

	if err := f.controller.SendIcon(0); !errors.Is(err, serial.ErrNotConnected) {
		t.Errorf("SendIcon() error = %v, want ErrNotConnected", err)
	}
	if s := f.controller.Stats(); s.Transfers != 0 {
		t.Errorf("Stats() = %+v, want no transfer counted", s)
	}
}

func TestControllerDeviceChange(t *testing.T) {
	f := newFixture(t)

	f.controller.HandleLine([]byte(`{"type":"device_change","deviceName":"Nowhere"}`))
	if len(f.link.frames) != 0 {
		t.Fatalf("unknown device sent %d frames", len(f.link.frames))
	}

	f.controller.HandleLine([]byte(`{"type":"device_change","deviceName":"Headphones"}`))
	def, err := f.source.DefaultDevice()
	if err != nil || def.ID != f.headphones.ID {
		t.Fatalf("default device = %+v, %v, want Headphones", def, err)
	}
	sent := f.link.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	if sent[0].DefaultDevice != "Headphones" || sent[0].Size != 1 || sent[0].Applications[0].Title != "VLC" {
		t.Errorf("frame = %+v", sent[0])
	}
}

func TestControllerUpdateRequestPublishes(t *testing.T) {
	f := newFixture(t)
	f.controller.HandleLine([]byte(`{"type":"update_request"}`))

	sent := f.link.sent()
	if len(sent) != 1 || sent[0].Size != 2 {
		t.Errorf("sent = %+v, want one frame with two apps", sent)
	}
}

func TestControllerDropsBadFrames(t *testing.T) {
	f := newFixture(t)
	for _, line := range []string{"", "not json", `{"type":"dance"}`, `{"index":0}`, "\xff\xfe"} {
		f.controller.HandleLine([]byte(line))
	}
	if len(f.link.frames) != 0 || f.link.conn != nil {
		t.Error("bad frames caused output")
	}
}

func TestControllerPublishUsesCurrentSnapshot(t *testing.T) {
	f := newFixture(t)
	f.source.RemoveSession(f.sessions[0].ID)

	if err := f.controller.Publish(); err != nil {
		t.Fatal(err)
	}
	if err := f.controller.Refresh(); err != nil {
		t.Fatal(err)
	}

	sent := f.link.sent()
	if len(sent) != 2 || sent[0].Size != 2 || sent[1].Size != 1 {
		t.Errorf("sent = %+v, want sizes 2 then 1", sent)
	}
}
