package protocol

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/icon"
	"github.com/mixdeck-io/mixdeck/internal/serial"
	"github.com/mixdeck-io/mixdeck/internal/snapshot"
)

// Link is the part of serial.Link the controller writes through.
type Link interface {
	Send(encode func() ([]byte, error)) error
	Transfer(fn func(serial.Conn) error) error
}

// Options configures a Controller.
type Options struct {
	IconSize int
	// SendClock adds the time of day to data frames.
	SendClock bool
	Now       func() time.Time
	Verbose   bool
}

// Stats counts image transfers.
type Stats struct {
	Transfers     int
	AckMismatches int
	Last          TransferStats
}

func (s Stats) String() string {
	return fmt.Sprintf("%d transfers, %d ack mismatches", s.Transfers, s.AckMismatches)
}

// Controller publishes snapshots to the device and serves its requests.
type Controller struct {
	link    Link
	builder *snapshot.Builder
	source  audio.Source
	icons   icon.Resolver
	opts    Options

	mu    sync.Mutex
	stats Stats
}

// NewController creates a controller. Wire HandleLine to the link's line
// hook and Publish to its connect hook.
func NewController(link Link, builder *snapshot.Builder, source audio.Source, icons icon.Resolver, opts Options) *Controller {
	if opts.IconSize <= 0 {
		opts.IconSize = DefaultIconSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		link:    link,
		builder: builder,
		source:  source,
		icons:   icons,
		opts:    opts,
	}
}

// Publish sends the current snapshot. The frame is encoded when the link
// is free, so it is never stale.
func (c *Controller) Publish() error {
	return c.link.Send(func() ([]byte, error) {
		var now time.Time
		if c.opts.SendClock {
			now = c.opts.Now()
		}
		return EncodeData(c.builder.Current(), now)
	})
}

// Refresh rebuilds the snapshot and publishes it. A failed rebuild still
// publishes the previous snapshot.
func (c *Controller) Refresh() error {
	_, rebuildErr := c.builder.Rebuild()
	if rebuildErr != nil {
		log.Printf("[protocol] Rebuild failed: %v", rebuildErr)
	}
	if err := c.Publish(); err != nil {
		return err
	}
	return rebuildErr
}

// Stats returns transfer counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HandleLine decodes and serves one inbound frame. Bad frames are
// dropped; nothing here can stop the listener.
func (c *Controller) HandleLine(line []byte) {
	req, err := Decode(line)
	switch {
	case errors.Is(err, ErrUnknownType):
		if c.opts.Verbose {
			log.Printf("[protocol] Ignoring frame: %v", err)
		}
		return
	case err != nil:
		log.Printf("[protocol] Dropping frame %q: %v", line, err)
		return
	}

	switch req.Type {
	case TypeIconRequest:
		if err := c.SendIcon(req.Index); err != nil {
			log.Printf("[protocol] Icon %d not delivered: %v", req.Index, err)
		}
	case TypeVolumeChange:
		c.setVolume(req.Index, req.Volume)
	case TypeDeviceChange:
		c.switchDevice(req.DeviceName)
	case TypeUpdateRequest:
		if err := c.Refresh(); err != nil {
			log.Printf("[protocol] Update not sent: %v", err)
		}
	case TypeLog:
		log.Printf("[device] level %d: %s", req.Level, req.Message)
	}
}

// SendIcon transfers the icon of snapshot entry index. An out-of-range
// index or an unresolvable icon is sent as a blank image.
func (c *Controller) SendIcon(index int) error {
	var img image.Image
	if e, ok := c.builder.Current().At(index); ok {
		resolved, err := c.icons.Resolve(e.IconRef)
		if err != nil {
			log.Printf("[protocol] Sending blank icon for %q: %v", e.Title, err)
		} else {
			img = resolved
		}
	} else if c.opts.Verbose {
		log.Printf("[protocol] Sending blank icon for stale index %d", index)
	}

	var stats TransferStats
	err := c.link.Transfer(func(conn serial.Conn) error {
		var err error
		stats, err = WriteImage(conn, img, c.opts.IconSize)
		return err
	})
	if errors.Is(err, serial.ErrNotConnected) {
		return err
	}

	c.mu.Lock()
	c.stats.Transfers++
	if errors.Is(err, ErrAckMismatch) {
		c.stats.AckMismatches++
	}
	c.stats.Last = stats
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if c.opts.Verbose {
		log.Printf("[protocol] Icon %d: %d bytes in %s (%.0f B/s)",
			index, stats.Bytes, stats.Elapsed, stats.BytesPerSecond())
	}
	return nil
}

func (c *Controller) setVolume(index int, volume float64) {
	e, ok := c.builder.Current().At(index)
	if !ok {
		return
	}
	v := volume / 100
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if err := c.source.SetVolume(e.Session, v); err != nil {
		log.Printf("[protocol] Volume of %q not set: %v", e.Title, err)
	}
}

func (c *Controller) switchDevice(name string) {
	devices, err := c.source.Devices()
	if err != nil {
		log.Printf("[protocol] Device list unavailable: %v", err)
		return
	}
	for _, d := range devices {
		if d.Name != name {
			continue
		}
		if err := c.source.SetDefaultDevice(d.ID); err != nil {
			log.Printf("[protocol] Device %q not selected: %v", name, err)
			return
		}
		if err := c.Refresh(); err != nil {
			log.Printf("[protocol] Update after device change not sent: %v", err)
		}
		return
	}
}
