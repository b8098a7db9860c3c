// Package bridge wires the serial link, the snapshot builder and the audio
// source into the running display bridge.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/daemon/watcher"
	"github.com/mixdeck-io/mixdeck/internal/icon"
	"github.com/mixdeck-io/mixdeck/internal/models"
	"github.com/mixdeck-io/mixdeck/internal/protocol"
	"github.com/mixdeck-io/mixdeck/internal/serial"
	"github.com/mixdeck-io/mixdeck/internal/snapshot"
)

func init() {
	beeep.AppName = "mixdeck"
}

// Options configures a Bridge. Nil collaborators get the production ones.
type Options struct {
	Settings *models.Settings
	Verbose  bool

	Opener serial.Opener
	Source audio.Source
	Icons  icon.Resolver
	// Watcher, if set, reloads Scenario sources when their file changes.
	Watcher *watcher.Watcher
	Notify  func(title, message string) error
}

// Status is a point-in-time view of the bridge.
type Status struct {
	State          serial.State
	Port           string
	Baud           int
	ConnectedSince time.Time
	DefaultDevice  string
	Devices        []string
	Apps           []snapshot.AppEntry
	Transfers      protocol.Stats
}

// Bridge runs one display.
type Bridge struct {
	settings   *models.Settings
	verbose    bool
	link       *serial.Link
	builder    *snapshot.Builder
	controller *protocol.Controller
	source     audio.Source
	watcher    *watcher.Watcher
	notify     func(title, message string) error

	mu             sync.Mutex
	connectedSince time.Time
	wasConnected   bool
	stateHooks     []func(serial.State)
}

// New builds a bridge from settings.
func New(opts Options) (*Bridge, error) {
	s := opts.Settings
	if s == nil {
		s = models.NewSettings()
	}
	if opts.Source == nil {
		return nil, errors.New("bridge: no audio source")
	}
	if opts.Icons == nil {
		opts.Icons = icon.FileResolver{}
	}
	if opts.Opener == nil {
		opts.Opener = serial.SerialOpener{
			Name:        s.Serial.Port,
			Baud:        s.Serial.Baud,
			ReadTimeout: s.Serial.ReadTimeout.Std(),
		}
	}
	if opts.Notify == nil {
		opts.Notify = desktopNotify
	}

	builder, err := snapshot.NewBuilder(opts.Source, opts.Icons, snapshot.NewOverrides(s.Overrides), snapshot.Options{
		MaxApps:         s.Display.MaxApps,
		MaxDevices:      s.Display.MaxDevices,
		DefaultPriority: s.Display.DefaultPriority,
		AnalysisSize:    s.Display.AnalysisSize,
		ASCIITitles:     s.Display.ASCIITitles,
	})
	if err != nil {
		return nil, err
	}

	link := serial.NewLink(opts.Opener, serial.Options{
		Name:            s.Serial.Port,
		RetryInterval:   s.Serial.RetryInterval.Std(),
		BootDelay:       s.Serial.BootDelay.Std(),
		AckPollInterval: s.Serial.AckPollInterval.Std(),
		AckTimeout:      s.Serial.AckTimeout.Std(),
		Verbose:         opts.Verbose,
	})

	b := &Bridge{
		settings: s,
		verbose:  opts.Verbose,
		link:     link,
		builder:  builder,
		source:   opts.Source,
		watcher:  opts.Watcher,
		notify:   opts.Notify,
	}
	b.controller = protocol.NewController(link, builder, opts.Source, opts.Icons, protocol.Options{
		IconSize:  s.Display.IconSize,
		SendClock: s.Display.SendClock,
		Verbose:   opts.Verbose,
	})

	link.OnConnect(b.onConnect)
	link.OnLine(b.controller.HandleLine)
	link.OnStateChange(b.onStateChange)
	return b, nil
}

// OnStateChange registers an observer of link state changes. Observers run
// on their own goroutine. Register before Run.
func (b *Bridge) OnStateChange(fn func(serial.State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateHooks = append(b.stateHooks, fn)
}

// Run serves the display until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if _, err := b.builder.Rebuild(); err != nil {
		log.Printf("[bridge] Initial snapshot failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.watchAudio(ctx)
	}()
	if b.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.watchFiles(ctx)
		}()
	}

	err := b.link.Run(ctx)
	wg.Wait()
	return err
}

// Refresh rebuilds the snapshot and sends it if the display is connected.
func (b *Bridge) Refresh() error {
	err := b.controller.Refresh()
	if errors.Is(err, serial.ErrNotConnected) {
		return nil
	}
	return err
}

// Status reports link and snapshot state.
func (b *Bridge) Status() Status {
	snap := b.builder.Current()

	b.mu.Lock()
	since := b.connectedSince
	b.mu.Unlock()

	return Status{
		State:          b.link.State(),
		Port:           b.settings.Serial.Port,
		Baud:           b.settings.Serial.Baud,
		ConnectedSince: since,
		DefaultDevice:  snap.DefaultDevice,
		Devices:        append([]string(nil), snap.Devices...),
		Apps:           append([]snapshot.AppEntry(nil), snap.Entries...),
		Transfers:      b.controller.Stats(),
	}
}

func (b *Bridge) onConnect() {
	if err := b.controller.Refresh(); err != nil {
		log.Printf("[bridge] Initial update after connect failed: %v", err)
	}
}

// onStateChange runs with the serial-access lock possibly held, so all
// follow-up work happens on other goroutines.
func (b *Bridge) onStateChange(state serial.State) {
	b.mu.Lock()
	var notice string
	switch {
	case state == serial.Connected && !b.wasConnected:
		b.wasConnected = true
		b.connectedSince = time.Now()
		notice = fmt.Sprintf("Display connected on %s", b.settings.Serial.Port)
	case state == serial.Disconnected && b.wasConnected:
		b.wasConnected = false
		b.connectedSince = time.Time{}
		notice = fmt.Sprintf("Display on %s disconnected", b.settings.Serial.Port)
	}
	hooks := append(([]func(serial.State))(nil), b.stateHooks...)
	b.mu.Unlock()

	if notice != "" && b.settings.Notifications.Enabled {
		go func() {
			if err := b.notify("mixdeck", notice); err != nil && b.verbose {
				log.Printf("[bridge] Notification failed: %v", err)
			}
		}()
	}
	for _, fn := range hooks {
		go fn(state)
	}
}

// watchAudio republishes on every topology or volume change.
func (b *Bridge) watchAudio(ctx context.Context) {
	events := b.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if b.verbose {
				log.Printf("[bridge] Audio event %s", ev.Type)
			}
			if err := b.Refresh(); err != nil {
				log.Printf("[bridge] Update after %s failed: %v", ev.Type, err)
			}
		}
	}
}

// reloader is implemented by file-backed sources.
type reloader interface {
	Reload() error
}

func (b *Bridge) watchFiles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.watcher.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case watcher.EventScenarioChanged:
				r, ok := b.source.(reloader)
				if !ok {
					continue
				}
				if err := r.Reload(); err != nil {
					log.Printf("[bridge] Scenario not reloaded: %v", err)
				}
			case watcher.EventSettingsChanged:
				log.Printf("[bridge] %s changed; restart the daemon to apply", ev.Path)
				if b.settings.Notifications.Enabled {
					_ = b.notify("mixdeck", "Settings changed. Restart the daemon to apply them.")
				}
			}
		}
	}
}

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}
