package snapshot

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/icon"
	"github.com/mixdeck-io/mixdeck/internal/palette"
	"github.com/mixdeck-io/mixdeck/internal/rgb565"
)

const defaultCacheSize = 128

// Options configures a Builder. Zero values take the display's defaults.
type Options struct {
	MaxApps         int
	MaxDevices      int
	DefaultPriority int
	AnalysisSize    int
	ASCIITitles     bool
	CacheSize       int
	Bank            *ColorBank
	Now             func() time.Time
}

// Builder turns the audio source's current state into Snapshots.
type Builder struct {
	source    audio.Source
	icons     icon.Resolver
	overrides Overrides
	bank      *ColorBank
	colors    *lru.Cache[[32]byte, uint16]
	opts      Options

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewBuilder creates a builder. Current returns an empty snapshot until
// the first Rebuild.
func NewBuilder(source audio.Source, icons icon.Resolver, overrides Overrides, opts Options) (*Builder, error) {
	if opts.MaxApps <= 0 {
		opts.MaxApps = 4
	}
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = 6
	}
	if opts.AnalysisSize <= 0 {
		opts.AnalysisSize = 64
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Bank == nil {
		opts.Bank = NewColorBank()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	colors, err := lru.New[[32]byte, uint16](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create color cache: %w", err)
	}

	b := &Builder{
		source:    source,
		icons:     icons,
		overrides: overrides,
		bank:      opts.Bank,
		colors:    colors,
		opts:      opts,
	}
	b.current.Store(&Snapshot{BuiltAt: opts.Now()})
	return b, nil
}

// Current returns the latest published snapshot. It is never nil.
func (b *Builder) Current() *Snapshot {
	return b.current.Load()
}

// Rebuild reads the source, publishes a new snapshot and returns it. On
// error the previous snapshot stays published.
func (b *Builder) Rebuild() (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	devices, err := b.source.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	snap := &Snapshot{BuiltAt: b.opts.Now()}
	for i, d := range devices {
		if i == b.opts.MaxDevices {
			break
		}
		snap.Devices = append(snap.Devices, d.Name)
	}

	def, err := b.source.DefaultDevice()
	switch {
	case errors.Is(err, audio.ErrNotFound):
		b.current.Store(snap)
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get default device: %w", err)
	}
	snap.DefaultDevice = def.Name

	sessions, err := b.source.Sessions(def.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of %s: %w", def.Name, err)
	}

	entries := make([]AppEntry, 0, len(sessions))
	colors := make([]*uint16, 0, len(sessions))
	for _, s := range sessions {
		e, color := b.entry(s)
		entries = append(entries, e)
		colors = append(colors, color)
	}

	// Sort indices so the override colors travel with their entries.
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return entries[order[i]].Priority < entries[order[j]].Priority
	})
	if len(order) > b.opts.MaxApps {
		order = order[:b.opts.MaxApps]
	}

	snap.Entries = make([]AppEntry, 0, len(order))
	for _, i := range order {
		e := entries[i]
		if colors[i] != nil {
			e.Color = *colors[i]
		} else {
			e.Color = b.iconColor(e.IconRef)
		}
		snap.Entries = append(snap.Entries, e)
	}

	b.current.Store(snap)
	return snap, nil
}

// entry applies overrides to a session. The returned color is the
// override color, if any.
func (b *Builder) entry(s audio.Session) (AppEntry, *uint16) {
	e := AppEntry{
		Title:    s.DisplayName,
		Volume:   volumePercent(s.Volume),
		IconRef:  s.IconPath,
		Priority: b.opts.DefaultPriority,
		Session:  s.ID,
	}

	var color *uint16
	if o, ok := b.overrides.Lookup(s.DisplayName); ok {
		if o.Priority != nil {
			e.Priority = *o.Priority
		}
		if o.Rename != "" {
			e.Title = o.Rename
		}
		color = o.Color
	}
	if b.opts.ASCIITitles {
		e.Title = SanitizeTitle(e.Title)
	}
	return e, color
}

// iconColor derives a color from the icon, falling back to the bank.
func (b *Builder) iconColor(ref string) uint16 {
	if ref == "" {
		return b.bank.Draw()
	}
	img, err := b.icons.Resolve(ref)
	if err != nil {
		log.Printf("[snapshot] No icon color for %s: %v", ref, err)
		return b.bank.Draw()
	}

	small := icon.Fit(img, b.opts.AnalysisSize)
	key := blake3.Sum256(small.Pix)
	if c, ok := b.colors.Get(key); ok {
		return c
	}

	c := rgb565.PackColor(palette.Extract(small).Accent1)
	b.colors.Add(key, c)
	return c
}

func volumePercent(v float64) int {
	p := int(math.RoundToEven(v * 100))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
