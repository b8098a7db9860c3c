package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/models"
)

type mapResolver struct {
	images map[string]image.Image
	calls  int
}

func (r *mapResolver) Resolve(ref string) (image.Image, error) {
	r.calls++
	img, ok := r.images[ref]
	if !ok {
		return nil, fmt.Errorf("no icon %s", ref)
	}
	return img, nil
}

// redOnBlack is a 64x64 black image with a red square in the middle.
func redOnBlack() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if x >= 16 && x < 48 && y >= 16 && y < 48 {
				c = color.RGBA{255, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func intPtr(v int) *int { return &v }

func colorPtr(v uint16) *models.PackedColor {
	c := models.PackedColor(v)
	return &c
}

func newTestBuilder(t *testing.T, src audio.Source, r *mapResolver, o Overrides, opts Options) *Builder {
	t.Helper()
	if r == nil {
		r = &mapResolver{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	}
	b, err := NewBuilder(src, r, o, opts)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func TestRebuildSortsAndTruncates(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		if _, err := m.AddSession(d.ID, audio.Session{DisplayName: name, Volume: 0.5}); err != nil {
			t.Fatal(err)
		}
	}

	o := NewOverrides([]models.AppOverride{
		{Name: "a", Priority: intPtr(9), Color: colorPtr(1)},
		{Name: "b", Priority: intPtr(2), Color: colorPtr(2)},
		{Name: "c", Color: colorPtr(3)},
		{Name: "d", Priority: intPtr(2), Color: colorPtr(4)},
		{Name: "e", Priority: intPtr(0), Color: colorPtr(5)},
		{Name: "f", Priority: intPtr(7), Color: colorPtr(6)},
	})
	b := newTestBuilder(t, m, nil, o, Options{DefaultPriority: 5})

	snap, err := b.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if snap.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", snap.Size())
	}

	want := []string{"e", "b", "d", "c"}
	for i, title := range want {
		if snap.Entries[i].Title != title {
			t.Errorf("entry %d = %q, want %q", i, snap.Entries[i].Title, title)
		}
	}
	for i := 1; i < snap.Size(); i++ {
		if snap.Entries[i-1].Priority > snap.Entries[i].Priority {
			t.Errorf("priorities not sorted: %+v", snap.Entries)
		}
	}
	if snap.Entries[0].Color != 5 || snap.Entries[3].Color != 3 {
		t.Errorf("override colors did not follow their entries: %+v", snap.Entries)
	}
	if b.Current() != snap {
		t.Error("Current() is not the rebuilt snapshot")
	}
}

func TestRebuildAppliesRenameAndSanitizes(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	m.AddSession(d.ID, audio.Session{DisplayName: "Google Chrome", Volume: 0.456})
	m.AddSession(d.ID, audio.Session{DisplayName: "Café Ωmega", Volume: 1})

	o := NewOverrides([]models.AppOverride{
		{Name: "Google Chrome", Rename: "Chrome", Color: colorPtr(55879)},
		{Name: "Café Ωmega", Color: colorPtr(1)},
	})
	b := newTestBuilder(t, m, nil, o, Options{ASCIITitles: true})

	snap, err := b.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	got := []AppEntry{snap.Entries[0], snap.Entries[1]}
	if got[0].Title != "Chrome" || got[0].Volume != 46 || got[0].Color != 55879 {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Title != "Cafe ?mega" || got[1].Volume != 100 {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestRebuildIconColor(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	m.AddSession(d.ID, audio.Session{DisplayName: "one", IconPath: "red.png"})
	m.AddSession(d.ID, audio.Session{DisplayName: "two", IconPath: "red-copy.png"})
	m.AddSession(d.ID, audio.Session{DisplayName: "three", IconPath: "missing.png"})

	r := &mapResolver{images: map[string]image.Image{
		"red.png":      redOnBlack(),
		"red-copy.png": redOnBlack(),
	}}
	bank := NewColorBank()
	bank.intn = func(int) int { return 0 }
	b := newTestBuilder(t, m, r, nil, Options{Bank: bank})

	snap, err := b.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if snap.Entries[0].Color != 63488 || snap.Entries[1].Color != 63488 {
		t.Errorf("icon colors = %d, %d, want red 63488", snap.Entries[0].Color, snap.Entries[1].Color)
	}
	if snap.Entries[2].Color != bankColors[0] {
		t.Errorf("missing icon color = %d, want bank color %d", snap.Entries[2].Color, bankColors[0])
	}
	if n := b.colors.Len(); n != 1 {
		t.Errorf("color cache holds %d entries, want 1 for identical pixels", n)
	}
}

func TestRebuildColorsOnlyVisibleEntries(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	for i := 0; i < 6; i++ {
		m.AddSession(d.ID, audio.Session{DisplayName: fmt.Sprintf("app%d", i), IconPath: "none"})
	}
	r := &mapResolver{}
	b := newTestBuilder(t, m, r, nil, Options{})

	if _, err := b.Rebuild(); err != nil {
		t.Fatal(err)
	}
	if r.calls != 4 {
		t.Errorf("resolver called %d times, want 4", r.calls)
	}
}

func TestRebuildDevices(t *testing.T) {
	m := audio.NewMemory()
	for i := 0; i < 8; i++ {
		m.AddDevice(fmt.Sprintf("dev%d", i))
	}
	b := newTestBuilder(t, m, nil, nil, Options{MaxDevices: 3})

	snap, err := b.Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Devices) != 3 || snap.Devices[2] != "dev2" {
		t.Errorf("Devices = %v", snap.Devices)
	}
	if snap.DefaultDevice != "dev0" {
		t.Errorf("DefaultDevice = %q, want dev0", snap.DefaultDevice)
	}
}

func TestRebuildWithoutDefaultDevice(t *testing.T) {
	b := newTestBuilder(t, audio.NewMemory(), nil, nil, Options{})
	if b.Current() == nil || b.Current().Size() != 0 {
		t.Fatal("Current() before first build should be empty and non-nil")
	}

	snap, err := b.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if snap.Size() != 0 || snap.DefaultDevice != "" {
		t.Errorf("Rebuild() = %+v, want empty", snap)
	}
}

type failingSource struct {
	*audio.Memory
	err error
}

func (s *failingSource) Sessions(string) ([]audio.Session, error) {
	return nil, s.err
}

func TestRebuildErrorKeepsPrevious(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	m.AddSession(d.ID, audio.Session{DisplayName: "a"})

	src := &failingSource{Memory: m}
	b := newTestBuilder(t, src, nil, nil, Options{})

	first, err := b.Rebuild()
	if err != nil {
		t.Fatal(err)
	}

	src.err = errors.New("backend gone")
	if _, err := b.Rebuild(); err == nil {
		t.Fatal("Rebuild() error = nil, want source error")
	}
	if b.Current() != first {
		t.Error("failed rebuild replaced the published snapshot")
	}
}

func TestSnapshotAt(t *testing.T) {
	s := &Snapshot{Entries: []AppEntry{{Title: "a"}, {Title: "b"}}}

	tests := []struct {
		index int
		ok    bool
	}{
		{-1, false},
		{0, true},
		{1, true},
		{2, false},
	}
	for _, tt := range tests {
		_, ok := s.At(tt.index)
		if ok != tt.ok {
			t.Errorf("At(%d) ok = %v, want %v", tt.index, ok, tt.ok)
		}
	}
}

func TestColorBankDrawsWithoutRepeats(t *testing.T) {
	b := NewColorBank()

	seen := make(map[uint16]bool)
	for i := 0; i < len(bankColors); i++ {
		c := b.Draw()
		if seen[c] {
			t.Fatalf("draw %d repeated color %d", i, c)
		}
		seen[c] = true
	}
	for _, c := range bankColors {
		if !seen[c] {
			t.Errorf("color %d never drawn", c)
		}
	}

	c := b.Draw()
	if !seen[c] {
		t.Errorf("draw after refill = %d, not a bank color", c)
	}
	if len(b.pool) != len(bankColors)-1 {
		t.Errorf("pool after refill draw = %d, want %d", len(b.pool), len(bankColors)-1)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spotify", "Spotify"},
		{"Café", "Cafe"},
		{"Pokémon Ñ", "Pokemon N"},
		{"日本", "??"},
		{"tab\there", "tab?here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverridesLookupIsExact(t *testing.T) {
	o := NewOverrides([]models.AppOverride{{Name: "Discord", Rename: "DC"}})
	if _, ok := o.Lookup("discord"); ok {
		t.Error("Lookup matched a different case")
	}
	if got, ok := o.Lookup("Discord"); !ok || got.Rename != "DC" {
		t.Errorf("Lookup(Discord) = %+v, %v", got, ok)
	}
}

func TestVolumePercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.456, 46},
		{0.125, 12},
		{0.375, 38},
		{0.625, 62},
		{1, 100},
		{1.2, 100},
		{-0.1, 0},
	}
	for _, tt := range tests {
		if got := volumePercent(tt.in); got != tt.want {
			t.Errorf("volumePercent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRebuildKeepsTitlesWithoutASCII(t *testing.T) {
	m := audio.NewMemory()
	d := m.AddDevice("Speakers")
	m.AddSession(d.ID, audio.Session{DisplayName: "Café Ωmega", Volume: 1})

	b := newTestBuilder(t, m, nil, NewOverrides(nil), Options{})
	snap, err := b.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if got := snap.Entries[0].Title; got != "Café Ωmega" {
		t.Errorf("title = %q, want it unchanged", got)
	}
}
