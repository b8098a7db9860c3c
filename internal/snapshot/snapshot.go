// Package snapshot builds the ordered, size-bounded list of applications
// shown on the display.
package snapshot

import (
	"time"

	"github.com/mixdeck-io/mixdeck/internal/audio"
)

// AppEntry is one application as the display sees it. Entries are values
// and are never modified after publication.
type AppEntry struct {
	Title    string
	Volume   int // percent, 0..100
	Color    uint16
	IconRef  string
	Priority int
	Session  audio.SessionID
}

// Snapshot is an immutable view of what is playing.
type Snapshot struct {
	Entries       []AppEntry
	DefaultDevice string
	Devices       []string
	BuiltAt       time.Time
}

// Size returns the number of entries.
func (s *Snapshot) Size() int {
	return len(s.Entries)
}

// At returns entry i, or false if i is out of range.
func (s *Snapshot) At(i int) (AppEntry, bool) {
	if i < 0 || i >= len(s.Entries) {
		return AppEntry{}, false
	}
	return s.Entries[i], true
}
