package snapshot

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mixdeck-io/mixdeck/internal/models"
)

// Override is the per-application customization.
type Override struct {
	Rename   string
	Priority *int
	Color    *uint16
}

// Overrides maps a raw display name to its override. It is built once and
// only read afterwards.
type Overrides map[string]Override

// NewOverrides builds the table from settings. Later entries win.
func NewOverrides(list []models.AppOverride) Overrides {
	out := make(Overrides, len(list))
	for _, o := range list {
		ov := Override{Rename: o.Rename}
		if o.Priority != nil {
			p := *o.Priority
			ov.Priority = &p
		}
		if o.Color != nil {
			c := uint16(*o.Color)
			ov.Color = &c
		}
		out[o.Name] = ov
	}
	return out
}

// Lookup matches the display name exactly.
func (o Overrides) Lookup(name string) (Override, bool) {
	ov, ok := o[name]
	return ov, ok
}

// SanitizeTitle folds accented letters to their base letter and replaces
// anything else outside printable ASCII with '?', which is all the
// display's font has.
func SanitizeTitle(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}
