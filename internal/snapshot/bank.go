package snapshot

import (
	"math/rand"
	"sync"
)

// bankColors are blue, red, green, cyan, magenta and yellow in R5G6B5.
var bankColors = [...]uint16{31, 63488, 2016, 2047, 63519, 65504}

// ColorBank hands out fallback colors for apps without a usable icon. Each
// color is used once before any repeats.
type ColorBank struct {
	mu   sync.Mutex
	pool []uint16
	intn func(n int) int
}

// NewColorBank returns a full bank.
func NewColorBank() *ColorBank {
	return &ColorBank{intn: rand.Intn}
}

// Draw removes and returns a random color, refilling the bank first if it
// is empty.
func (b *ColorBank) Draw() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pool) == 0 {
		b.pool = append(b.pool[:0], bankColors[:]...)
	}
	i := b.intn(len(b.pool))
	c := b.pool[i]
	b.pool = append(b.pool[:i], b.pool[i+1:]...)
	return c
}
