// Package shape caches the reusable abstract waveform shapes of a loaded
// sequence. A shape is the normalized sample buffer referenced by the source
// format's waveform/time definitions; many blocks can instantiate the same
// shape with different amplitude scales, so the buffer and its extrema are
// stored once and shared. Entries live for the whole loaded sequence and are
// only cleared wholesale on reload.
package shape

import (
	"github.com/chewxy/math32"
)

// ID is the structural identity of a waveform shape: the source-format
// waveform definition id, time definition id, and sample count. It does not
// include per-block amplitude or time scaling.
type ID struct {
	Wave int
	Time int
	Len  int
}

// Entry owns one normalized shape buffer and its extrema. Amplitude and
// phase shapes are cached under distinct IDs since their extrema and
// normalization are independent.
type Entry struct {
	Norm []float32
	Min  float64
	Max  float64
}

// Materialize scales the normalized shape into absolute values.
func (e *Entry) Materialize(scale float64) []float64 {
	out := make([]float64, len(e.Norm))
	for i, n := range e.Norm {
		out[i] = float64(n) * scale
	}
	return out
}

// Cache maps shape identities to their single shared entry.
type Cache struct {
	entries map[ID]*Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[ID]*Entry)}
}

// Ensure returns the cached entry for id, creating it from raw on first
// reference. On a hit the raw samples are not inspected or copied again.
func (c *Cache) Ensure(raw []float32, id ID) *Entry {
	if e, ok := c.entries[id]; ok {
		return e
	}
	e := &Entry{Norm: make([]float32, len(raw))}
	copy(e.Norm, raw)
	mn := math32.Inf(1)
	mx := math32.Inf(-1)
	for _, v := range e.Norm {
		if math32.IsNaN(v) {
			continue
		}
		mn = math32.Min(mn, v)
		mx = math32.Max(mx, v)
	}
	if mx < mn {
		mn, mx = 0, 0
	}
	e.Min = float64(mn)
	e.Max = float64(mx)
	c.entries[id] = e
	return e
}

// Lookup returns the entry for id without creating one.
func (c *Cache) Lookup(id ID) (*Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache) Len() int {
	return len(c.entries)
}

// Clear drops every entry. Called only on sequence reload/close.
func (c *Cache) Clear() {
	c.entries = make(map[ID]*Entry)
}
