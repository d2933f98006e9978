// Package lodcache stores ready-to-plot decimated series keyed by a
// per-block, per-channel fingerprint and a detail level. Entries track their
// last access time; when the cache grows past a high-water mark the oldest
// entries are evicted. Eviction is purely a performance concern: a miss
// makes the engine recompute from the still-available original buffers, so
// no render can be corrupted by it.
package lodcache

import (
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/seqviz/seqviz/pkg/series"
)

// Level is the granularity at which a waveform is rendered. Exactly two
// levels exist; Downsampled is the default.
type Level int

const (
	Downsampled Level = iota
	FullDetail
)

func (l Level) String() string {
	if l == FullDetail {
		return "full_detail"
	}
	return "downsampled"
}

// Fingerprint uniquely identifies one block/channel's concrete rendered
// buffer instance. The hash covers the exact time/value buffers so entries
// from before a reload, or from a different instantiation of a shared shape,
// never collide.
type Fingerprint struct {
	Block   int
	Channel series.Channel
	Hash    uint64
}

// NewFingerprint derives the fingerprint for a block/channel's original
// time/value buffers.
func NewFingerprint(block int, ch series.Channel, t, v []float64) Fingerprint {
	h := fnv.New64a()
	var buf [8]byte
	write := func(bits uint64) {
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf[:])
	}
	write(uint64(len(t)))
	for _, x := range t {
		write(math.Float64bits(x))
	}
	for _, x := range v {
		write(math.Float64bits(x))
	}
	return Fingerprint{Block: block, Channel: ch, Hash: h.Sum64()}
}

// RenderData is one decimated variant ready for plotting. FullSpan is set
// when the variant covers the entire original buffer, in which case any
// contained sub-window can be served by slicing instead of recomputation.
type RenderData struct {
	Time     []float64
	Value    []float64
	FullSpan bool
}

type entry struct {
	origTime   []float64
	origValue  []float64
	lod        map[Level]RenderData
	lastAccess time.Time
}

// Stats carries diagnostic counters. They are not load-bearing.
type Stats struct {
	Entries   int
	Hits      int
	Misses    int
	Evictions int
}

// Cache is the LOD render cache. Not safe for concurrent use; the engine
// mutates it from a single goroutine only.
type Cache struct {
	entries    map[Fingerprint]*entry
	maxEntries int
	now        func() time.Time
	hits       int
	misses     int
	evictions  int
}

// New creates a cache with the given high-water mark. A mark <= 0 falls back
// to a single entry.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		entries:    make(map[Fingerprint]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock replaces the timestamp source, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Get returns the cached variant for (fp, level). A hit refreshes the
// entry's last access time.
func (c *Cache) Get(fp Fingerprint, level Level) (RenderData, bool) {
	e, ok := c.entries[fp]
	if !ok {
		c.misses++
		return RenderData{}, false
	}
	rd, ok := e.lod[level]
	if !ok {
		c.misses++
		return RenderData{}, false
	}
	e.lastAccess = c.now()
	c.hits++
	return rd, true
}

// Original returns the un-decimated buffers stored for fp, if any.
func (c *Cache) Original(fp Fingerprint) (t, v []float64, ok bool) {
	e, ok := c.entries[fp]
	if !ok {
		return nil, nil, false
	}
	return e.origTime, e.origValue, true
}

// Put stores one decimated variant. The entry is created on first reference
// and accumulates variants per level lazily. fullSpan marks a variant that
// covers the entire original span.
func (c *Cache) Put(fp Fingerprint, origTime, origValue []float64, level Level, dt, dv []float64, fullSpan bool) {
	e, ok := c.entries[fp]
	if !ok {
		e = &entry{
			origTime:  origTime,
			origValue: origValue,
			lod:       make(map[Level]RenderData),
		}
		c.entries[fp] = e
	}
	prev, had := e.lod[level]
	if had && prev.FullSpan && !fullSpan {
		// Never replace a full-span variant with a partial one.
		e.lastAccess = c.now()
		return
	}
	e.lod[level] = RenderData{Time: dt, Value: dv, FullSpan: fullSpan}
	e.lastAccess = c.now()
}

// Cleanup evicts entries with the oldest last-access time until the cache is
// back under the high-water mark. Ties break arbitrarily.
func (c *Cache) Cleanup() {
	excess := len(c.entries) - c.maxEntries
	if excess <= 0 {
		return
	}
	type aged struct {
		fp Fingerprint
		at time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for fp, e := range c.entries {
		all = append(all, aged{fp: fp, at: e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < excess; i++ {
		delete(c.entries, all[i].fp)
		c.evictions++
	}
}

// Stats returns the current diagnostic counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Clear drops all entries and counters. Used on sequence reload.
func (c *Cache) Clear() {
	c.entries = make(map[Fingerprint]*entry)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}
