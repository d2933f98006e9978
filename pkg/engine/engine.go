// Package engine decides, for any requested time window and pixel budget,
// which subset of samples to materialize for plotting, how to compute that
// subset cheaply and reproducibly, and how to reuse prior results across
// repeated or overlapping viewport requests.
//
// The engine is single-threaded by design: all decimation runs synchronously
// on the calling goroutine, and the caches are mutated only from that
// goroutine. Construct one engine per loaded sequence and discard it on
// reload.
package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/seqviz/seqviz/pkg/config"
	"github.com/seqviz/seqviz/pkg/decimate"
	"github.com/seqviz/seqviz/pkg/lodcache"
	"github.com/seqviz/seqviz/pkg/monitoring"
	"github.com/seqviz/seqviz/pkg/series"
	"github.com/seqviz/seqviz/pkg/shape"
)

// State is the render state of the currently displayed waveform set.
type State int

const (
	Idle State = iota
	PendingRender
	Rendered
)

// Viewport is the visible time window and the pixel budget it maps to.
// Ephemeral: recomputed on every interaction tick and compared against the
// previously rendered viewport to detect no-op requests.
type Viewport struct {
	Start      float64
	End        float64
	PixelWidth int
}

// Output holds the merged renderable series per channel.
type Output map[series.Channel]series.Series

type blockChannel struct {
	block int
	ch    series.Channel
}

type cachedOriginal struct {
	s  series.Series
	fp lodcache.Fingerprint
}

// Engine is the LOD decision engine. Not safe for concurrent use.
type Engine struct {
	cfg        *config.Config
	classifier Classifier

	blocks []*Block
	edges  []float64 // block start times plus the final end time

	shapes *shape.Cache
	lod    *lodcache.Cache
	agg    *rangeAggregator
	origs  map[blockChannel]cachedOriginal

	debouncer *Debouncer
	wheel     *WheelCoalescer

	useDownsampling bool
	lockYRanges     bool
	fixedRanges     [series.NumChannels][2]float64

	state        State
	lastViewport Viewport
	lastLevel    lodcache.Level
	lastOutput   Output

	initialViewport Viewport
	initialSaved    bool

	decimatorCalls int
}

// New creates an engine with the given tuning configuration. A nil cfg uses
// defaults.
func New(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		cfg:             cfg,
		classifier:      KindClassifier,
		shapes:          shape.NewCache(),
		lod:             lodcache.New(cfg.Cache.MaxEntries),
		agg:             newRangeAggregator(),
		origs:           make(map[blockChannel]cachedOriginal),
		debouncer:       NewDebouncer(cfg.Debounce.QuietWindow),
		wheel:           NewWheelCoalescer(cfg.Debounce.WheelInterval),
		useDownsampling: true,
		state:           Idle,
	}
}

// SetClassifier replaces the complexity predicate. Must be called before
// rendering.
func (e *Engine) SetClassifier(c Classifier) {
	if c != nil {
		e.classifier = c
	}
}

// LoadBlocks installs a freshly parsed block set, clearing all cached state
// from a previous load and folding the global range aggregates in a single
// pass. The shape cache is populated here so later renders only hit it.
func (e *Engine) LoadBlocks(blocks []*Block) {
	e.blocks = blocks
	e.shapes.Clear()
	e.lod.Clear()
	e.agg.reset()
	e.origs = make(map[blockChannel]cachedOriginal)
	e.state = Idle
	e.lastOutput = nil
	e.initialSaved = false
	e.decimatorCalls = 0

	e.edges = make([]float64, 0, len(blocks)+1)
	for _, b := range blocks {
		e.edges = append(e.edges, b.Start)
		e.agg.fold(b, e.shapes)
	}
	if len(blocks) > 0 {
		e.edges = append(e.edges, blocks[len(blocks)-1].End())
		e.initialViewport = Viewport{
			Start:      e.edges[0],
			End:        e.edges[len(e.edges)-1],
			PixelWidth: e.cfg.Decimation.DefaultPixels,
		}
		e.initialSaved = true
	}
}

// State returns the engine's render state.
func (e *Engine) State() State {
	return e.state
}

// Level returns the effective detail level implied by the downsampling
// preference.
func (e *Engine) Level() lodcache.Level {
	if e.useDownsampling {
		return lodcache.Downsampled
	}
	return lodcache.FullDetail
}

// SetUseDownsampling toggles the global downsampling preference. Changing it
// invalidates the rendered state so the next request re-renders.
func (e *Engine) SetUseDownsampling(use bool) {
	if e.useDownsampling == use {
		return
	}
	e.useDownsampling = use
	if e.state == Rendered {
		e.state = PendingRender
	}
}

// UseDownsampling reports the current preference.
func (e *Engine) UseDownsampling() bool {
	return e.useDownsampling
}

// LockYAxisRanges freezes the current global ranges so toggling detail level
// or panning never changes the vertical scale.
func (e *Engine) LockYAxisRanges() {
	for ch := series.Channel(0); int(ch) < series.NumChannels; ch++ {
		mn, mx := e.paddedRange(ch)
		e.fixedRanges[ch] = [2]float64{mn, mx}
	}
	e.lockYRanges = true
	if e.state == Rendered {
		e.state = PendingRender
	}
}

// UnlockYAxisRanges releases the frozen ranges.
func (e *Engine) UnlockYAxisRanges() {
	e.lockYRanges = false
	if e.state == Rendered {
		e.state = PendingRender
	}
}

// GlobalRange returns the padded global (min, max) for a channel, frozen
// while Y-axis locking is active. The result is always a positive-width
// range.
func (e *Engine) GlobalRange(ch series.Channel) (float64, float64) {
	if e.lockYRanges {
		return e.fixedRanges[ch][0], e.fixedRanges[ch][1]
	}
	return e.paddedRange(ch)
}

func (e *Engine) paddedRange(ch series.Channel) (float64, float64) {
	mn, mx := e.agg.globalRange(ch)
	pad := (mx - mn) * e.cfg.Range.PadFraction
	if pad == 0 {
		pad = 0.1
	}
	return mn - pad, mx + pad
}

// Debouncer returns the engine's viewport debouncer.
func (e *Engine) Debouncer() *Debouncer {
	return e.debouncer
}

// Wheel returns the engine's wheel-input coalescer.
func (e *Engine) Wheel() *WheelCoalescer {
	return e.wheel
}

// NotifyViewport records a viewport change through the debouncer.
func (e *Engine) NotifyViewport(vp Viewport) {
	e.debouncer.Notify(vp)
	if e.state == Rendered {
		e.state = PendingRender
	}
}

// Tick polls the debouncer and renders the most recent pending viewport once
// its quiet window has elapsed.
func (e *Engine) Tick() (Output, bool) {
	vp, ok := e.debouncer.Poll()
	if !ok {
		return nil, false
	}
	return e.Render(vp), true
}

// Render produces the merged renderable series for every channel visible in
// the viewport. Re-requesting an already rendered viewport with unchanged
// inputs returns the cached output without any recomputation.
func (e *Engine) Render(vp Viewport) Output {
	level := e.Level()
	if e.state == Rendered && vp == e.lastViewport && level == e.lastLevel {
		return e.lastOutput
	}
	e.state = PendingRender

	win := e.sanitizeViewport(vp)
	pixels := win.PixelWidth
	if pixels <= 0 {
		pixels = e.cfg.Decimation.DefaultPixels
	}
	margin := (win.End - win.Start) * e.cfg.Decimation.ViewportMargin
	x0, x1 := win.Start-margin, win.End+margin

	out := Output{}
	lo, hi := e.visibleBlocks(x0, x1)
	for bi := lo; bi <= hi; bi++ {
		b := e.blocks[bi]
		for ch := series.Channel(0); int(ch) < series.NumChannels; ch++ {
			if b.Waveform(ch) == nil {
				continue
			}
			rendered := e.renderBlock(bi, ch, level, pixels, x0, x1)
			if rendered.Empty() {
				continue
			}
			merged := out[ch]
			merged.AppendBreak()
			merged.Time = append(merged.Time, rendered.Time...)
			merged.Value = append(merged.Value, rendered.Value...)
			out[ch] = merged
		}
	}

	// Visual continuity: a channel with data but an empty slice renders its
	// segment nearest the viewport center instead of disappearing.
	center := 0.5 * (win.Start + win.End)
	for ch := series.Channel(0); int(ch) < series.NumChannels; ch++ {
		if _, ok := out[ch]; ok {
			continue
		}
		bi := e.nearestBlock(ch, center)
		if bi < 0 {
			continue
		}
		rendered := e.renderBlock(bi, ch, level, pixels, math.Inf(-1), math.Inf(1))
		if !rendered.Empty() {
			out[ch] = rendered
		}
	}

	for ch, s := range out {
		s.TrimTrailingBreak()
		out[ch] = s
	}

	e.lastViewport = vp
	e.lastLevel = level
	e.lastOutput = out
	e.state = Rendered
	if !e.initialSaved {
		e.initialViewport = vp
		e.initialSaved = true
	}
	e.lod.Cleanup()
	return out
}

// RenderSeries renders a single block/channel pair at an explicit detail
// level over the block's full span.
func (e *Engine) RenderSeries(block int, ch series.Channel, level lodcache.Level) series.Series {
	if block < 0 || block >= len(e.blocks) {
		return series.Series{}
	}
	pixels := e.cfg.Decimation.DefaultPixels
	return e.renderBlock(block, ch, level, pixels, math.Inf(-1), math.Inf(1))
}

// InitialViewport returns the first rendered (or loaded) full-span viewport,
// for view reset.
func (e *Engine) InitialViewport() (Viewport, bool) {
	return e.initialViewport, e.initialSaved
}

// Stats returns the LOD render cache counters.
func (e *Engine) Stats() lodcache.Stats {
	return e.lod.Stats()
}

// DecimatorCalls reports how many times a decimator has run since load.
func (e *Engine) DecimatorCalls() int {
	return e.decimatorCalls
}

// RescaleTime multiplies all cached time state by ratio, used when the time
// unit changes without reloading. Non-positive ratios would reorder time and
// are refused. Render-cache entries keyed by the old buffers become stale
// fingerprints; they age out through normal eviction.
func (e *Engine) RescaleTime(ratio float64) bool {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		monitoring.Logf("engine: refusing time rescale by %v", ratio)
		return false
	}
	floats.Scale(ratio, e.edges)
	for _, b := range e.blocks {
		b.Start *= ratio
		b.Duration *= ratio
		for _, wf := range b.Waveforms {
			if wf == nil {
				continue
			}
			wf.Delay *= ratio
			wf.Dwell *= ratio
			if len(wf.CtrlTime) > 0 {
				floats.Scale(ratio, wf.CtrlTime)
			}
		}
	}
	e.lastViewport.Start *= ratio
	e.lastViewport.End *= ratio
	e.initialViewport.Start *= ratio
	e.initialViewport.End *= ratio
	if pending, ok := e.debouncer.Pending(); ok {
		pending.Start *= ratio
		pending.End *= ratio
		e.debouncer.Notify(pending)
	}
	e.origs = make(map[blockChannel]cachedOriginal)
	if e.state == Rendered {
		e.state = PendingRender
	}
	return true
}

// RescaleAmplitude multiplies a channel's aggregated extrema by factor, used
// for unit conversions of locked ranges. Factors that would flip sign
// classifications are refused and logged; callers then rebuild from raw
// aggregates instead.
func (e *Engine) RescaleAmplitude(ch series.Channel, factor float64) bool {
	if !e.agg.rescaleAmplitude(ch, factor) {
		monitoring.Logf("engine: refusing amplitude rescale of %s by %v", ch, factor)
		return false
	}
	if e.lockYRanges {
		e.fixedRanges[ch][0] *= factor
		e.fixedRanges[ch][1] *= factor
	}
	return true
}

func (e *Engine) sanitizeViewport(vp Viewport) Viewport {
	if vp.End <= vp.Start {
		monitoring.Logf("engine: degenerate viewport [%v, %v], substituting fallback width", vp.Start, vp.End)
		vp.End = vp.Start + 1
	}
	return vp
}

// visibleBlocks returns the inclusive index range of blocks overlapping
// [x0, x1]; (0, -1) when none do.
func (e *Engine) visibleBlocks(x0, x1 float64) (int, int) {
	n := len(e.blocks)
	if n == 0 {
		return 0, -1
	}
	lo := sort.Search(n, func(i int) bool { return e.blocks[i].End() > x0 })
	hi := sort.Search(n, func(i int) bool { return e.blocks[i].Start >= x1 }) - 1
	if lo > hi {
		return 0, -1
	}
	return lo, hi
}

// renderBlock produces one block/channel's series clipped to [x0, x1],
// consulting the LOD render cache and decimating on a full miss. Simple
// curves emit their exact control points and never touch the cache.
func (e *Engine) renderBlock(bi int, ch series.Channel, level lodcache.Level, pixels int, x0, x1 float64) series.Series {
	b := e.blocks[bi]
	wf := b.Waveform(ch)
	if wf == nil {
		return series.Series{}
	}
	if !e.classifier(b, ch) {
		return simpleSeries(b, wf).Window(x0, x1)
	}

	o, ok := e.original(bi, ch)
	if !ok || o.s.Len() < 2 {
		// Absence of data is not a failure.
		return series.Series{}
	}

	rd, hit := e.lod.Get(o.fp, level)
	if !hit {
		var ds series.Series
		if level == lodcache.FullDetail {
			ds = o.s.Clone()
		} else {
			ds = e.decimateSeries(o.s, pixels)
		}
		e.lod.Put(o.fp, o.s.Time, o.s.Value, level, ds.Time, ds.Value, true)
		rd = lodcache.RenderData{Time: ds.Time, Value: ds.Value, FullSpan: true}
	}
	return series.Series{Time: rd.Time, Value: rd.Value}.Window(x0, x1)
}

// original memoizes the materialized absolute series and fingerprint for a
// block/channel. Absolute values are reconstructed from the shared
// normalized shape and the block's instantiation scale; merged absolute
// buffers are never stored.
func (e *Engine) original(bi int, ch series.Channel) (cachedOriginal, bool) {
	key := blockChannel{block: bi, ch: ch}
	if o, ok := e.origs[key]; ok {
		return o, true
	}
	b := e.blocks[bi]
	wf := b.Waveform(ch)
	if wf == nil || len(wf.Samples) == 0 {
		return cachedOriginal{}, false
	}
	entry := e.shapes.Ensure(wf.Samples, wf.Shape)
	vals := entry.Materialize(wf.Amplitude)
	times := make([]float64, len(vals))
	t0 := b.Start + wf.Delay
	for i := range times {
		times[i] = t0 + float64(i)*wf.Dwell
	}
	o := cachedOriginal{
		s:  series.Series{Time: times, Value: vals},
		fp: lodcache.NewFingerprint(bi, ch, times, vals),
	}
	e.origs[key] = o
	return o, true
}

// decimateSeries splits a series into contiguous segments at NaN breaks and
// at time gaps much larger than the local sample spacing, decimates each
// segment independently, and rejoins them with break markers so
// discontinuities survive decimation.
func (e *Engine) decimateSeries(s series.Series, pixels int) series.Series {
	d := e.cfg.Decimation
	if pixels <= 0 {
		pixels = d.DefaultPixels
	}
	var out series.Series
	for _, seg := range splitSegments(s, d.GapFactor) {
		n := seg.Len()
		var dt, dv []float64
		ppp := float64(n) / float64(pixels)
		switch {
		case n <= d.SmallSegment || ppp <= d.PassthroughRatio:
			dt, dv = seg.Time, seg.Value
		case ppp >= d.MinMaxThreshold:
			dt, dv = decimate.MinMax(seg.Time, seg.Value, pixels)
			e.decimatorCalls++
		default:
			target := int(math.Round(float64(pixels) * d.LTTBFactor))
			if target > d.CapPoints {
				target = d.CapPoints
			}
			if target > n {
				target = n
			}
			dt, dv = decimate.LTTB(seg.Time, seg.Value, target)
			e.decimatorCalls++
		}
		out.AppendBreak()
		out.Time = append(out.Time, dt...)
		out.Value = append(out.Value, dv...)
	}
	out.TrimTrailingBreak()
	return out
}

// nearestBlock finds the block carrying ch whose span is closest to t.
func (e *Engine) nearestBlock(ch series.Channel, t float64) int {
	best := -1
	bestDist := math.Inf(1)
	for bi, b := range e.blocks {
		if b.Waveform(ch) == nil {
			continue
		}
		var dist float64
		switch {
		case t < b.Start:
			dist = b.Start - t
		case t > b.End():
			dist = t - b.End()
		}
		if dist < bestDist {
			bestDist = dist
			best = bi
		}
	}
	return best
}

// simpleSeries emits a trapezoid-family waveform's exact control points in
// absolute coordinates.
func simpleSeries(b *Block, wf *Waveform) series.Series {
	s := series.Series{
		Time:  make([]float64, len(wf.CtrlTime)),
		Value: make([]float64, len(wf.CtrlValue)),
	}
	for i, t := range wf.CtrlTime {
		s.Time[i] = b.Start + t
	}
	copy(s.Value, wf.CtrlValue)
	return s
}

// splitSegments cuts a series into contiguous non-NaN runs, additionally
// breaking where the gap to the next sample exceeds gapFactor times the
// running minimum spacing seen within the run. Returned segments share the
// input's backing arrays.
func splitSegments(s series.Series, gapFactor float64) []series.Series {
	var segs []series.Series
	start := -1
	minDt := math.Inf(1)
	flush := func(end int) {
		if start >= 0 && end > start {
			segs = append(segs, series.Series{Time: s.Time[start:end], Value: s.Value[start:end]})
		}
		start = -1
		minDt = math.Inf(1)
	}
	for i := 0; i < s.Len(); i++ {
		if math.IsNaN(s.Value[i]) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		dt := s.Time[i] - s.Time[i-1]
		if dt > 0 {
			if dt > gapFactor*minDt {
				flush(i)
				start = i
				continue
			}
			minDt = math.Min(minDt, dt)
		}
	}
	flush(s.Len())
	return segs
}
