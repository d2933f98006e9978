package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqviz/seqviz/pkg/config"
	"github.com/seqviz/seqviz/pkg/lodcache"
	"github.com/seqviz/seqviz/pkg/series"
	"github.com/seqviz/seqviz/pkg/shape"
)

func sineSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * 7 * float64(i) / float64(n)))
	}
	return out
}

func arbBlock(start float64, wave int, ch series.Channel, n int, amp float64) *Block {
	return &Block{
		Start:    start,
		Duration: float64(n),
		Waveforms: map[series.Channel]*Waveform{
			ch: {
				Kind:      WaveArbitrary,
				Shape:     shape.ID{Wave: wave, Time: wave, Len: n},
				Samples:   sineSamples(n),
				Amplitude: amp,
				Dwell:     1.0,
			},
		},
	}
}

func trapBlock(start float64, ch series.Channel, amp float64) *Block {
	return &Block{
		Start:    start,
		Duration: 100,
		Waveforms: map[series.Channel]*Waveform{
			ch: {
				Kind:      WaveTrapezoid,
				CtrlTime:  []float64{0, 10, 90, 100},
				CtrlValue: []float64{0, amp, amp, 0},
			},
		},
	}
}

func TestRender_IdempotentForUnchangedViewport(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.Gx, 50000, 2.5)})

	vp := Viewport{Start: 0, End: 50000, PixelWidth: 500}
	first := e.Render(vp)
	require.NotEmpty(t, first[series.Gx].Time)
	assert.Equal(t, Rendered, e.State())

	calls := e.DecimatorCalls()
	stats := e.Stats()
	require.Greater(t, calls, 0)

	second := e.Render(vp)
	assert.Equal(t, calls, e.DecimatorCalls(), "re-render of identical viewport must not decimate")
	assert.Equal(t, stats, e.Stats(), "re-render of identical viewport must not touch the cache")
	assert.Equal(t, first, second)
}

func TestRender_ContainedViewportServedBySlicing(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.Gx, 50000, 1.0)})

	e.Render(Viewport{Start: 0, End: 50000, PixelWidth: 500})
	calls := e.DecimatorCalls()

	out := e.Render(Viewport{Start: 10000, End: 20000, PixelWidth: 500})
	assert.Equal(t, calls, e.DecimatorCalls(), "contained viewport must reuse the full-span variant")
	s := out[series.Gx]
	require.False(t, s.Empty())
	// Sliced output stays within the margined window.
	margin := 10000 * 0.02
	assert.GreaterOrEqual(t, s.Time[0], 10000-margin-1)
	assert.LessOrEqual(t, s.Time[s.Len()-1], 20000+margin+1)
}

func TestRender_SimpleBlockEmitsControlPoints(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{trapBlock(1000, series.Gz, 4.0)})

	out := e.Render(Viewport{Start: 900, End: 1200, PixelWidth: 300})
	s := out[series.Gz]
	require.Equal(t, 4, s.Len())
	assert.Equal(t, []float64{1000, 1010, 1090, 1100}, s.Time)
	assert.Equal(t, []float64{0, 4, 4, 0}, s.Value)
	assert.Equal(t, 0, e.DecimatorCalls())
	assert.Equal(t, 0, e.Stats().Entries, "simple curves never enter the render cache")
}

func TestRender_DegenerateViewportFallsBack(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{trapBlock(0, series.Gx, 1.0)})

	assert.NotPanics(t, func() {
		out := e.Render(Viewport{Start: 50, End: 50, PixelWidth: 100})
		assert.NotEmpty(t, out[series.Gx].Time)
	})
}

func TestRender_DegenerateWaveformYieldsEmptySeries(t *testing.T) {
	b := arbBlock(0, 1, series.RFMag, 1, 1.0)
	e := New(nil)
	e.LoadBlocks([]*Block{b})

	out := e.Render(Viewport{Start: 0, End: 10, PixelWidth: 100})
	_, ok := out[series.RFMag]
	assert.False(t, ok, "a one-sample waveform renders as absent, not as an error")
}

func TestRender_DownsampledOutputIsBounded(t *testing.T) {
	e := New(nil)
	n := 100000
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.RFMag, n, 1.0)})

	pixels := 500
	out := e.Render(Viewport{Start: 0, End: float64(n), PixelWidth: pixels})
	s := out[series.RFMag]
	require.False(t, s.Empty())
	// 200 points per pixel selects min-max, which emits at most two per bucket.
	assert.LessOrEqual(t, s.Len(), 2*pixels+2)
	assert.Less(t, s.Len(), n/10)
}

func TestRender_FullDetailBypassesDecimation(t *testing.T) {
	e := New(nil)
	n := 20000
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.Gy, n, 3.0)})

	e.SetUseDownsampling(false)
	out := e.Render(Viewport{Start: 0, End: float64(n), PixelWidth: 500})
	s := out[series.Gy]
	assert.Equal(t, n, s.Len())
	assert.Equal(t, 0, e.DecimatorCalls())
}

func TestRender_LevelToggleInvalidatesRenderedState(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.Gx, 10000, 1.0)})

	vp := Viewport{Start: 0, End: 10000, PixelWidth: 400}
	down := e.Render(vp)
	assert.Equal(t, Rendered, e.State())

	e.SetUseDownsampling(false)
	assert.Equal(t, PendingRender, e.State())

	full := e.Render(vp)
	assert.Equal(t, Rendered, e.State())
	assert.Greater(t, full[series.Gx].Len(), down[series.Gx].Len())

	// Toggling back serves the retained downsampled variant without new
	// decimator work.
	e.SetUseDownsampling(true)
	calls := e.DecimatorCalls()
	again := e.Render(vp)
	assert.Equal(t, calls, e.DecimatorCalls())
	assert.Equal(t, down, again)
}

func TestRender_NearestBlockFallback(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{
		trapBlock(0, series.Gx, 1.0),
		trapBlock(10000, series.Gx, 2.0),
	})

	// Viewport in the dead zone between the two blocks.
	out := e.Render(Viewport{Start: 4000, End: 5000, PixelWidth: 200})
	s := out[series.Gx]
	require.False(t, s.Empty(), "a channel with data must not disappear")
	// The first block's end (100) is closer to the viewport center (4500)
	// than the second block's start (10000).
	assert.Equal(t, 1.0, s.Value[1], "nearest block is the first one")
	assert.Equal(t, 0.0, s.Time[0])
}

func TestGlobalRange_LockedRangesAreStable(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{
		arbBlock(0, 1, series.RFMag, 5000, 7.0),
		trapBlock(5000, series.Gx, -3.0),
	})

	e.LockYAxisRanges()
	rfLo, rfHi := e.GlobalRange(series.RFMag)
	gxLo, gxHi := e.GlobalRange(series.Gx)

	e.Render(Viewport{Start: 0, End: 6000, PixelWidth: 500})
	e.SetUseDownsampling(false)
	e.Render(Viewport{Start: 1000, End: 2000, PixelWidth: 500})

	lo, hi := e.GlobalRange(series.RFMag)
	assert.Equal(t, rfLo, lo)
	assert.Equal(t, rfHi, hi)
	lo, hi = e.GlobalRange(series.Gx)
	assert.Equal(t, gxLo, lo)
	assert.Equal(t, gxHi, hi)

	// Trapezoid ranges always include zero.
	assert.LessOrEqual(t, gxLo, -3.0)
	assert.GreaterOrEqual(t, gxHi, 0.0)
}

func TestGlobalRange_EmptyChannelFallback(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{trapBlock(0, series.Gx, 1.0)})

	lo, hi := e.GlobalRange(series.ADCPhase)
	assert.Less(t, lo, hi, "range is always positive-width")
	assert.Less(t, lo, 0.0)
	assert.Greater(t, hi, 0.0)
}

func TestGlobalRange_AvoidsBufferScans(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.RFMag, 5000, 7.0)})

	// Ranges derive from the load-time aggregates, not from rendering.
	lo, hi := e.GlobalRange(series.RFMag)
	assert.Less(t, lo, hi)
	assert.GreaterOrEqual(t, hi, 7.0*0.9)
	assert.Equal(t, 0, e.DecimatorCalls())
	assert.Equal(t, 0, e.Stats().Misses)
}

func TestRescaleTime(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(100, 1, series.Gx, 1000, 1.0)})
	e.Render(Viewport{Start: 100, End: 1100, PixelWidth: 500})

	require.True(t, e.RescaleTime(2))
	assert.Equal(t, 200.0, e.blocks[0].Start)
	assert.Equal(t, 2000.0, e.blocks[0].Duration)
	assert.Equal(t, 2.0, e.blocks[0].Waveforms[series.Gx].Dwell)
	assert.Equal(t, PendingRender, e.State())

	out := e.Render(Viewport{Start: 200, End: 2200, PixelWidth: 500})
	s := out[series.Gx]
	require.False(t, s.Empty())
	assert.InDelta(t, 200.0, s.Time[0], 1e-9)
}

func TestRescaleTime_RejectsNonPositive(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{trapBlock(0, series.Gx, 1.0)})

	assert.False(t, e.RescaleTime(0))
	assert.False(t, e.RescaleTime(-1))
	assert.False(t, e.RescaleTime(math.NaN()))
	assert.Equal(t, 0.0, e.blocks[0].Start)
	assert.Equal(t, 100.0, e.blocks[0].Duration)
}

func TestRescaleAmplitude(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{trapBlock(0, series.Gz, 4.0)})
	e.LockYAxisRanges()
	_, hi := e.GlobalRange(series.Gz)

	require.True(t, e.RescaleAmplitude(series.Gz, 2))
	_, hi2 := e.GlobalRange(series.Gz)
	assert.InDelta(t, 2*hi, hi2, 1e-9)

	assert.False(t, e.RescaleAmplitude(series.Gz, -1))
	assert.False(t, e.RescaleAmplitude(series.Gz, 0))
}

func TestRenderSeries_ExplicitLevel(t *testing.T) {
	e := New(nil)
	n := 50000
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.RFPhase, n, 1.0)})

	full := e.RenderSeries(0, series.RFPhase, lodcache.FullDetail)
	assert.Equal(t, n, full.Len())
	down := e.RenderSeries(0, series.RFPhase, lodcache.Downsampled)
	assert.Less(t, down.Len(), n)
	assert.Equal(t, series.Series{}, e.RenderSeries(5, series.RFPhase, lodcache.Downsampled))
}

func TestLoadBlocks_ResetsCachedState(t *testing.T) {
	e := New(nil)
	e.LoadBlocks([]*Block{arbBlock(0, 1, series.Gx, 20000, 1.0)})
	e.Render(Viewport{Start: 0, End: 20000, PixelWidth: 500})
	require.Greater(t, e.Stats().Entries, 0)

	e.LoadBlocks([]*Block{trapBlock(0, series.Gx, 1.0)})
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, 0, e.Stats().Entries)
	assert.Equal(t, 0, e.DecimatorCalls())

	vp, ok := e.InitialViewport()
	require.True(t, ok)
	assert.Equal(t, 0.0, vp.Start)
	assert.Equal(t, 100.0, vp.End)
}

func TestSplitSegments(t *testing.T) {
	nan := math.NaN()
	s := series.Series{
		Time:  []float64{0, 1, 2, 2, 3, 4, 100, 101, 102},
		Value: []float64{1, 2, 3, nan, 4, 5, 6, 7, 8},
	}
	segs := splitSegments(s, 10)
	require.Len(t, segs, 3)
	assert.Equal(t, []float64{0, 1, 2}, segs[0].Time)
	assert.Equal(t, []float64{3, 4}, segs[1].Time, "large gap after t=4 starts a new segment")
	assert.Equal(t, []float64{100, 101, 102}, segs[2].Time)
}

func TestSharedShapeMaterializedPerAmplitude(t *testing.T) {
	e := New(nil)
	// Two blocks instantiating the same shape at different amplitudes.
	b1 := arbBlock(0, 7, series.Gx, 1000, 1.0)
	b2 := arbBlock(1000, 7, series.Gx, 1000, -2.0)
	e.LoadBlocks([]*Block{b1, b2})
	assert.Equal(t, 1, e.shapes.Len(), "one shared shape entry for both blocks")

	e.SetUseDownsampling(false)
	out := e.Render(Viewport{Start: 0, End: 2000, PixelWidth: 500})
	s := out[series.Gx]
	require.False(t, s.Empty())
	mn, mx, ok := s.Range()
	require.True(t, ok)
	assert.InDelta(t, 2.0, mx, 0.05)
	assert.InDelta(t, -2.0, mn, 0.05)
}

func TestRender_CustomClassifier(t *testing.T) {
	e := New(config.Default())
	// Force everything through the simple path.
	e.SetClassifier(func(b *Block, ch series.Channel) bool { return false })
	b := arbBlock(0, 1, series.Gx, 10000, 1.0)
	b.Waveforms[series.Gx].CtrlTime = []float64{0, 10000}
	b.Waveforms[series.Gx].CtrlValue = []float64{0, 1}
	e.LoadBlocks([]*Block{b})

	out := e.Render(Viewport{Start: 0, End: 10000, PixelWidth: 100})
	assert.Equal(t, 2, out[series.Gx].Len())
	assert.Equal(t, 0, e.DecimatorCalls())
}
