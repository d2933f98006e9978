package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqviz/seqviz/pkg/series"
	"github.com/seqviz/seqviz/pkg/shape"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestDebouncer_LastRequestWins(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	d := NewDebouncer(200 * time.Millisecond)
	d.SetClock(clk.now)

	a := Viewport{Start: 0, End: 100, PixelWidth: 500}
	b := Viewport{Start: 50, End: 150, PixelWidth: 500}

	d.Notify(a)
	clk.advance(150 * time.Millisecond)
	_, ok := d.Poll()
	assert.False(t, ok, "quiet window not yet elapsed")

	// A second notification supersedes the first and restarts the window.
	d.Notify(b)
	clk.advance(150 * time.Millisecond)
	_, ok = d.Poll()
	assert.False(t, ok)

	clk.advance(50 * time.Millisecond)
	vp, ok := d.Poll()
	require.True(t, ok)
	assert.Equal(t, b, vp, "only the most recent viewport fires")

	_, ok = d.Poll()
	assert.False(t, ok, "a burst fires exactly once")
}

func TestDebouncer_SingleNotificationFires(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	d := NewDebouncer(200 * time.Millisecond)
	d.SetClock(clk.now)

	vp := Viewport{Start: 10, End: 20, PixelWidth: 300}
	d.Notify(vp)

	pending, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, vp, pending)

	clk.advance(200 * time.Millisecond)
	got, ok := d.Poll()
	require.True(t, ok)
	assert.Equal(t, vp, got)

	_, ok = d.Pending()
	assert.False(t, ok)
}

func TestWheelCoalescer_SumsDeltasPerTick(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	w := NewWheelCoalescer(14 * time.Millisecond)
	w.SetClock(clk.now)

	w.Add(1)
	clk.advance(5 * time.Millisecond)
	w.Add(2)
	clk.advance(5 * time.Millisecond)
	w.Add(-0.5)

	_, ok := w.Poll()
	assert.False(t, ok, "tick has not elapsed")

	clk.advance(4 * time.Millisecond)
	sum, ok := w.Poll()
	require.True(t, ok)
	assert.Equal(t, 2.5, sum)

	_, ok = w.Poll()
	assert.False(t, ok)
}

func TestWheelCoalescer_LaterDeltasDoNotExtendTick(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	w := NewWheelCoalescer(14 * time.Millisecond)
	w.SetClock(clk.now)

	w.Add(1)
	clk.advance(13 * time.Millisecond)
	w.Add(1)
	clk.advance(1 * time.Millisecond)

	// Flush happens 14ms after the first delta, not the last.
	sum, ok := w.Poll()
	require.True(t, ok)
	assert.Equal(t, 2.0, sum)

	// A new burst schedules a fresh tick.
	w.Add(3)
	_, ok = w.Poll()
	assert.False(t, ok)
	clk.advance(14 * time.Millisecond)
	sum, ok = w.Poll()
	require.True(t, ok)
	assert.Equal(t, 3.0, sum)
}

func TestEngineTick_RendersDebouncedViewport(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	e := New(nil)
	e.Debouncer().SetClock(clk.now)
	e.LoadBlocks([]*Block{{
		Start:    0,
		Duration: 1000,
		Waveforms: map[series.Channel]*Waveform{
			series.Gx: {
				Kind:      WaveArbitrary,
				Shape:     shape.ID{Wave: 1, Time: 1, Len: 1000},
				Samples:   sineSamples(1000),
				Amplitude: 1.0,
				Dwell:     1.0,
			},
		},
	}})

	e.NotifyViewport(Viewport{Start: 0, End: 1000, PixelWidth: 500})
	_, ok := e.Tick()
	assert.False(t, ok, "render waits for the quiet window")

	// Superseding notifications while waiting.
	clk.advance(100 * time.Millisecond)
	e.NotifyViewport(Viewport{Start: 100, End: 900, PixelWidth: 500})

	clk.advance(200 * time.Millisecond)
	out, ok := e.Tick()
	require.True(t, ok)
	assert.NotEmpty(t, out[series.Gx].Time)
	assert.Equal(t, Rendered, e.State())

	_, ok = e.Tick()
	assert.False(t, ok, "no pending viewport after the burst fired")
}
