package engine

import (
	"math"

	"github.com/seqviz/seqviz/pkg/monitoring"
	"github.com/seqviz/seqviz/pkg/series"
	"github.com/seqviz/seqviz/pkg/shape"
)

// rangeAggregator maintains global per-channel value extrema, folded
// incrementally at load time so global range queries are O(1) instead of a
// scan over every materialized sample buffer.
//
// Three contributions per channel mirror the waveform kinds: per-shape scale
// aggregates for arbitrary shapes, scale extremes for trapezoids (whose
// curves span [0, amplitude]), and direct value extrema for extended
// trapezoids (arbitrary control points).
type rangeAggregator struct {
	shapeAggs [series.NumChannels]map[shape.ID]*shape.ScaleAgg

	trapMaxPos [series.NumChannels]float64
	trapMinNeg [series.NumChannels]float64
	trapSeen   [series.NumChannels]bool

	extMin [series.NumChannels]float64
	extMax [series.NumChannels]float64
}

func newRangeAggregator() *rangeAggregator {
	r := &rangeAggregator{}
	r.reset()
	return r
}

func (r *rangeAggregator) reset() {
	for ch := 0; ch < series.NumChannels; ch++ {
		r.shapeAggs[ch] = make(map[shape.ID]*shape.ScaleAgg)
		r.trapMaxPos[ch] = 0
		r.trapMinNeg[ch] = 0
		r.trapSeen[ch] = false
		r.extMin[ch] = math.Inf(1)
		r.extMax[ch] = math.Inf(-1)
	}
}

// fold incorporates one block's waveforms, consulting the shape cache for
// per-shape extrema. Called once per block at load time.
func (r *rangeAggregator) fold(b *Block, shapes *shape.Cache) {
	for ch, wf := range b.Waveforms {
		if wf == nil {
			continue
		}
		switch wf.Kind {
		case WaveTrapezoid:
			r.trapSeen[ch] = true
			s := wf.Amplitude
			if s >= 0 {
				r.trapMaxPos[ch] = math.Max(r.trapMaxPos[ch], s)
			} else {
				r.trapMinNeg[ch] = math.Min(r.trapMinNeg[ch], s)
			}
		case WaveExtTrapezoid:
			for _, v := range wf.CtrlValue {
				if math.IsNaN(v) {
					continue
				}
				r.extMin[ch] = math.Min(r.extMin[ch], v)
				r.extMax[ch] = math.Max(r.extMax[ch], v)
			}
		case WaveArbitrary:
			e := shapes.Ensure(wf.Samples, wf.Shape)
			agg, ok := r.shapeAggs[ch][wf.Shape]
			if !ok {
				agg = &shape.ScaleAgg{}
				r.shapeAggs[ch][wf.Shape] = agg
			}
			agg.SetShape(e.Min, e.Max)
			agg.UpdateScale(wf.Amplitude)
		}
	}
}

// globalRange folds every contribution for a channel into an unpadded
// (min, max). A channel with no data, or an inconsistent fold, substitutes
// the (-1, 1) fallback and logs the anomaly rather than failing.
func (r *rangeAggregator) globalRange(ch series.Channel) (float64, float64) {
	mn := math.Inf(1)
	mx := math.Inf(-1)

	for _, agg := range r.shapeAggs[ch] {
		amin, amax, ok := agg.Extents()
		if !ok {
			continue
		}
		mn = math.Min(mn, amin)
		mx = math.Max(mx, amax)
	}
	if r.trapSeen[ch] {
		mn = math.Min(mn, math.Min(0, r.trapMinNeg[ch]))
		mx = math.Max(mx, math.Max(0, r.trapMaxPos[ch]))
	}
	mn = math.Min(mn, r.extMin[ch])
	mx = math.Max(mx, r.extMax[ch])

	if math.IsInf(mn, 0) || math.IsInf(mx, 0) || mn > mx {
		monitoring.Logf("rangeagg: no usable extrema for channel %s, using fallback range", ch)
		return -1, 1
	}
	return mn, mx
}

// rescaleAmplitude applies a uniform multiplicative factor to a channel's
// aggregates, used for unit conversions. Factors that would flip sign
// classifications (<= 0) are refused.
func (r *rangeAggregator) rescaleAmplitude(ch series.Channel, factor float64) bool {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return false
	}
	for _, agg := range r.shapeAggs[ch] {
		agg.Rescale(factor)
	}
	r.trapMaxPos[ch] *= factor
	r.trapMinNeg[ch] *= factor
	if !math.IsInf(r.extMin[ch], 0) {
		r.extMin[ch] *= factor
	}
	if !math.IsInf(r.extMax[ch], 0) {
		r.extMax[ch] *= factor
	}
	return true
}
