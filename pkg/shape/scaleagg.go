package shape

import "math"

// ScaleAgg tracks, per shape, the shape's own extrema and the extreme
// instantiation scales seen across all blocks referencing it. From these the
// global extrema of every instantiation can be bounded without rescanning
// sample buffers: the derived maximum never undercounts the true maximum,
// which matters because it feeds axis range locking that must not clip data.
type ScaleAgg struct {
	ShapeMin    float64
	ShapeMax    float64
	MaxPosScale float64 // maximum non-negative scale encountered
	MinNegScale float64 // minimum (most negative) scale encountered
	hasShape    bool
}

// SetShape records the shape's own extrema. Only the first call takes
// effect; a shape's extrema do not change across instantiations.
func (a *ScaleAgg) SetShape(min, max float64) {
	if a.hasShape {
		return
	}
	a.ShapeMin = min
	a.ShapeMax = max
	a.hasShape = true
}

// UpdateScale folds one instantiation scale into the aggregate.
func (a *ScaleAgg) UpdateScale(s float64) {
	if s >= 0 {
		a.MaxPosScale = math.Max(a.MaxPosScale, s)
	} else {
		a.MinNegScale = math.Min(a.MinNegScale, s)
	}
}

// HasShape reports whether SetShape has been called.
func (a *ScaleAgg) HasShape() bool {
	return a.hasShape
}

// Extents returns the bounding (min, max) over every recorded instantiation:
// the fold of shape extrema against both extreme scales. ok is false until
// the shape extrema are known.
func (a *ScaleAgg) Extents() (min, max float64, ok bool) {
	if !a.hasShape {
		return 0, 0, false
	}
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, c := range [4]float64{
		a.ShapeMin * a.MaxPosScale,
		a.ShapeMax * a.MaxPosScale,
		a.ShapeMin * a.MinNegScale,
		a.ShapeMax * a.MinNegScale,
	} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		min = math.Min(min, c)
		max = math.Max(max, c)
	}
	if max < min {
		return 0, 0, false
	}
	return min, max, true
}

// Rescale applies a multiplicative factor to the recorded scale extrema,
// used when a unit change multiplies every instantiation scale uniformly.
// The factor must be positive: zero or negative factors would flip the
// pos/neg classification of the stored extrema, so they are rejected and the
// caller falls back to a full rebuild.
func (a *ScaleAgg) Rescale(factor float64) bool {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return false
	}
	a.MaxPosScale *= factor
	a.MinNegScale *= factor
	return true
}
