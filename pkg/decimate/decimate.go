// Package decimate provides pure, stateless decimation of (time, value)
// series for display. Two algorithms are offered: LTTB (largest triangle
// three buckets), which preserves visual shape, and min-max per pixel bucket,
// which is cheaper and never omits a spike.
package decimate

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LTTB reduces a series to target points using the largest-triangle-three-
// buckets algorithm. The first and last input points are always kept
// verbatim. The N-2 interior points are split into target-2 contiguous
// buckets of nearly equal size (remainder distributed to the first buckets);
// from each bucket the point forming the largest-area triangle with the
// previously selected point and the centroid of the next bucket is kept.
// Area ties break toward the lower index.
//
// Degenerate inputs are returned as copies unchanged: len(t) <= target, or a
// target below 3 with fewer points than that available.
func LTTB(t, v []float64, target int) ([]float64, []float64) {
	n := len(t)
	if n == 0 || n != len(v) {
		return nil, nil
	}
	if target >= n {
		return copyPair(t, v)
	}
	if target < 3 {
		// Not enough room for interior points; keep the endpoints.
		if n == 1 || target <= 1 {
			return []float64{t[0]}, []float64{v[0]}
		}
		return []float64{t[0], t[n-1]}, []float64{v[0], v[n-1]}
	}

	outT := make([]float64, 0, target)
	outV := make([]float64, 0, target)
	outT = append(outT, t[0])
	outV = append(outV, v[0])

	interior := n - 2
	buckets := target - 2
	base := interior / buckets
	rem := interior % buckets

	// bucketStart returns the index of the first interior point of bucket b.
	bucketStart := func(b int) int {
		start := 1 + b*base
		if b < rem {
			start += b
		} else {
			start += rem
		}
		return start
	}

	prevT, prevV := t[0], v[0]
	for b := 0; b < buckets; b++ {
		lo := bucketStart(b)
		hi := bucketStart(b + 1) // exclusive

		// Centroid of the next bucket; the final point stands in for the
		// bucket past the last one.
		var cx, cy float64
		if b+1 < buckets {
			nlo := hi
			nhi := bucketStart(b + 2)
			m := float64(nhi - nlo)
			cx = floats.Sum(t[nlo:nhi]) / m
			cy = floats.Sum(v[nlo:nhi]) / m
		} else {
			cx, cy = t[n-1], v[n-1]
		}

		maxArea := -1.0
		maxIdx := lo
		for i := lo; i < hi; i++ {
			area := triangleArea(prevT, prevV, t[i], v[i], cx, cy)
			if area > maxArea {
				maxArea = area
				maxIdx = i
			}
		}
		outT = append(outT, t[maxIdx])
		outV = append(outV, v[maxIdx])
		prevT, prevV = t[maxIdx], v[maxIdx]
	}

	outT = append(outT, t[n-1])
	outV = append(outV, v[n-1])
	return outT, outV
}

// MinMax reduces a series to at most 2*buckets points by keeping the
// minimum- and maximum-value sample of each equal-width time bucket, emitted
// in time order (earlier extremum first). A bucket containing only NaN
// samples emits a single NaN placeholder so line breaks survive decimation.
// With buckets <= 0 the input degrades to a single bucket rather than
// failing; inputs already within budget are returned as copies unchanged.
func MinMax(t, v []float64, buckets int) ([]float64, []float64) {
	n := len(t)
	if n == 0 || n != len(v) {
		return nil, nil
	}
	if buckets <= 0 {
		buckets = 1
	}
	if n <= 2*buckets {
		return copyPair(t, v)
	}
	tMin, tMax := t[0], t[n-1]
	if tMax <= tMin {
		return copyPair(t, v)
	}

	outT := make([]float64, 0, 2*buckets)
	outV := make([]float64, 0, 2*buckets)
	width := (tMax - tMin) / float64(buckets)
	idx := 0
	for b := 0; b < buckets; b++ {
		lo := tMin + float64(b)*width
		hi := lo + width
		if b == buckets-1 {
			hi = tMax
		}
		for idx < n && t[idx] < lo {
			idx++
		}
		yMin, yMax := math.Inf(1), math.Inf(-1)
		var txMin, txMax float64
		sawNaN := false
		nanTime := 0.0
		j := idx
		for ; j < n && t[j] <= hi; j++ {
			y := v[j]
			if math.IsNaN(y) {
				if !sawNaN {
					sawNaN = true
					nanTime = t[j]
				}
				continue
			}
			if y < yMin {
				yMin = y
				txMin = t[j]
			}
			if y > yMax {
				yMax = y
				txMax = t[j]
			}
		}
		idx = j
		switch {
		case !math.IsInf(yMin, 1):
			if txMin <= txMax {
				outT = append(outT, txMin)
				outV = append(outV, yMin)
				if yMax != yMin || txMax != txMin {
					outT = append(outT, txMax)
					outV = append(outV, yMax)
				}
			} else {
				outT = append(outT, txMax)
				outV = append(outV, yMax)
				outT = append(outT, txMin)
				outV = append(outV, yMin)
			}
		case sawNaN:
			outT = append(outT, nanTime)
			outV = append(outV, math.NaN())
		}
	}
	return outT, outV
}

// triangleArea returns the area of the triangle spanned by three points,
// |(x2-x1)(y3-y1) - (x3-x1)(y2-y1)| / 2.
func triangleArea(x1, y1, x2, y2, x3, y3 float64) float64 {
	return math.Abs((x2-x1)*(y3-y1)-(x3-x1)*(y2-y1)) / 2.0
}

func copyPair(t, v []float64) ([]float64, []float64) {
	outT := make([]float64, len(t))
	outV := make([]float64, len(v))
	copy(outT, t)
	copy(outV, v)
	return outT, outV
}
