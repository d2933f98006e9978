package series

import (
	"math"
	"sort"
)

// Channel identifies one of the fixed waveform channels of a pulse sequence.
// It selects the cache partition and classifier rule that apply to a curve.
type Channel int

const (
	ADCAmp Channel = iota
	ADCPhase
	RFMag
	RFPhase
	Gx
	Gy
	Gz

	NumChannels int = iota
)

var channelNames = [...]string{"adc_amp", "adc_phase", "rf_mag", "rf_phase", "gx", "gy", "gz"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "unknown"
	}
	return channelNames[c]
}

// Series is an ordered sequence of (time, value) pairs with strictly
// non-decreasing times. NaN values are explicit break markers used to render
// discontinuities (e.g. block edges). A Series is never mutated after it is
// handed to a consumer; every transformation produces a new one.
type Series struct {
	Time  []float64
	Value []float64
}

func (s Series) Len() int {
	return len(s.Time)
}

func (s Series) Empty() bool {
	return len(s.Time) == 0
}

// Append adds a sample to the end of the series.
func (s *Series) Append(t, v float64) {
	s.Time = append(s.Time, t)
	s.Value = append(s.Value, v)
}

// AppendBreak appends a NaN break marker. The last time is duplicated so the
// time axis stays monotonic while the value marks the discontinuity.
// Appending a break to an empty series or after an existing break is a no-op.
func (s *Series) AppendBreak() {
	if len(s.Time) == 0 || math.IsNaN(s.Value[len(s.Value)-1]) {
		return
	}
	s.Time = append(s.Time, s.Time[len(s.Time)-1])
	s.Value = append(s.Value, math.NaN())
}

// TrimTrailingBreak removes a trailing NaN break marker if present.
func (s *Series) TrimTrailingBreak() {
	if n := len(s.Value); n > 0 && math.IsNaN(s.Value[n-1]) {
		s.Time = s.Time[:n-1]
		s.Value = s.Value[:n-1]
	}
}

// Window returns the sub-series with times in [start, end]. The result shares
// the backing arrays and must be treated as read-only.
func (s Series) Window(start, end float64) Series {
	if len(s.Time) == 0 || end < start {
		return Series{}
	}
	lo := sort.SearchFloat64s(s.Time, start)
	hi := sort.Search(len(s.Time), func(i int) bool { return s.Time[i] > end })
	if lo >= hi {
		return Series{}
	}
	return Series{Time: s.Time[lo:hi], Value: s.Value[lo:hi]}
}

// Range scans for the minimum and maximum value, skipping NaN break markers.
// ok is false when the series holds no finite values.
func (s Series) Range() (min, max float64, ok bool) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, v := range s.Value {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max < min {
		return 0, 0, false
	}
	return min, max, true
}

// Clone returns a deep copy with its own backing arrays.
func (s Series) Clone() Series {
	if len(s.Time) == 0 {
		return Series{}
	}
	out := Series{
		Time:  make([]float64, len(s.Time)),
		Value: make([]float64, len(s.Value)),
	}
	copy(out.Time, s.Time)
	copy(out.Value, s.Value)
	return out
}
