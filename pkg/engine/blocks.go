package engine

import (
	"github.com/seqviz/seqviz/pkg/series"
	"github.com/seqviz/seqviz/pkg/shape"
)

// WaveKind is the pre-classified waveform type tag supplied by the external
// parser. Trapezoid-family curves are exactly reconstructable from a handful
// of control points; arbitrary curves are sampled shapes.
type WaveKind int

const (
	WaveTrapezoid WaveKind = iota
	WaveExtTrapezoid
	WaveArbitrary
)

// Waveform describes one channel's curve within a block.
//
// Arbitrary waveforms reference a shared shape via Shape/Samples and are
// materialized on demand as Amplitude-scaled copies of the normalized shape,
// sampled every Dwell starting Delay after block start. Trapezoid-family
// waveforms instead carry their exact control points (times relative to
// block start, absolute values) and never need decimation.
type Waveform struct {
	Kind WaveKind

	Shape     shape.ID
	Samples   []float32 // raw shape samples; read only on the first cache fill
	Amplitude float64
	Delay     float64
	Dwell     float64

	CtrlTime  []float64
	CtrlValue []float64
}

// Block is one pre-classified pulse-sequence block: a start time, a duration
// and up to one waveform per channel.
type Block struct {
	Start     float64
	Duration  float64
	Waveforms map[series.Channel]*Waveform
}

// End returns the block's end time.
func (b *Block) End() float64 {
	return b.Start + b.Duration
}

// Waveform returns the channel's waveform, or nil.
func (b *Block) Waveform(ch series.Channel) *Waveform {
	if b.Waveforms == nil {
		return nil
	}
	return b.Waveforms[ch]
}

// Classifier decides whether a block/channel pair needs decimation. It is
// queried per block, not per sample, and must be O(1).
type Classifier func(b *Block, ch series.Channel) bool

// KindClassifier is the default complexity predicate: arbitrary sampled
// shapes are complex, trapezoid-family curves are simple.
func KindClassifier(b *Block, ch series.Channel) bool {
	wf := b.Waveform(ch)
	return wf != nil && wf.Kind == WaveArbitrary
}
