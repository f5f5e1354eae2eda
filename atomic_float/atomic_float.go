package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 cell that may be read by other goroutines while the solver writes it.
// The value is stored as its IEEE-754 bits in an atomic.Uint64, so no unsafe pointer
// casts are needed and the zero value holds 0.0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns a cell holding val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.AtomicSet(val)
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet unconditionally stores val.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicSwap stores val and returns the previous value.
func (af *AtomicFloat64) AtomicSwap(val float64) (old float64) {
	return math.Float64frombits(af.bits.Swap(math.Float64bits(val)))
}
