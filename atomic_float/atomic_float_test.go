package atomic_float

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicFloat64(t *testing.T) {
	Convey("When values are read and written", t, func() {
		af := NewAtomicFloat64(1.5)
		So(af.AtomicRead(), ShouldEqual, 1.5)

		af.AtomicSet(-10)
		So(af.AtomicRead(), ShouldEqual, -10.0)

		So(af.AtomicSwap(3), ShouldEqual, -10.0)
		So(af.AtomicRead(), ShouldEqual, 3.0)

		var zero AtomicFloat64
		So(zero.AtomicRead(), ShouldEqual, 0.0)
	})

	Convey("When multiple writers swap values concurrently", t, func() {
		af := NewAtomicFloat64(0)
		numOps := 2000
		numWriters := 50

		start := make(chan struct{})
		wg := sync.WaitGroup{}
		wg.Add(numWriters)
		swapped := make([]float64, numWriters)
		swapper := func(writer int) {
			defer wg.Done()
			<-start
			for i := 0; i < numOps; i++ {
				swapped[writer] += af.AtomicSwap(1)
			}
		}

		for i := 0; i < numWriters; i++ {
			go swapper(i)
		}

		close(start)
		wg.Wait()

		// Every stored value is swapped out exactly once, except the one left in the cell.
		total := af.AtomicRead()
		for _, sum := range swapped {
			total += sum
		}
		So(total, ShouldEqual, float64(numOps*numWriters))
	})

	Convey("When a reader polls while a single writer stores", t, func() {
		af := NewAtomicFloat64(0)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 1; i <= 1000; i++ {
				af.AtomicSet(float64(i))
			}
		}()

		// Reads never observe a torn or stale-then-older value.
		monotonic := true
		last := 0.0
		for finished := false; !finished; {
			select {
			case <-done:
				finished = true
			default:
			}
			val := af.AtomicRead()
			if val < last {
				monotonic = false
			}
			last = val
		}
		So(monotonic, ShouldBeTrue)
		So(af.AtomicRead(), ShouldEqual, 1000.0)
	})
}
