package perf

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window is a bounded FIFO of samples. Pushing into a full window evicts the
// oldest sample.
type Window struct {
	values []float64
	size   int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		values: make([]float64, 0, size),
		size:   size,
	}
}

func (w *Window) Push(v float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = v
		return
	}
	w.values = append(w.values, v)
}

func (w *Window) Len() int {
	return len(w.values)
}

func (w *Window) Cap() int {
	return w.size
}

// Mean returns the arithmetic mean, or 0 for an empty window.
func (w *Window) Mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return stat.Mean(w.values, nil)
}

// Max returns the largest sample, or 0 for an empty window.
func (w *Window) Max() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return floats.Max(w.values)
}

func (w *Window) Last() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return w.values[len(w.values)-1]
}

// CountAbove returns the number of samples strictly greater than limit.
func (w *Window) CountAbove(limit float64) int {
	n := 0
	for _, v := range w.values {
		if v > limit {
			n++
		}
	}
	return n
}

// Values returns a copy of the retained samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Reset() {
	w.values = w.values[:0]
}
