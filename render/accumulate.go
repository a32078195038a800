package render

import (
	"github.com/gogpu/raytrace/internal/parallel"
)

// Accumulator is the running average of traced samples, in linear RGBA
// float32, four floats per pixel.
type Accumulator struct {
	width, height int
	data          []float32
	pool          *parallel.WorkerPool
}

// NewAccumulator returns an empty accumulator that composites on pool.
// A nil pool composites on the calling goroutine.
func NewAccumulator(pool *parallel.WorkerPool) *Accumulator {
	return &Accumulator{pool: pool}
}

// Resize sets the accumulator size and clears it.
func (a *Accumulator) Resize(width, height int) {
	n := width * height * 4
	if cap(a.data) >= n {
		a.data = a.data[:n]
		clear(a.data)
	} else {
		a.data = make([]float32, n)
	}
	a.width, a.height = width, height
}

// Add blends sample into the average with weight 1/(sampleIndex+1).
// Sample 0 replaces the previous contents, which discards any earlier
// accumulation.
func (a *Accumulator) Add(sample []float32, sampleIndex uint32) {
	if len(sample) < len(a.data) {
		return
	}
	w := 1 / float32(sampleIndex+1)
	stride := a.width * 4

	blend := func(y0, y1 int) {
		acc := a.data[y0*stride : y1*stride]
		src := sample[y0*stride : y1*stride]
		if w == 1 {
			copy(acc, src)
			return
		}
		for i := range acc {
			acc[i] += (src[i] - acc[i]) * w
		}
	}

	if a.pool == nil {
		blend(0, a.height)
		return
	}
	a.pool.ForEachBand(a.height, blend)
}

// Width returns the accumulator width in pixels.
func (a *Accumulator) Width() int { return a.width }

// Height returns the accumulator height in pixels.
func (a *Accumulator) Height() int { return a.height }

// Pixels returns the accumulated pixels. The slice is owned by the
// accumulator and changes on the next Add.
func (a *Accumulator) Pixels() []float32 { return a.data }
