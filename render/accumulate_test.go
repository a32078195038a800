package render

import (
	"testing"

	"github.com/gogpu/raytrace/internal/parallel"
)

func approx(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1e-5
}

func TestAccumulatorRunningAverage(t *testing.T) {
	pool := parallel.NewWorkerPool(3)
	defer pool.Close()

	for _, p := range []*parallel.WorkerPool{nil, pool} {
		acc := NewAccumulator(p)
		acc.Resize(3, 5)
		n := 3 * 5 * 4

		a, b, c := make([]float32, n), make([]float32, n), make([]float32, n)
		for i := range n {
			a[i] = float32(i%7) * 0.1
			b[i] = 1 - float32(i%5)*0.2
			c[i] = float32(i) / float32(n)
		}

		acc.Add(a, 0)
		acc.Add(b, 1)
		acc.Add(c, 2)

		for i, got := range acc.Pixels() {
			want := (a[i] + b[i] + c[i]) / 3
			if !approx(got, want) {
				t.Fatalf("pixel float %d = %v, want %v", i, got, want)
			}
		}
	}
}

func TestAccumulatorSampleZeroReplaces(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Resize(2, 2)

	old := []float32{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	acc.Add(old, 0)
	acc.Add(old, 1)

	fresh := make([]float32, 16)
	for i := range fresh {
		fresh[i] = 0.5
	}
	acc.Add(fresh, 0)
	for i, v := range acc.Pixels() {
		if v != 0.5 {
			t.Fatalf("pixel float %d = %v after restart, want 0.5", i, v)
		}
	}
}

func TestAccumulatorResizeClears(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Resize(4, 4)
	data := make([]float32, 64)
	for i := range data {
		data[i] = 1
	}
	acc.Add(data, 0)

	acc.Resize(2, 2)
	if acc.Width() != 2 || acc.Height() != 2 || len(acc.Pixels()) != 16 {
		t.Fatalf("Resize(2, 2) = %dx%d with %d floats", acc.Width(), acc.Height(), len(acc.Pixels()))
	}
	for i, v := range acc.Pixels() {
		if v != 0 {
			t.Fatalf("pixel float %d = %v after resize, want 0", i, v)
		}
	}
}

func TestAccumulatorShortSampleIgnored(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Resize(2, 2)
	acc.Add([]float32{1, 2, 3}, 0)
	for _, v := range acc.Pixels() {
		if v != 0 {
			t.Fatal("short sample should be ignored")
		}
	}
}
