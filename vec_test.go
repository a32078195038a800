package raytrace

import (
	"math"
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := V3(1, 2, 3)
	b := V3(4, -5, 6)

	if got := a.Add(b); got != V3(5, -3, 9) {
		t.Errorf("Add() = %v, want {5 -3 9}", got)
	}
	if got := a.Sub(b); got != V3(-3, 7, -3) {
		t.Errorf("Sub() = %v, want {-3 7 -3}", got)
	}
	if got := a.Mul(2); got != V3(2, 4, 6) {
		t.Errorf("Mul() = %v, want {2 4 6}", got)
	}
	if got := a.Dot(b); got != 12 {
		t.Errorf("Dot() = %v, want 12", got)
	}
	if got := V3(1, 0, 0).Cross(V3(0, 1, 0)); got != V3(0, 0, 1) {
		t.Errorf("Cross() = %v, want {0 0 1}", got)
	}
}

func TestVec3Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Vec3
		want Vec3
	}{
		{"axis", V3(0, 5, 0), V3(0, 1, 0)},
		{"zero", Vec3{}, Vec3{}},
		{"diagonal", V3(3, 0, 4), V3(0.6, 0, 0.8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if math.Abs(float64(got.X-tt.want.X)) > 1e-6 ||
				math.Abs(float64(got.Y-tt.want.Y)) > 1e-6 ||
				math.Abs(float64(got.Z-tt.want.Z)) > 1e-6 {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVec3Distance(t *testing.T) {
	if got := V3(1, 1, 1).Distance(V3(4, 5, 1)); got != 5 {
		t.Errorf("Distance() = %v, want 5", got)
	}
	if !(Vec3{}).IsZero() {
		t.Error("zero vector should report IsZero")
	}
	if Splat3(0.04).IsZero() {
		t.Error("Splat3(0.04) should not report IsZero")
	}
}
