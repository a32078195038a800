package render

import (
	"fmt"
	"math/rand/v2"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
)

// FrameState is everything the kernel needs for one sample.
// It is recomputed every tick; only SampleIndex carries over between ticks.
type FrameState struct {
	CameraToWorld     raytrace.Mat4
	InverseProjection raytrace.Mat4
	SunDirection      raytrace.Vec3
	SunIntensity      float32
	PixelJitter       raytrace.Vec2
	SampleIndex       uint32
}

// Bind computes the frame state for a sample. The jitter is two fresh
// uniform draws in [0, 1) from rng on every call.
//
// Bind fails with ErrDegenerateProjection when the projection matrix cannot
// be inverted; the caller must skip the frame.
func Bind(cam CameraState, sun LightState, sampleIndex uint32, rng *rand.Rand) (FrameState, error) {
	inv, ok := cam.Projection.Inverse()
	if !ok {
		return FrameState{}, fmt.Errorf("render: bind: %w", raytrace.ErrDegenerateProjection)
	}
	if rng == nil {
		return FrameState{}, fmt.Errorf("%w: render: bind: nil random source", raytrace.ErrConfiguration)
	}

	return FrameState{
		CameraToWorld:     cam.Transform,
		InverseProjection: inv,
		SunDirection:      sun.Direction.Normalize(),
		SunIntensity:      sun.Intensity,
		PixelJitter:       raytrace.V2(rng.Float32(), rng.Float32()),
		SampleIndex:       sampleIndex,
	}, nil
}

// Params lays the frame state out as the kernel's uniform block.
func (f *FrameState) Params(width, height, sphereCount, skyWidth, skyHeight int) gpucore.FrameParams {
	//nolint:gosec // sizes are validated, positive viewport and buffer dimensions
	return gpucore.FrameParams{
		CameraToWorld:     f.CameraToWorld,
		InverseProjection: f.InverseProjection,
		SunDirection:      f.SunDirection.Array(),
		SunIntensity:      f.SunIntensity,
		Jitter:            [2]float32{f.PixelJitter.X, f.PixelJitter.Y},
		Width:             uint32(width),
		Height:            uint32(height),
		SphereCount:       uint32(sphereCount),
		SkyboxWidth:       uint32(skyWidth),
		SkyboxHeight:      uint32(skyHeight),
		SampleIndex:       f.SampleIndex,
	}
}
