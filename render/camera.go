package render

import (
	"math"

	"github.com/gogpu/raytrace"
)

// CameraState is a snapshot of the viewpoint for one tick.
type CameraState struct {
	// Transform is the camera-to-world matrix.
	Transform raytrace.Mat4

	// Projection is the camera projection matrix.
	Projection raytrace.Mat4
}

// NewCamera returns a perspective camera at eye looking at target with +Y
// up. fovY is in radians.
func NewCamera(eye, target raytrace.Vec3, fovY float32, width, height int) CameraState {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return CameraState{
		Transform:  raytrace.LookAt(eye, target, raytrace.V3(0, 1, 0)),
		Projection: raytrace.Perspective(fovY, aspect, 0.1, 1000),
	}
}

// Equal reports whether c and o are bit-identical. Any change of any
// element, however small, makes them differ.
func (c CameraState) Equal(o CameraState) bool {
	return bitsEqual(c.Transform, o.Transform) && bitsEqual(c.Projection, o.Projection)
}

func bitsEqual(a, b raytrace.Mat4) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// LightState is the directional sun.
type LightState struct {
	// Direction is the direction the light travels (from the sun toward the
	// scene). It is normalized when bound.
	Direction raytrace.Vec3

	// Intensity scales the sun's contribution.
	Intensity float32
}

// DefaultSun is a late-afternoon sun used when no light is configured.
var DefaultSun = LightState{
	Direction: raytrace.V3(-0.4, -0.8, -0.45),
	Intensity: 1,
}

// IsZero reports whether l is the zero value.
func (l LightState) IsZero() bool {
	return l.Direction.IsZero() && l.Intensity == 0
}
