package gpucore

import (
	"encoding/binary"
	"math"
)

// Trace kernel binding indices in bind group 0.
const (
	BindingParams  = 0 // FrameParams (uniform)
	BindingSpheres = 1 // []GPUSphere (read-only storage)
	BindingSkybox  = 2 // packed RGBA8 texels (read-only storage)
	BindingOutput  = 3 // vec4<f32> per pixel (read-write storage)
)

// TileSize is the trace kernel's workgroup edge in pixels (8x8 threads).
const TileSize = 8

// DispatchGrid returns the workgroup counts covering a width x height
// target. Each axis is ceiling-divided by TileSize independently; the last
// tile on an axis may extend past the target and the kernel discards those
// threads.
func DispatchGrid(width, height int) [3]uint32 {
	return [3]uint32{ceilDiv(width, TileSize), ceilDiv(height, TileSize), 1}
}

func ceilDiv(n, d int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32((n + d - 1) / d) //nolint:gosec // n is a positive viewport dimension
}

// GPUSphere is the GPU layout of a sphere.
// Must match the Sphere struct in trace.wgsl.
type GPUSphere struct {
	Center    [3]float32 // World-space center
	Radius    float32    // Radius
	Diffuse   [3]float32 // Diffuse albedo (zero for metals)
	Shininess float32    // Specular exponent
	Specular  [3]float32 // Specular reflectance
	Padding   float32    // Padding for alignment
}

// SphereStride is the serialized size of GPUSphere in bytes.
const SphereStride = 48

// PackSpheres serializes spheres into a tightly packed little-endian buffer
// of len(spheres) * SphereStride bytes.
func PackSpheres(spheres []GPUSphere) []byte {
	out := make([]byte, len(spheres)*SphereStride)
	for i := range spheres {
		s := &spheres[i]
		w := out[i*SphereStride:]
		putVec3(w[0:], s.Center)
		putF32(w[12:], s.Radius)
		putVec3(w[16:], s.Diffuse)
		putF32(w[28:], s.Shininess)
		putVec3(w[32:], s.Specular)
		putF32(w[44:], s.Padding)
	}
	return out
}

// FrameParams is the per-frame uniform block.
// Must match the Params struct in trace.wgsl.
type FrameParams struct {
	CameraToWorld     [16]float32 // Column-major camera-to-world transform
	InverseProjection [16]float32 // Column-major inverse projection
	SunDirection      [3]float32  // Direction light travels
	SunIntensity      float32     // Sun intensity
	Jitter            [2]float32  // Sub-pixel offset in [0, 1)
	Width             uint32      // Target width in pixels
	Height            uint32      // Target height in pixels
	SphereCount       uint32      // Number of valid spheres
	SkyboxWidth       uint32      // Skybox width in pixels
	SkyboxHeight      uint32      // Skybox height in pixels
	SampleIndex       uint32      // Index of the sample being traced
}

// FrameParamsSize is the serialized size of FrameParams in bytes.
const FrameParamsSize = 176

// Bytes serializes the parameters in the kernel's uniform layout.
func (p *FrameParams) Bytes() []byte {
	out := make([]byte, FrameParamsSize)
	for i, v := range p.CameraToWorld {
		putF32(out[i*4:], v)
	}
	for i, v := range p.InverseProjection {
		putF32(out[64+i*4:], v)
	}
	putVec3(out[128:], p.SunDirection)
	putF32(out[140:], p.SunIntensity)
	putF32(out[144:], p.Jitter[0])
	putF32(out[148:], p.Jitter[1])
	binary.LittleEndian.PutUint32(out[152:], p.Width)
	binary.LittleEndian.PutUint32(out[156:], p.Height)
	binary.LittleEndian.PutUint32(out[160:], p.SphereCount)
	binary.LittleEndian.PutUint32(out[164:], p.SkyboxWidth)
	binary.LittleEndian.PutUint32(out[168:], p.SkyboxHeight)
	binary.LittleEndian.PutUint32(out[172:], p.SampleIndex)
	return out
}

// PixelStride is the size of one output pixel (vec4<f32>) in bytes.
const PixelStride = 16

// UnpackPixels decodes a little-endian vec4<f32> pixel buffer into dst,
// which must hold len(src)/4 floats.
func UnpackPixels(src []byte, dst []float32) {
	n := min(len(src)/4, len(dst))
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// PackPixels encodes float pixels as little-endian bytes. It is the inverse
// of UnpackPixels.
func PackPixels(src []float32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		putF32(out[i*4:], v)
	}
	return out
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func putVec3(b []byte, v [3]float32) {
	putF32(b[0:], v[0])
	putF32(b[4:], v[1])
	putF32(b[8:], v[2])
}
