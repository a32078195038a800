package gputest

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/raytrace/gpucore"
)

// DecodeFrameParams parses the uniform block written by FrameParams.Bytes.
func DecodeFrameParams(b []byte) gpucore.FrameParams {
	var p gpucore.FrameParams
	if len(b) < gpucore.FrameParamsSize {
		return p
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	u := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	for i := range 16 {
		p.CameraToWorld[i] = f(i * 4)
		p.InverseProjection[i] = f(64 + i*4)
	}
	p.SunDirection = [3]float32{f(128), f(132), f(136)}
	p.SunIntensity = f(140)
	p.Jitter = [2]float32{f(144), f(148)}
	p.Width = u(152)
	p.Height = u(156)
	p.SphereCount = u(160)
	p.SkyboxWidth = u(164)
	p.SkyboxHeight = u(168)
	p.SampleIndex = u(172)
	return p
}

// PixelKernel returns a Kernel that writes fn(params, x, y) to every
// in-bounds pixel covered by the dispatch grid, like the trace kernel's
// bounds check.
func PixelKernel(fn func(p gpucore.FrameParams, x, y int) [4]float32) Kernel {
	return func(d Dispatch, bindings map[uint32][]byte) {
		p := DecodeFrameParams(bindings[gpucore.BindingParams])
		out := bindings[gpucore.BindingOutput]
		w, h := int(p.Width), int(p.Height)
		for gy := 0; gy < int(d.Y)*gpucore.TileSize; gy++ {
			for gx := 0; gx < int(d.X)*gpucore.TileSize; gx++ {
				if gx >= w || gy >= h {
					continue
				}
				off := (gy*w + gx) * gpucore.PixelStride
				if off+gpucore.PixelStride > len(out) {
					continue
				}
				c := fn(p, gx, gy)
				for i, v := range c {
					binary.LittleEndian.PutUint32(out[off+i*4:], math.Float32bits(v))
				}
			}
		}
	}
}
