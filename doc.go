// Package raytrace is a progressive GPU sphere tracer written in Pure Go.
//
// # Overview
//
// raytrace procedurally places non-overlapping spheres on a ground plane,
// traces them on the GPU with a WGSL compute kernel, and averages successive
// jittered single-sample frames into a progressively anti-aliased image.
// Whenever the viewpoint or viewport changes the accumulation restarts.
//
// # Quick Start
//
//	dev, err := wgpu.Open()
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	sc, err := scene.New(scene.DefaultConfig(), 42)
//	if err != nil {
//	    return err
//	}
//
//	r, err := render.New(dev.Adapter())
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	r.SetScene(sc)
//
//	for {
//	    res, err := r.Tick(render.FrameInput{Camera: cam, Sun: sun, Width: 1280, Height: 720})
//	    ...
//	}
//
// # Architecture
//
// The module is organized into:
//   - raytrace (this package): float32 math, error taxonomy, logging
//   - scene: sphere generation under rejection sampling
//   - gpucore: the kernel invocation boundary (GPUAdapter, GPU data layouts)
//   - render: parameter binding and the progressive accumulation loop
//   - skybox: environment image loading
//   - backend/wgpu: a GPUAdapter on gogpu/wgpu (Vulkan)
//
// # Coordinate System
//
// Right-handed, Y up. Spheres rest on the ground plane y = 0. Matrices are
// column-major to match WGSL mat4x4<f32>.
package raytrace

// Version is the current version of the module.
const Version = "0.1.0"
