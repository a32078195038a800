// Package gpu manages the GPU-resident state of the progressive tracer.
//
// [BufferManager] owns the render target, the sphere buffer, the skybox
// buffer and the frame-parameter uniform. It hands out typed handles that
// become unusable once the buffer behind them is released or replaced.
// [Kernel] builds the trace pipeline once and dispatches it over a target,
// caching the bind group until one of the bound buffers changes.
//
// Everything goes through [gpucore.GPUAdapter], so the package runs against
// the wgpu backend and the in-memory test adapter alike.
package gpu
