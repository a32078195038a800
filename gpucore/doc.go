// Package gpucore defines the boundary between the render orchestrator and
// the GPU.
//
// The [GPUAdapter] interface abstracts over GPU backend implementations so
// that buffer management, kernel dispatch and accumulation are written once
// and run against:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/wgpu
//   - a recording fake used by the unit tests
//
// # Architecture
//
//	               +------------------+
//	               |      render      |
//	               | (Renderer, Binder)|
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |   internal/gpu   |
//	               | (BufferManager,  |
//	               |  Kernel)         |
//	               +--------+---------+
//	                        | gpucore.GPUAdapter
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  wgpu adapter   |          |   fake adapter  |
//	|  (hal.Device)   |          |    (tests)      |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// GPU resources are referenced through opaque IDs ([BufferID],
// [ComputePipelineID], ...). Adapters map IDs to backend objects and release
// them on the matching Destroy call. IDs are never reused.
//
// # Data Layouts
//
// [GPUSphere] and [FrameParams] mirror the structs in the trace kernel. Both
// are serialized little-endian with explicit padding to satisfy WGSL
// alignment rules for vec4 and mat4x4 members.
package gpucore
