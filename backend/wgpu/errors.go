package wgpu

import "errors"

var (
	// ErrNoBackend is returned when the Vulkan HAL backend is not compiled in.
	ErrNoBackend = errors.New("wgpu: vulkan backend not available")

	// ErrNoAdapter is returned when no GPU adapter is found.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")

	// ErrNoHAL is returned when a device provider does not expose HAL
	// device and queue handles.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrTimeout is returned when the GPU does not signal a fence in time.
	ErrTimeout = errors.New("wgpu: GPU wait timed out")

	// ErrUnknownResource is returned when an ID does not name a live
	// resource.
	ErrUnknownResource = errors.New("wgpu: unknown resource")
)
