package raytrace

import "errors"

// Error taxonomy shared by all raytrace packages. Callers test for these
// with errors.Is; sub-packages wrap them with context.
var (
	// ErrConfiguration is returned when scene or renderer parameters are
	// invalid (for example a radius range with min > max). It is reported
	// before any generation work starts.
	ErrConfiguration = errors.New("raytrace: invalid configuration")

	// ErrDegenerateProjection is returned when the camera projection matrix
	// cannot be inverted. The renderer skips the frame and keeps its
	// accumulated samples.
	ErrDegenerateProjection = errors.New("raytrace: degenerate projection matrix")

	// ErrAllocation is returned when a GPU buffer or render target cannot be
	// allocated. The renderer drops back to Idle until a later allocation
	// succeeds.
	ErrAllocation = errors.New("raytrace: GPU allocation failed")

	// ErrKernelDispatch is returned when submitting the trace kernel or
	// reading its output fails. The frame is discarded and the sample
	// counter is left untouched.
	ErrKernelDispatch = errors.New("raytrace: kernel dispatch failed")

	// ErrReleased is returned when a GPU handle is used after the buffer it
	// referred to has been released or replaced.
	ErrReleased = errors.New("raytrace: GPU handle already released")

	// ErrClosed is returned when a renderer or buffer manager is used after
	// Close.
	ErrClosed = errors.New("raytrace: use after close")

	// ErrNoDevice is returned when no GPU device is available.
	ErrNoDevice = errors.New("raytrace: no GPU device available")
)
