//go:build nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
)

// Device is unavailable in nogpu builds.
type Device struct{}

// Open always fails in nogpu builds.
func Open() (*Device, error) {
	return nil, fmt.Errorf("%w: %w", raytrace.ErrNoDevice, ErrNoBackend)
}

// NewFromProvider always fails in nogpu builds.
func NewFromProvider(gpucontext.DeviceProvider) (*Device, error) {
	return nil, fmt.Errorf("%w: %w", raytrace.ErrNoDevice, ErrNoBackend)
}

// Adapter returns nil.
func (d *Device) Adapter() gpucore.GPUAdapter { return nil }

// Close is a no-op.
func (d *Device) Close() error { return nil }
