//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend

	"github.com/gogpu/raytrace"
)

// GPUInfo describes the selected GPU.
type GPUInfo struct {
	Name       string
	DeviceType gputypes.DeviceType
}

// String returns a human-readable description of the GPU.
func (g GPUInfo) String() string {
	if g.Name == "" {
		return "external device"
	}
	return fmt.Sprintf("%s (%v)", g.Name, g.DeviceType)
}

// Device owns, or borrows, a hal.Device and its queue, and exposes them as
// a gpucore.GPUAdapter.
type Device struct {
	mu       sync.Mutex
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  *Adapter
	info     GPUInfo
	external bool
	closed   bool
}

// Open creates a Vulkan instance and opens the first discrete or integrated
// GPU, falling back to whatever adapter is listed first.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: %w", raytrace.ErrNoDevice, ErrNoBackend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", raytrace.ErrNoDevice, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	selected := selectAdapter(adapters)
	if selected == nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %w", raytrace.ErrNoDevice, ErrNoAdapter)
	}

	limits := gputypes.DefaultLimits()
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %w", raytrace.ErrNoDevice, err)
	}

	d := &Device{
		instance: instance,
		device:   open.Device,
		queue:    open.Queue,
		adapter:  NewAdapter(open.Device, open.Queue, &limits),
		info: GPUInfo{
			Name:       selected.Info.Name,
			DeviceType: selected.Info.DeviceType,
		},
	}
	raytrace.Logger().Info("wgpu: device opened", "gpu", d.info.String())
	return d, nil
}

// selectAdapter prefers a discrete or integrated GPU over software and
// virtual adapters.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// halProvider is implemented by device providers that expose their HAL
// handles, such as a gogpu application.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider borrows the device of a host application. Close releases
// the renderer's resources but never the host's device.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil device provider", raytrace.ErrNoDevice)
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %w", raytrace.ErrNoDevice, ErrNoHAL)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: %w: HalDevice is not hal.Device", raytrace.ErrNoDevice, ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: %w: HalQueue is not hal.Queue", raytrace.ErrNoDevice, ErrNoHAL)
	}

	raytrace.Logger().Info("wgpu: using external device")
	return &Device{
		device:   device,
		queue:    queue,
		adapter:  NewAdapter(device, queue, nil),
		external: true,
	}, nil
}

// Adapter returns the gpucore.GPUAdapter for this device.
func (d *Device) Adapter() *Adapter {
	return d.adapter
}

// Info describes the GPU. It is mostly empty for borrowed devices.
func (d *Device) Info() GPUInfo {
	return d.info
}

// External reports whether the device is borrowed from a provider.
func (d *Device) External() bool {
	return d.external
}

// Close waits for the GPU, releases every adapter resource and, for devices
// opened by Open, destroys the device and instance. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.adapter.WaitIdle()
	d.adapter.Release()
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.queue, d.instance = nil, nil, nil
	raytrace.Logger().Debug("wgpu: device closed", "external", d.external)
	return nil
}
