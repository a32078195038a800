// Package wgpu runs the progressive renderer on a real GPU through the
// gogpu/wgpu hardware abstraction layer.
//
// The package provides two things:
//
//   - Adapter: a gpucore.GPUAdapter backed by a hal.Device and hal.Queue.
//   - Device: opens a Vulkan device on its own, or borrows one from a host
//     application that already owns a GPU context.
//
// # Opening a Device
//
// Standalone use, for example from a command-line tool:
//
//	dev, err := wgpu.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	r, err := render.New(dev.Adapter())
//
// Inside a gogpu application the renderer shares the window's device:
//
//	dev, err := wgpu.NewFromProvider(app.DeviceProvider())
//
// A borrowed device is never destroyed by Close; only the resources created
// through the Adapter are released.
//
// # Synchronization
//
// Adapter.Submit waits on a fence before returning, and Adapter.ReadBuffer
// copies through a host-visible staging buffer. A successful ReadBuffer
// therefore always observes the results of every earlier Submit.
//
// # Thread Safety
//
// Adapter is safe for concurrent use. Commands recorded between
// BeginComputePass and Submit belong to a single encoder, so one goroutine
// should own a frame's recording.
package wgpu
