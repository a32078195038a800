// Package render drives the progressive sphere tracer.
//
// A [Renderer] is ticked once per displayed frame. Each tick binds the
// camera and sun into frame parameters, makes sure the render target matches
// the viewport, dispatches the trace kernel once, and folds the new sample
// into a running average. Any change of the camera, the viewport or the
// scene restarts the average from zero.
//
// # State Machine
//
//	Idle --tick ok--> Accumulating(n) --tick ok--> Accumulating(n+1)
//	  ^                   |  camera moved / resized / scene changed
//	  |                   +--> Accumulating(0)
//	  +---- allocation failure
//	Any --Close--> Closed
//
// # Failures
//
// A singular projection skips the frame and keeps the accumulation. A failed
// allocation drops the renderer to Idle. A failed dispatch or readback
// discards the frame without counting it. In every case the next Tick tries
// again.
//
// # Usage
//
//	dev, _ := wgpu.Open()
//	defer dev.Close()
//	r, _ := render.New(dev.Adapter(), render.WithSeed(42))
//	defer r.Close()
//
//	s, _ := scene.New(scene.DefaultConfig(), 42)
//	r.SetScene(s)
//
//	for {
//	    res, err := r.Tick(render.FrameInput{Camera: cam, Width: w, Height: h})
//	    ...
//	}
package render
