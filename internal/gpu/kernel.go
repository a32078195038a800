package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
)

// Bindings are the buffers bound to one trace dispatch.
type Bindings struct {
	Params  gpucore.BufferID
	Target  *RenderTarget
	Spheres *SphereBuffer
	Skybox  *SkyboxBuffer
}

func (b Bindings) validate() error {
	if b.Params == gpucore.InvalidID {
		return fmt.Errorf("gpu: dispatch: frame parameters not uploaded: %w", raytrace.ErrReleased)
	}
	if b.Target == nil || b.Target.Released() {
		return fmt.Errorf("gpu: dispatch: render target: %w", raytrace.ErrReleased)
	}
	if b.Spheres == nil || b.Spheres.Released() {
		return fmt.Errorf("gpu: dispatch: sphere buffer: %w", raytrace.ErrReleased)
	}
	if b.Skybox == nil || b.Skybox.Released() {
		return fmt.Errorf("gpu: dispatch: skybox buffer: %w", raytrace.ErrReleased)
	}
	return nil
}

// bindGroupKey identifies the buffers a cached bind group references.
type bindGroupKey struct {
	params, target, spheres, skybox gpucore.BufferID
}

func (b Bindings) key() bindGroupKey {
	return bindGroupKey{
		params:  b.Params,
		target:  b.Target.buffer(),
		spheres: b.Spheres.buffer(),
		skybox:  b.Skybox.buffer(),
	}
}

// Kernel is the compiled trace pipeline.
//
// Kernel is safe for concurrent use, but dispatches are serialized.
type Kernel struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter

	module   gpucore.ShaderModuleID
	layout   gpucore.BindGroupLayoutID
	pipeLay  gpucore.PipelineLayoutID
	pipeline gpucore.ComputePipelineID

	group    gpucore.BindGroupID
	groupKey bindGroupKey

	closed bool
}

// NewKernel builds the trace pipeline from SPIR-V words (see
// CompileTraceShader).
func NewKernel(adapter gpucore.GPUAdapter, spirv []uint32) (*Kernel, error) {
	if !adapter.SupportsCompute() {
		return nil, fmt.Errorf("gpu: adapter has no compute support: %w", raytrace.ErrNoDevice)
	}

	k := &Kernel{adapter: adapter}
	if err := k.createPipeline(spirv); err != nil {
		k.destroy()
		return nil, err
	}
	return k, nil
}

func (k *Kernel) createPipeline(spirv []uint32) error {
	var err error
	k.module, err = k.adapter.CreateShaderModule(spirv, "trace")
	if err != nil {
		return fmt.Errorf("gpu: trace shader module: %w", err)
	}

	k.layout, err = k.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "trace_bind_layout",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: gpucore.BindingParams, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: gpucore.FrameParamsSize},
			{Binding: gpucore.BindingSpheres, Type: gpucore.BindingTypeReadOnlyStorageBuffer, MinBindingSize: gpucore.SphereStride},
			{Binding: gpucore.BindingSkybox, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
			{Binding: gpucore.BindingOutput, Type: gpucore.BindingTypeStorageBuffer},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: trace bind group layout: %w", err)
	}

	k.pipeLay, err = k.adapter.CreatePipelineLayout([]gpucore.BindGroupLayoutID{k.layout})
	if err != nil {
		return fmt.Errorf("gpu: trace pipeline layout: %w", err)
	}

	k.pipeline, err = k.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "trace_pipeline",
		Layout:       k.pipeLay,
		ShaderModule: k.module,
		EntryPoint:   TraceEntryPoint,
	})
	if err != nil {
		return fmt.Errorf("gpu: trace compute pipeline: %w", err)
	}
	return nil
}

// Dispatch records one trace pass over the whole target and submits it.
// BufferManager.ReadTarget is the point where the results are guaranteed
// visible, whether or not the adapter's Submit blocks.
// Submit failures are reported as ErrKernelDispatch.
func (k *Kernel) Dispatch(b Bindings) error {
	if err := b.validate(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return raytrace.ErrClosed
	}

	group, err := k.bindGroupLocked(b)
	if err != nil {
		return err
	}

	grid := gpucore.DispatchGrid(b.Target.Width(), b.Target.Height())
	pass := k.adapter.BeginComputePass()
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(grid[0], grid[1], grid[2])
	pass.End()

	if err := k.adapter.Submit(); err != nil {
		return fmt.Errorf("%w: gpu: submit: %v", raytrace.ErrKernelDispatch, err)
	}
	raytrace.Logger().Debug("gpu: trace dispatched",
		"groups_x", grid[0], "groups_y", grid[1],
		"width", b.Target.Width(), "height", b.Target.Height())
	return nil
}

// bindGroupLocked returns the cached bind group, rebuilding it when any
// bound buffer changed.
func (k *Kernel) bindGroupLocked(b Bindings) (gpucore.BindGroupID, error) {
	key := b.key()
	if k.group != gpucore.InvalidID && key == k.groupKey {
		return k.group, nil
	}
	if k.group != gpucore.InvalidID {
		k.adapter.DestroyBindGroup(k.group)
		k.group = gpucore.InvalidID
	}

	group, err := k.adapter.CreateBindGroup(k.layout, []gpucore.BindGroupEntry{
		{Binding: gpucore.BindingParams, Buffer: key.params, Size: gpucore.FrameParamsSize},
		{Binding: gpucore.BindingSpheres, Buffer: key.spheres, Size: b.Spheres.Bytes()},
		{Binding: gpucore.BindingSkybox, Buffer: key.skybox, Size: b.Skybox.Bytes()},
		{Binding: gpucore.BindingOutput, Buffer: key.target, Size: b.Target.Bytes()},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: gpu: trace bind group: %v", raytrace.ErrKernelDispatch, err)
	}
	k.group = group
	k.groupKey = key
	return group, nil
}

// Close destroys the pipeline and the cached bind group.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.destroy()
	k.closed = true
}

func (k *Kernel) destroy() {
	if k.group != gpucore.InvalidID {
		k.adapter.DestroyBindGroup(k.group)
		k.group = gpucore.InvalidID
	}
	if k.pipeline != gpucore.InvalidID {
		k.adapter.DestroyComputePipeline(k.pipeline)
		k.pipeline = gpucore.InvalidID
	}
	if k.pipeLay != gpucore.InvalidID {
		k.adapter.DestroyPipelineLayout(k.pipeLay)
		k.pipeLay = gpucore.InvalidID
	}
	if k.layout != gpucore.InvalidID {
		k.adapter.DestroyBindGroupLayout(k.layout)
		k.layout = gpucore.InvalidID
	}
	if k.module != gpucore.InvalidID {
		k.adapter.DestroyShaderModule(k.module)
		k.module = gpucore.InvalidID
	}
}
