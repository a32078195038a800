//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
)

// DefaultSubmitTimeout bounds every fence wait.
const DefaultSubmitTimeout = 5 * time.Second

// Adapter implements gpucore.GPUAdapter on a hal.Device and hal.Queue.
//
// Resources are tracked in ID maps so that callers only ever see opaque
// gpucore IDs. Adapter is safe for concurrent use.
type Adapter struct {
	mu      sync.RWMutex
	device  hal.Device
	queue   hal.Queue
	timeout time.Duration

	limits      gputypes.Limits
	maxBufferSz uint64

	// Start at 1; 0 is gpucore.InvalidID.
	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*trackedBuffer
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	// Encoder for commands recorded since the last Submit.
	encoder    hal.CommandEncoder
	hasEncoder bool
	encodeErr  error

	// Host-visible buffer reused by ReadBuffer; grows on demand.
	staging     hal.Buffer
	stagingSize uint64
}

type trackedBuffer struct {
	buf  hal.Buffer
	size uint64
}

// NewAdapter wraps device and queue. A nil limits uses
// gputypes.DefaultLimits.
func NewAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *Adapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}

	a := &Adapter{
		device:           device,
		queue:            queue,
		timeout:          DefaultSubmitTimeout,
		limits:           lim,
		maxBufferSz:      lim.MaxBufferSize,
		buffers:          make(map[gpucore.BufferID]*trackedBuffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// SetTimeout changes the fence wait used by Submit and ReadBuffer.
func (a *Adapter) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultSubmitTimeout
	}
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
}

// === Capabilities ===

// SupportsCompute reports whether compute shaders are supported.
func (a *Adapter) SupportsCompute() bool {
	return a.device != nil && a.queue != nil
}

// MaxBufferSize returns the maximum buffer size in bytes.
func (a *Adapter) MaxBufferSize() uint64 {
	return a.maxBufferSz
}

// Limits returns the device limits the adapter was created with.
func (a *Adapter) Limits() gputypes.Limits {
	return a.limits
}

// === Shaders ===

// CreateShaderModule creates a shader module from SPIR-V words.
func (a *Adapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: empty SPIR-V bytecode")
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create shader module: %w", err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffers ===

// CreateBuffer creates a GPU buffer. Every buffer is also a copy target so
// that WriteBuffer works regardless of the requested usage.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be positive, got %d", size)
	}
	if uint64(size) > a.maxBufferSz {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer of %d bytes exceeds device limit %d", size, a.maxBufferSz)
	}

	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "raytrace-buffer",
		Size:  uint64(size),
		Usage: convertBufferUsage(usage) | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &trackedBuffer{buf: buf, size: uint64(size)}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	tb, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(tb.buf)
	}
}

// WriteBuffer queues a write of data at offset.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.RLock()
	tb, ok := a.buffers[id]
	a.mu.RUnlock()

	if ok && len(data) > 0 {
		a.queue.WriteBuffer(tb.buf, offset, data)
	}
}

// ReadBuffer copies size bytes at offset into a staging buffer and returns
// them. It waits for the copy, and therefore for all prior submissions.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tb, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: read buffer %d: %w", id, ErrUnknownResource)
	}
	if offset+size > tb.size {
		return nil, fmt.Errorf("wgpu: read [%d, %d) past end of %d-byte buffer", offset, offset+size, tb.size)
	}
	if size == 0 {
		return nil, nil
	}

	staging, err := a.stagingLocked(size)
	if err != nil {
		return nil, err
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback_encoder"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(tb.buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmd)

	if err := a.submitAndWaitLocked(cmd); err != nil {
		return nil, err
	}

	out := make([]byte, size)
	if err := a.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("wgpu: readback: %w", err)
	}
	return out, nil
}

// stagingLocked returns a MapRead staging buffer of at least size bytes.
func (a *Adapter) stagingLocked(size uint64) (hal.Buffer, error) {
	if a.staging != nil && a.stagingSize >= size {
		return a.staging, nil
	}
	if a.staging != nil {
		a.device.DestroyBuffer(a.staging)
		a.staging, a.stagingSize = nil, 0
	}
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	a.staging, a.stagingSize = buf, size
	return buf, nil
}

// === Pipelines ===

// CreateBindGroupLayout creates a bind group layout visible to compute.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil bind group layout descriptor")
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(e)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		layout, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d: %w", id, ErrUnknownResource)
		}
		halLayouts[i] = layout
	}
	a.mu.RUnlock()

	layout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "trace_pipe_layout",
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil compute pipeline descriptor")
	}

	a.mu.RLock()
	layout, layoutOK := a.pipelineLayouts[desc.Layout]
	module, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline layout %d: %w", desc.Layout, ErrUnknownResource)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: shader module %d: %w", desc.ShaderModule, ErrUnknownResource)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	delete(a.computePipelines, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup binds buffers to a layout.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	halLayout, ok := a.bindGroupLayouts[layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d: %w", layout, ErrUnknownResource)
	}
	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		tb, ok := a.buffers[e.Buffer]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: binding %d buffer %d: %w", e.Binding, e.Buffer, ErrUnknownResource)
		}
		halEntries[i] = gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: bufferBinding(tb, e),
		}
	}
	a.mu.RUnlock()

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "trace_bind_group",
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = group
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Commands ===

// BeginComputePass starts a compute pass on the pending encoder, creating
// the encoder if needed. Encoder failures are reported by Submit.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasEncoder {
		encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "trace_encoder"})
		if err != nil {
			a.encodeErr = fmt.Errorf("wgpu: create command encoder: %w", err)
			return &computePass{adapter: a}
		}
		if err := encoder.BeginEncoding("trace"); err != nil {
			a.encodeErr = fmt.Errorf("wgpu: begin encoding: %w", err)
			return &computePass{adapter: a}
		}
		a.encoder = encoder
		a.hasEncoder = true
	}

	pass := a.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "trace_pass"})
	return &computePass{adapter: a, pass: pass}
}

// Submit ends the pending encoder, submits it and waits for the GPU.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	encoder, has, encErr := a.encoder, a.hasEncoder, a.encodeErr
	a.encoder, a.hasEncoder, a.encodeErr = nil, false, nil

	if encErr != nil {
		if has {
			encoder.DiscardEncoding()
		}
		return encErr
	}
	if !has {
		return nil
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmd)

	return a.submitAndWaitLocked(cmd)
}

// submitAndWaitLocked submits cmds with a fence and blocks until it signals.
// An empty cmds still waits for previously submitted work.
func (a *Adapter) submitAndWaitLocked(cmds ...hal.CommandBuffer) error {
	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit(cmds, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := a.device.Wait(fence, 1, a.timeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrTimeout, a.timeout)
	}
	return nil
}

// WaitIdle submits pending work and waits for the queue to drain.
func (a *Adapter) WaitIdle() {
	if err := a.Submit(); err != nil {
		raytrace.Logger().Warn("wgpu: wait idle", "err", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.submitAndWaitLocked(); err != nil {
		raytrace.Logger().Warn("wgpu: wait idle", "err", err)
	}
}

// Release destroys every resource still tracked by the adapter. The device
// and queue themselves are left alone.
func (a *Adapter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasEncoder {
		a.encoder.DiscardEncoding()
		a.encoder, a.hasEncoder = nil, false
	}
	for id, g := range a.bindGroups {
		a.device.DestroyBindGroup(g)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, tb := range a.buffers {
		a.device.DestroyBuffer(tb.buf)
		delete(a.buffers, id)
	}
	if a.staging != nil {
		a.device.DestroyBuffer(a.staging)
		a.staging, a.stagingSize = nil, 0
	}
}

// Live returns the number of tracked resources, staging excluded.
func (a *Adapter) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers) + len(a.shaderModules) + len(a.computePipelines) +
		len(a.bindGroupLayouts) + len(a.pipelineLayouts) + len(a.bindGroups)
}

// === Conversion ===

func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}

func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}

	var typ gputypes.BufferBindingType
	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		typ = gputypes.BufferBindingTypeUniform
	case gpucore.BindingTypeStorageBuffer:
		typ = gputypes.BufferBindingTypeStorage
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		typ = gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return result
	}
	result.Buffer = &gputypes.BufferBindingLayout{
		Type:           typ,
		MinBindingSize: entry.MinBindingSize,
	}
	return result
}

// bindingRange resolves a zero Size to the rest of the buffer.
func bindingRange(bufSize uint64, e gpucore.BindGroupEntry) (offset, size uint64) {
	offset = min(e.Offset, bufSize)
	size = e.Size
	if size == 0 || offset+size > bufSize {
		size = bufSize - offset
	}
	return offset, size
}

func bufferBinding(tb *trackedBuffer, e gpucore.BindGroupEntry) gputypes.BufferBinding {
	offset, size := bindingRange(tb.size, e)
	return gputypes.BufferBinding{
		Buffer: tb.buf.NativeHandle(),
		Offset: offset,
		Size:   size,
	}
}

// computePass implements gpucore.ComputePassEncoder. A nil pass records
// nothing; the failure that caused it is returned by Submit.
type computePass struct {
	adapter *Adapter
	pass    hal.ComputePassEncoder
}

func (p *computePass) SetPipeline(pipeline gpucore.ComputePipelineID) {
	if p.pass == nil {
		return
	}
	p.adapter.mu.RLock()
	hp, ok := p.adapter.computePipelines[pipeline]
	p.adapter.mu.RUnlock()
	if !ok {
		p.fail(fmt.Errorf("wgpu: pipeline %d: %w", pipeline, ErrUnknownResource))
		return
	}
	p.pass.SetPipeline(hp)
}

func (p *computePass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if p.pass == nil {
		return
	}
	p.adapter.mu.RLock()
	hg, ok := p.adapter.bindGroups[group]
	p.adapter.mu.RUnlock()
	if !ok {
		p.fail(fmt.Errorf("wgpu: bind group %d: %w", group, ErrUnknownResource))
		return
	}
	p.pass.SetBindGroup(index, hg, nil)
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.pass == nil {
		return
	}
	p.pass.Dispatch(x, y, z)
}

func (p *computePass) End() {
	if p.pass == nil {
		return
	}
	p.pass.End()
}

func (p *computePass) fail(err error) {
	p.adapter.mu.Lock()
	p.adapter.encodeErr = errors.Join(p.adapter.encodeErr, err)
	p.adapter.mu.Unlock()
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
