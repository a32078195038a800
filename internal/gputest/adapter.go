// Package gputest provides an in-memory gpucore.GPUAdapter for tests.
//
// The Adapter keeps buffer contents in host memory, counts every allocation
// and release, records dispatches, and lets tests inject failures or emulate
// the compute kernel with a Go function.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/raytrace/gpucore"
)

// ErrInjected is returned by operations failed through the Fail* fields.
var ErrInjected = errors.New("gputest: injected failure")

// Dispatch is one recorded compute dispatch.
type Dispatch struct {
	Pipeline  gpucore.ComputePipelineID
	BindGroup gpucore.BindGroupID
	X, Y, Z   uint32
}

// Kernel emulates a compute dispatch at submit time. bindings maps each
// binding index of the dispatched bind group to the bound buffer's bytes;
// writes to the slices land in the buffers.
type Kernel func(d Dispatch, bindings map[uint32][]byte)

// Adapter is a recording fake GPU. The zero value is not usable; call New.
type Adapter struct {
	mu sync.Mutex

	nextID uint64

	buffers     map[gpucore.BufferID]*buffer
	modules     map[gpucore.ShaderModuleID]int
	bgLayouts   map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipeLayouts map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines   map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc
	bindGroups  map[gpucore.BindGroupID][]gpucore.BindGroupEntry

	pending    []Dispatch
	dispatches []Dispatch

	bufferAllocs   int
	bufferFrees    int
	bindGroupCount int
	submits        int

	// Kernel, if set, runs for every dispatch on Submit.
	Kernel Kernel

	// MaxBuffer is reported by MaxBufferSize. Larger allocations fail.
	MaxBuffer uint64

	// FailCreateBuffer makes CreateBuffer fail for matching requests.
	FailCreateBuffer func(size int, usage gpucore.BufferUsage) bool

	// FailSubmit makes the next Submit calls fail while it returns true.
	FailSubmit func() bool

	// FailReadBuffer makes ReadBuffer fail while it returns true.
	FailReadBuffer func() bool
}

type buffer struct {
	usage gpucore.BufferUsage
	data  []byte
}

// New returns an empty fake adapter with a 256 MB buffer limit.
func New() *Adapter {
	return &Adapter{
		buffers:     make(map[gpucore.BufferID]*buffer),
		modules:     make(map[gpucore.ShaderModuleID]int),
		bgLayouts:   make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipeLayouts: make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:   make(map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc),
		bindGroups:  make(map[gpucore.BindGroupID][]gpucore.BindGroupEntry),
		MaxBuffer:   256 << 20,
	}
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

func (a *Adapter) newID() uint64 {
	a.nextID++
	return a.nextID
}

// SupportsCompute reports true.
func (a *Adapter) SupportsCompute() bool { return true }

// MaxBufferSize returns MaxBuffer.
func (a *Adapter) MaxBufferSize() uint64 { return a.MaxBuffer }

// CreateShaderModule records a module of len(spirv) words.
func (a *Adapter) CreateShaderModule(spirv []uint32, _ string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: empty SPIR-V")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.ShaderModuleID(a.newID())
	a.modules[id] = len(spirv)
	return id, nil
}

// DestroyShaderModule forgets a module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.modules, id)
	a.mu.Unlock()
}

// CreateBuffer allocates a zeroed host buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: buffer size must be positive, got %d", size)
	}
	if a.FailCreateBuffer != nil && a.FailCreateBuffer(size, usage) {
		return gpucore.InvalidID, ErrInjected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(size) > a.MaxBuffer {
		return gpucore.InvalidID, fmt.Errorf("gputest: buffer of %d bytes exceeds limit %d", size, a.MaxBuffer)
	}
	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{usage: usage, data: make([]byte, size)}
	a.bufferAllocs++
	return id, nil
}

// DestroyBuffer frees a buffer. Unknown IDs are ignored.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.buffers[id]; ok {
		delete(a.buffers, id)
		a.bufferFrees++
	}
}

// WriteBuffer copies data into a buffer.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok && offset < uint64(len(b.data)) {
		copy(b.data[offset:], data)
	}
}

// ReadBuffer returns a copy of a buffer range.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if a.FailReadBuffer != nil && a.FailReadBuffer() {
		return nil, ErrInjected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gputest: buffer %d not found", id)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("gputest: read [%d, %d) out of range %d", offset, offset+size, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// CreateBindGroupLayout records a layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("gputest: nil bind group layout descriptor")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.BindGroupLayoutID(a.newID())
	d := *desc
	a.bgLayouts[id] = &d
	return id, nil
}

// DestroyBindGroupLayout forgets a layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bgLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout records a pipeline layout.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.bgLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("gputest: bind group layout %d not found", l)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipeLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout forgets a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipeLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline records a pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("gputest: nil compute pipeline descriptor")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pipeLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: pipeline layout %d not found", desc.Layout)
	}
	if _, ok := a.modules[desc.ShaderModule]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: shader module %d not found", desc.ShaderModule)
	}
	id := gpucore.ComputePipelineID(a.newID())
	d := *desc
	a.pipelines[id] = &d
	return id, nil
}

// DestroyComputePipeline forgets a pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup records a bind group. Every entry must name a live buffer.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bgLayouts[layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: bind group layout %d not found", layout)
	}
	for _, e := range entries {
		if _, ok := a.buffers[e.Buffer]; !ok {
			return gpucore.InvalidID, fmt.Errorf("gputest: binding %d: buffer %d not found", e.Binding, e.Buffer)
		}
	}
	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = append([]gpucore.BindGroupEntry(nil), entries...)
	a.bindGroupCount++
	return id, nil
}

// DestroyBindGroup forgets a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// BeginComputePass returns a recording pass encoder.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	return &pass{adapter: a}
}

// Submit runs pending dispatches through Kernel and records them.
func (a *Adapter) Submit() error {
	if a.FailSubmit != nil && a.FailSubmit() {
		a.mu.Lock()
		a.pending = nil
		a.mu.Unlock()
		return ErrInjected
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits++
	for _, d := range a.pending {
		if a.Kernel != nil {
			a.Kernel(d, a.bindingsLocked(d.BindGroup))
		}
		a.dispatches = append(a.dispatches, d)
	}
	a.pending = nil
	return nil
}

// WaitIdle is a no-op; submits complete synchronously.
func (a *Adapter) WaitIdle() {}

func (a *Adapter) bindingsLocked(group gpucore.BindGroupID) map[uint32][]byte {
	out := make(map[uint32][]byte)
	for _, e := range a.bindGroups[group] {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			continue
		}
		end := uint64(len(b.data))
		if e.Size != 0 && e.Offset+e.Size < end {
			end = e.Offset + e.Size
		}
		out[e.Binding] = b.data[e.Offset:end]
	}
	return out
}

// === Inspection ===

// LiveBuffers returns the number of buffers not yet destroyed.
func (a *Adapter) LiveBuffers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// BufferAllocs returns the total number of successful CreateBuffer calls.
func (a *Adapter) BufferAllocs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferAllocs
}

// BufferFrees returns the total number of destroyed buffers.
func (a *Adapter) BufferFrees() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferFrees
}

// BufferSize returns the size of a live buffer, or -1.
func (a *Adapter) BufferSize(id gpucore.BufferID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok {
		return len(b.data)
	}
	return -1
}

// BufferUsage returns the usage a live buffer was created with.
func (a *Adapter) BufferUsage(id gpucore.BufferID) gpucore.BufferUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok {
		return b.usage
	}
	return 0
}

// BufferData returns a copy of a live buffer's contents, or nil.
func (a *Adapter) BufferData(id gpucore.BufferID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

// BindGroupsCreated returns the total number of bind groups created.
func (a *Adapter) BindGroupsCreated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bindGroupCount
}

// LiveBindGroups returns the number of bind groups not yet destroyed.
func (a *Adapter) LiveBindGroups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bindGroups)
}

// BindGroupEntries returns the entries a live bind group was created with.
func (a *Adapter) BindGroupEntries(id gpucore.BindGroupID) []gpucore.BindGroupEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gpucore.BindGroupEntry(nil), a.bindGroups[id]...)
}

// LivePipelines returns the number of compute pipelines not yet destroyed.
func (a *Adapter) LivePipelines() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pipelines)
}

// LiveObjects returns the number of live non-buffer objects.
func (a *Adapter) LiveObjects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.modules) + len(a.bgLayouts) + len(a.pipeLayouts) + len(a.pipelines) + len(a.bindGroups)
}

// Dispatches returns all dispatches executed so far.
func (a *Adapter) Dispatches() []Dispatch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Dispatch(nil), a.dispatches...)
}

// Submits returns the number of successful submits.
func (a *Adapter) Submits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

type pass struct {
	adapter  *Adapter
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	ended    bool
}

func (p *pass) SetPipeline(pipeline gpucore.ComputePipelineID) { p.pipeline = pipeline }

func (p *pass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if index == 0 {
		p.group = group
	}
}

func (p *pass) Dispatch(x, y, z uint32) {
	if p.ended {
		return
	}
	p.adapter.mu.Lock()
	p.adapter.pending = append(p.adapter.pending, Dispatch{
		Pipeline: p.pipeline, BindGroup: p.group, X: x, Y: y, Z: z,
	})
	p.adapter.mu.Unlock()
}

func (p *pass) End() { p.ended = true }
