package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
)

// Buffer usages of the managed buffers.
const (
	targetUsage = gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst
	sphereUsage = gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst
	skyUsage    = gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst
	paramsUsage = gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst
)

// Handle is a GPU buffer owned by a BufferManager.
// Only the manager creates handles; a handle is dead once released.
type Handle interface {
	// Released reports whether the buffer behind the handle is gone.
	Released() bool

	// Bytes returns the allocation size in bytes.
	Bytes() uint64

	buffer() gpucore.BufferID
	invalidate()
}

type handle struct {
	id   gpucore.BufferID
	size uint64
}

func (h *handle) buffer() gpucore.BufferID { return h.id }
func (h *handle) invalidate()              { h.id = gpucore.InvalidID }

// Released reports whether the buffer has been released.
func (h *handle) Released() bool { return h.id == gpucore.InvalidID }

// Bytes returns the allocation size in bytes.
func (h *handle) Bytes() uint64 { return h.size }

// RenderTarget is the kernel output buffer: one vec4<f32> per pixel.
type RenderTarget struct {
	handle
	width, height int
}

// Width returns the target width in pixels.
func (t *RenderTarget) Width() int { return t.width }

// Height returns the target height in pixels.
func (t *RenderTarget) Height() int { return t.height }

// Pixels returns width * height.
func (t *RenderTarget) Pixels() int { return t.width * t.height }

// SphereBuffer holds a serialized sphere set.
type SphereBuffer struct {
	handle
	count int
}

// Count returns the number of spheres uploaded. A zero-sphere upload binds
// a one-element placeholder and reports 0.
func (s *SphereBuffer) Count() int { return s.count }

// SkyboxBuffer holds packed RGBA8 skybox texels.
type SkyboxBuffer struct {
	handle
	width, height int
}

// Width returns the skybox width in texels.
func (s *SkyboxBuffer) Width() int { return s.width }

// Height returns the skybox height in texels.
func (s *SkyboxBuffer) Height() int { return s.height }

// BufferStats reports allocation activity of a BufferManager.
type BufferStats struct {
	TargetAllocations int    // Render targets allocated
	SphereUploads     int    // Sphere buffers allocated
	SkyboxUploads     int    // Skybox buffers allocated
	Releases          int    // Buffers released
	LiveBuffers       int    // Buffers currently allocated
	ResidentBytes     uint64 // Bytes currently allocated
}

// String returns a human-readable summary.
func (s BufferStats) String() string {
	return fmt.Sprintf("Buffers[%d live, %d KB, %d targets, %d sphere uploads, %d skybox uploads, %d releases]",
		s.LiveBuffers, s.ResidentBytes/1024, s.TargetAllocations, s.SphereUploads, s.SkyboxUploads, s.Releases)
}

// BufferManager owns every GPU buffer the tracer binds.
//
// BufferManager is safe for concurrent use; each operation is atomic with
// respect to the others, so no caller observes a half-replaced buffer.
type BufferManager struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter

	target  *RenderTarget
	spheres *SphereBuffer
	skybox  *SkyboxBuffer
	params  *handle

	stats  BufferStats
	closed bool
}

// NewBufferManager creates a manager allocating through adapter.
func NewBufferManager(adapter gpucore.GPUAdapter) *BufferManager {
	return &BufferManager{adapter: adapter}
}

// EnsureTarget returns a render target of exactly width x height pixels.
// If the current target already matches it is returned unchanged. Otherwise
// the old target is released and a zeroed one allocated. On allocation
// failure the manager is left without a target.
func (m *BufferManager) EnsureTarget(width, height int) (*RenderTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: gpu: render target %dx%d", raytrace.ErrConfiguration, width, height)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, raytrace.ErrClosed
	}
	if t := m.target; t != nil && t.width == width && t.height == height {
		return t, nil
	}

	if m.target != nil {
		raytrace.Logger().Debug("gpu: resizing render target",
			"from_width", m.target.width, "from_height", m.target.height,
			"width", width, "height", height)
		m.releaseLocked(m.target)
		m.target = nil
	}

	size := uint64(width) * uint64(height) * gpucore.PixelStride //nolint:gosec // dimensions are positive
	id, err := m.allocLocked(size, targetUsage)
	if err != nil {
		return nil, fmt.Errorf("gpu: render target %dx%d: %w", width, height, err)
	}
	m.adapter.WriteBuffer(id, 0, make([]byte, size))

	m.target = &RenderTarget{handle: handle{id: id, size: size}, width: width, height: height}
	m.stats.TargetAllocations++
	raytrace.Logger().Debug("gpu: render target allocated", "width", width, "height", height, "bytes", size)
	return m.target, nil
}

// UploadSpheres replaces the sphere buffer with a new allocation of exactly
// len(spheres) * SphereStride bytes. The previous buffer is released only
// after the new one is resident.
func (m *BufferManager) UploadSpheres(spheres []gpucore.GPUSphere) (*SphereBuffer, error) {
	data := gpucore.PackSpheres(spheres)
	if len(spheres) == 0 {
		data = make([]byte, gpucore.SphereStride)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, raytrace.ErrClosed
	}

	id, err := m.allocLocked(uint64(len(data)), sphereUsage)
	if err != nil {
		return nil, fmt.Errorf("gpu: sphere buffer (%d spheres): %w", len(spheres), err)
	}
	m.adapter.WriteBuffer(id, 0, data)

	if m.spheres != nil {
		m.releaseLocked(m.spheres)
	}
	m.spheres = &SphereBuffer{handle: handle{id: id, size: uint64(len(data))}, count: len(spheres)}
	m.stats.SphereUploads++
	raytrace.Logger().Debug("gpu: spheres uploaded", "count", len(spheres), "bytes", len(data))
	return m.spheres, nil
}

// UploadSkybox replaces the skybox buffer with width x height packed RGBA8
// texels (R in the low byte).
func (m *BufferManager) UploadSkybox(width, height int, texels []uint32) (*SkyboxBuffer, error) {
	if width <= 0 || height <= 0 || len(texels) != width*height {
		return nil, fmt.Errorf("%w: gpu: skybox %dx%d with %d texels",
			raytrace.ErrConfiguration, width, height, len(texels))
	}

	data := make([]byte, len(texels)*4)
	for i, t := range texels {
		data[i*4] = byte(t)
		data[i*4+1] = byte(t >> 8)
		data[i*4+2] = byte(t >> 16)
		data[i*4+3] = byte(t >> 24)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, raytrace.ErrClosed
	}

	id, err := m.allocLocked(uint64(len(data)), skyUsage)
	if err != nil {
		return nil, fmt.Errorf("gpu: skybox %dx%d: %w", width, height, err)
	}
	m.adapter.WriteBuffer(id, 0, data)

	if m.skybox != nil {
		m.releaseLocked(m.skybox)
	}
	m.skybox = &SkyboxBuffer{handle: handle{id: id, size: uint64(len(data))}, width: width, height: height}
	m.stats.SkyboxUploads++
	raytrace.Logger().Debug("gpu: skybox uploaded", "width", width, "height", height)
	return m.skybox, nil
}

// WriteParams uploads the per-frame uniform block, allocating the uniform
// buffer on first use.
func (m *BufferManager) WriteParams(p *gpucore.FrameParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return raytrace.ErrClosed
	}
	if m.params == nil {
		id, err := m.allocLocked(gpucore.FrameParamsSize, paramsUsage)
		if err != nil {
			return fmt.Errorf("gpu: frame parameters: %w", err)
		}
		m.params = &handle{id: id, size: gpucore.FrameParamsSize}
	}
	m.adapter.WriteBuffer(m.params.id, 0, p.Bytes())
	return nil
}

// ReadTarget copies the kernel output of t into dst, which must hold
// 4 floats per pixel. It blocks until submitted work has finished.
func (m *BufferManager) ReadTarget(t *RenderTarget, dst []float32) error {
	if t == nil {
		return fmt.Errorf("gpu: read target: %w", raytrace.ErrReleased)
	}
	if len(dst) < t.Pixels()*4 {
		return fmt.Errorf("gpu: read target: destination holds %d floats, need %d", len(dst), t.Pixels()*4)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return raytrace.ErrClosed
	}
	id, size := t.id, t.size
	m.mu.Unlock()

	if id == gpucore.InvalidID {
		return fmt.Errorf("gpu: read target: %w", raytrace.ErrReleased)
	}
	data, err := m.adapter.ReadBuffer(id, 0, size)
	if err != nil {
		return fmt.Errorf("%w: gpu: read target: %v", raytrace.ErrKernelDispatch, err)
	}
	gpucore.UnpackPixels(data, dst)
	return nil
}

// Bindings returns the currently resident buffers for a kernel dispatch.
func (m *BufferManager) Bindings() (Bindings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Bindings{}, raytrace.ErrClosed
	}
	b := Bindings{Target: m.target, Spheres: m.spheres, Skybox: m.skybox}
	if m.params != nil {
		b.Params = m.params.id
	}
	return b, nil
}

// Target returns the current render target, or nil.
func (m *BufferManager) Target() *RenderTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Spheres returns the current sphere buffer, or nil.
func (m *BufferManager) Spheres() *SphereBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spheres
}

// Skybox returns the current skybox buffer, or nil.
func (m *BufferManager) Skybox() *SkyboxBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skybox
}

// Release frees the buffer behind h. Releasing an already released handle
// returns ErrReleased.
func (m *BufferManager) Release(h Handle) error {
	if isNilHandle(h) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return raytrace.ErrClosed
	}
	if h.Released() {
		return fmt.Errorf("gpu: release: %w", raytrace.ErrReleased)
	}

	switch {
	case m.target != nil && Handle(m.target) == h:
		m.target = nil
	case m.spheres != nil && Handle(m.spheres) == h:
		m.spheres = nil
	case m.skybox != nil && Handle(m.skybox) == h:
		m.skybox = nil
	}
	m.releaseLocked(h)
	return nil
}

// Stats returns current allocation statistics.
func (m *BufferManager) Stats() BufferStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close releases every buffer. Later calls fail with ErrClosed.
func (m *BufferManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return raytrace.ErrClosed
	}
	if m.target != nil {
		m.releaseLocked(m.target)
	}
	if m.spheres != nil {
		m.releaseLocked(m.spheres)
	}
	if m.skybox != nil {
		m.releaseLocked(m.skybox)
	}
	if m.params != nil {
		m.releaseLocked(m.params)
	}
	m.target, m.spheres, m.skybox, m.params = nil, nil, nil, nil
	m.closed = true
	return nil
}

func (m *BufferManager) allocLocked(size uint64, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if limit := m.adapter.MaxBufferSize(); limit > 0 && size > limit {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds device limit %d",
			raytrace.ErrAllocation, size, limit)
	}
	id, err := m.adapter.CreateBuffer(int(size), usage) //nolint:gosec // bounded by MaxBufferSize
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %v", raytrace.ErrAllocation, err)
	}
	m.stats.LiveBuffers++
	m.stats.ResidentBytes += size
	return id, nil
}

// isNilHandle reports whether h is nil or wraps a nil pointer.
func isNilHandle(h Handle) bool {
	switch v := h.(type) {
	case nil:
		return true
	case *RenderTarget:
		return v == nil
	case *SphereBuffer:
		return v == nil
	case *SkyboxBuffer:
		return v == nil
	case *handle:
		return v == nil
	}
	return false
}

// releaseLocked destroys the buffer and kills the handle. Handles that are
// the current target, spheres or skybox must be unlinked by the caller.
func (m *BufferManager) releaseLocked(h Handle) {
	id := h.buffer()
	if id == gpucore.InvalidID {
		return
	}
	size := h.Bytes()
	m.adapter.DestroyBuffer(id)
	h.invalidate()
	m.stats.Releases++
	m.stats.LiveBuffers--
	m.stats.ResidentBytes -= size
}

