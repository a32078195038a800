package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
	"github.com/gogpu/raytrace/internal/gputest"
)

func TestEnsureTargetIdempotent(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	first, err := m.EnsureTarget(64, 32)
	if err != nil {
		t.Fatalf("EnsureTarget() error = %v", err)
	}
	allocs := fake.BufferAllocs()

	second, err := m.EnsureTarget(64, 32)
	if err != nil {
		t.Fatalf("EnsureTarget() error = %v", err)
	}
	if second != first {
		t.Error("EnsureTarget() with same size returned a different target")
	}
	if got := fake.BufferAllocs(); got != allocs {
		t.Errorf("allocations after second EnsureTarget = %d, want %d", got, allocs)
	}
	if got := m.Stats().TargetAllocations; got != 1 {
		t.Errorf("Stats().TargetAllocations = %d, want 1", got)
	}
}

func TestEnsureTargetResize(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	old, _ := m.EnsureTarget(16, 16)
	oldID := old.buffer()

	next, err := m.EnsureTarget(17, 8)
	if err != nil {
		t.Fatalf("EnsureTarget() error = %v", err)
	}
	if !old.Released() {
		t.Error("old target not released after resize")
	}
	if fake.BufferSize(oldID) != -1 {
		t.Error("old target buffer still allocated")
	}
	if next.Width() != 17 || next.Height() != 8 {
		t.Errorf("target = %dx%d, want 17x8", next.Width(), next.Height())
	}
	if got, want := fake.BufferSize(next.buffer()), 17*8*gpucore.PixelStride; got != want {
		t.Errorf("target bytes = %d, want %d", got, want)
	}
	if fake.LiveBuffers() != 1 {
		t.Errorf("LiveBuffers() = %d, want 1", fake.LiveBuffers())
	}
}

func TestEnsureTargetZeroed(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	target, _ := m.EnsureTarget(4, 4)
	for i, b := range fake.BufferData(target.buffer()) {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestEnsureTargetInvalidSize(t *testing.T) {
	m := NewBufferManager(gputest.New())
	for _, size := range [][2]int{{0, 10}, {10, 0}, {-1, 5}} {
		if _, err := m.EnsureTarget(size[0], size[1]); !errors.Is(err, raytrace.ErrConfiguration) {
			t.Errorf("EnsureTarget(%d, %d) error = %v, want ErrConfiguration", size[0], size[1], err)
		}
	}
}

func TestEnsureTargetAllocationFailure(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	if _, err := m.EnsureTarget(8, 8); err != nil {
		t.Fatal(err)
	}

	fake.FailCreateBuffer = func(int, gpucore.BufferUsage) bool { return true }
	_, err := m.EnsureTarget(16, 16)
	if !errors.Is(err, raytrace.ErrAllocation) {
		t.Fatalf("EnsureTarget() error = %v, want ErrAllocation", err)
	}
	if m.Target() != nil {
		t.Error("Target() should be nil after failed reallocation")
	}
	if fake.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d, want 0", fake.LiveBuffers())
	}

	fake.FailCreateBuffer = nil
	if _, err := m.EnsureTarget(16, 16); err != nil {
		t.Fatalf("EnsureTarget() after recovery error = %v", err)
	}
}

func TestEnsureTargetExceedsLimit(t *testing.T) {
	fake := gputest.New()
	fake.MaxBuffer = 1024
	m := NewBufferManager(fake)
	if _, err := m.EnsureTarget(64, 64); !errors.Is(err, raytrace.ErrAllocation) {
		t.Errorf("EnsureTarget() error = %v, want ErrAllocation", err)
	}
}

func TestUploadSpheresExactSize(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	spheres := make([]gpucore.GPUSphere, 5)
	for i := range spheres {
		spheres[i].Radius = float32(i + 1)
	}
	buf, err := m.UploadSpheres(spheres)
	if err != nil {
		t.Fatalf("UploadSpheres() error = %v", err)
	}
	if buf.Count() != 5 {
		t.Errorf("Count() = %d, want 5", buf.Count())
	}
	if got, want := fake.BufferSize(buf.buffer()), 5*gpucore.SphereStride; got != want {
		t.Errorf("buffer size = %d, want %d", got, want)
	}

	smaller, err := m.UploadSpheres(spheres[:2])
	if err != nil {
		t.Fatalf("UploadSpheres() error = %v", err)
	}
	if !buf.Released() {
		t.Error("previous sphere buffer not released")
	}
	if got, want := fake.BufferSize(smaller.buffer()), 2*gpucore.SphereStride; got != want {
		t.Errorf("buffer size = %d, want %d (no oversized reuse)", got, want)
	}
	if got := m.Stats().SphereUploads; got != 2 {
		t.Errorf("Stats().SphereUploads = %d, want 2", got)
	}
}

func TestUploadSpheresEmpty(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	buf, err := m.UploadSpheres(nil)
	if err != nil {
		t.Fatalf("UploadSpheres(nil) error = %v", err)
	}
	if buf.Count() != 0 {
		t.Errorf("Count() = %d, want 0", buf.Count())
	}
	if got := fake.BufferSize(buf.buffer()); got != gpucore.SphereStride {
		t.Errorf("placeholder size = %d, want %d", got, gpucore.SphereStride)
	}
}

func TestUploadSpheresFailureKeepsPrevious(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	prev, _ := m.UploadSpheres(make([]gpucore.GPUSphere, 3))

	fake.FailCreateBuffer = func(int, gpucore.BufferUsage) bool { return true }
	if _, err := m.UploadSpheres(make([]gpucore.GPUSphere, 4)); !errors.Is(err, raytrace.ErrAllocation) {
		t.Fatalf("UploadSpheres() error = %v, want ErrAllocation", err)
	}
	if prev.Released() || m.Spheres() != prev {
		t.Error("failed upload must keep the previous sphere buffer")
	}
}

func TestUploadSkybox(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	sky, err := m.UploadSkybox(2, 1, []uint32{0x11223344, 0xAABBCCDD})
	if err != nil {
		t.Fatalf("UploadSkybox() error = %v", err)
	}
	data := fake.BufferData(sky.buffer())
	want := []byte{0x44, 0x33, 0x22, 0x11, 0xDD, 0xCC, 0xBB, 0xAA}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, data[i], want[i])
		}
	}

	if _, err := m.UploadSkybox(2, 2, []uint32{1}); !errors.Is(err, raytrace.ErrConfiguration) {
		t.Errorf("UploadSkybox() mismatched error = %v, want ErrConfiguration", err)
	}
}

func TestReleaseInvalidatesHandle(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	target, _ := m.EnsureTarget(8, 8)

	if err := m.Release(target); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !target.Released() {
		t.Error("Released() = false after Release")
	}
	if m.Target() != nil {
		t.Error("Target() should be nil after releasing the current target")
	}
	if err := m.Release(target); !errors.Is(err, raytrace.ErrReleased) {
		t.Errorf("second Release() error = %v, want ErrReleased", err)
	}
	if err := m.ReadTarget(target, make([]float32, 8*8*4)); !errors.Is(err, raytrace.ErrReleased) {
		t.Errorf("ReadTarget(released) error = %v, want ErrReleased", err)
	}
}

func TestReadTarget(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	target, _ := m.EnsureTarget(2, 1)

	fake.WriteBuffer(target.buffer(), 0, gpucore.PackPixels([]float32{1, 2, 3, 4, 5, 6, 7, 8}))
	dst := make([]float32, 8)
	if err := m.ReadTarget(target, dst); err != nil {
		t.Fatalf("ReadTarget() error = %v", err)
	}
	for i, v := range dst {
		if v != float32(i+1) {
			t.Errorf("dst[%d] = %v, want %v", i, v, i+1)
		}
	}

	fake.FailReadBuffer = func() bool { return true }
	if err := m.ReadTarget(target, dst); !errors.Is(err, raytrace.ErrKernelDispatch) {
		t.Errorf("ReadTarget() error = %v, want ErrKernelDispatch", err)
	}

	if err := m.ReadTarget(target, make([]float32, 3)); err == nil {
		t.Error("ReadTarget() with short destination should fail")
	}
}

func TestWriteParams(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)

	p := gpucore.FrameParams{Width: 10, Height: 20, SampleIndex: 3}
	if err := m.WriteParams(&p); err != nil {
		t.Fatalf("WriteParams() error = %v", err)
	}
	if err := m.WriteParams(&p); err != nil {
		t.Fatalf("WriteParams() error = %v", err)
	}
	b, _ := m.Bindings()
	if got := gputest.DecodeFrameParams(fake.BufferData(b.Params)); got.SampleIndex != 3 || got.Width != 10 {
		t.Errorf("uploaded params = %+v", got)
	}
	if fake.BufferAllocs() != 1 {
		t.Errorf("BufferAllocs() = %d, want 1 (uniform reused)", fake.BufferAllocs())
	}
	if fake.BufferUsage(b.Params)&gpucore.BufferUsageUniform == 0 {
		t.Error("params buffer lacks uniform usage")
	}
}

func TestBufferManagerClose(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	target, _ := m.EnsureTarget(8, 8)
	spheres, _ := m.UploadSpheres(make([]gpucore.GPUSphere, 2))
	sky, _ := m.UploadSkybox(1, 1, []uint32{0})
	_ = m.WriteParams(&gpucore.FrameParams{})

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after Close, want 0", fake.LiveBuffers())
	}
	for name, h := range map[string]Handle{"target": target, "spheres": spheres, "skybox": sky} {
		if !h.Released() {
			t.Errorf("%s handle not released", name)
		}
	}
	st := m.Stats()
	if st.LiveBuffers != 0 || st.ResidentBytes != 0 {
		t.Errorf("Stats() after Close = %v", st)
	}

	if _, err := m.EnsureTarget(8, 8); !errors.Is(err, raytrace.ErrClosed) {
		t.Errorf("EnsureTarget() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Close(); !errors.Is(err, raytrace.ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
}

func TestBufferManagerCloseWithoutTarget(t *testing.T) {
	fake := gputest.New()
	m := NewBufferManager(fake)
	if _, err := m.UploadSpheres(nil); err != nil {
		t.Fatalf("UploadSpheres(nil) error = %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after Close, want 0", fake.LiveBuffers())
	}

	if err := NewBufferManager(gputest.New()).Close(); err != nil {
		t.Errorf("Close() on empty manager error = %v", err)
	}
}

func TestReleaseTypedNil(t *testing.T) {
	m := NewBufferManager(gputest.New())
	tests := []struct {
		name string
		h    Handle
	}{
		{"nil", nil},
		{"nil target", (*RenderTarget)(nil)},
		{"nil spheres", (*SphereBuffer)(nil)},
		{"nil skybox", (*SkyboxBuffer)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Release(tt.h); err != nil {
				t.Errorf("Release() error = %v, want nil", err)
			}
		})
	}
}

func TestBufferStatsResidentBytes(t *testing.T) {
	m := NewBufferManager(gputest.New())
	_, _ = m.EnsureTarget(4, 4)
	_, _ = m.UploadSpheres(make([]gpucore.GPUSphere, 3))

	st := m.Stats()
	want := uint64(4*4*gpucore.PixelStride + 3*gpucore.SphereStride)
	if st.ResidentBytes != want {
		t.Errorf("ResidentBytes = %d, want %d", st.ResidentBytes, want)
	}
	if st.LiveBuffers != 2 {
		t.Errorf("LiveBuffers = %d, want 2", st.LiveBuffers)
	}
	if st.String() == "" {
		t.Error("String() is empty")
	}
}
