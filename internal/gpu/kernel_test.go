package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
	"github.com/gogpu/raytrace/internal/gputest"
)

// fakeSPIRV stands in for compiled shader words; the fake adapter only
// checks that the module is non-empty.
var fakeSPIRV = []uint32{0x07230203, 0x00010000}

func newTestKernel(t *testing.T) (*gputest.Adapter, *BufferManager, *Kernel) {
	t.Helper()
	fake := gputest.New()
	k, err := NewKernel(fake, fakeSPIRV)
	if err != nil {
		t.Fatalf("NewKernel() error = %v", err)
	}
	m := NewBufferManager(fake)
	if _, err := m.UploadSpheres(make([]gpucore.GPUSphere, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UploadSkybox(1, 1, []uint32{0xFFFFFFFF}); err != nil {
		t.Fatal(err)
	}
	return fake, m, k
}

func prepare(t *testing.T, m *BufferManager, w, h int) Bindings {
	t.Helper()
	if _, err := m.EnsureTarget(w, h); err != nil {
		t.Fatal(err)
	}
	p := gpucore.FrameParams{Width: uint32(w), Height: uint32(h)} //nolint:gosec // small test sizes
	if err := m.WriteParams(&p); err != nil {
		t.Fatal(err)
	}
	b, err := m.Bindings()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestKernelDispatchGrid(t *testing.T) {
	fake, m, k := newTestKernel(t)

	if err := k.Dispatch(prepare(t, m, 17, 8)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	ds := fake.Dispatches()
	if len(ds) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(ds))
	}
	if ds[0].X != 3 || ds[0].Y != 1 || ds[0].Z != 1 {
		t.Errorf("grid = (%d, %d, %d), want (3, 1, 1)", ds[0].X, ds[0].Y, ds[0].Z)
	}
}

func TestKernelBindGroupLayout(t *testing.T) {
	fake, m, k := newTestKernel(t)
	if err := k.Dispatch(prepare(t, m, 8, 8)); err != nil {
		t.Fatal(err)
	}

	b, _ := m.Bindings()
	entries := fake.BindGroupEntries(fake.Dispatches()[0].BindGroup)
	want := map[uint32]gpucore.BufferID{
		gpucore.BindingParams:  b.Params,
		gpucore.BindingSpheres: b.Spheres.buffer(),
		gpucore.BindingSkybox:  b.Skybox.buffer(),
		gpucore.BindingOutput:  b.Target.buffer(),
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if want[e.Binding] != e.Buffer {
			t.Errorf("binding %d = buffer %d, want %d", e.Binding, e.Buffer, want[e.Binding])
		}
	}
}

func TestKernelBindGroupCache(t *testing.T) {
	fake, m, k := newTestKernel(t)

	b := prepare(t, m, 8, 8)
	for range 3 {
		if err := k.Dispatch(b); err != nil {
			t.Fatal(err)
		}
	}
	if got := fake.BindGroupsCreated(); got != 1 {
		t.Errorf("BindGroupsCreated() = %d, want 1 for unchanged bindings", got)
	}

	// A new sphere buffer invalidates the cached group.
	if _, err := m.UploadSpheres(make([]gpucore.GPUSphere, 1)); err != nil {
		t.Fatal(err)
	}
	b, _ = m.Bindings()
	if err := k.Dispatch(b); err != nil {
		t.Fatal(err)
	}
	if got := fake.BindGroupsCreated(); got != 2 {
		t.Errorf("BindGroupsCreated() = %d, want 2 after sphere upload", got)
	}
	if got := fake.LiveBindGroups(); got != 1 {
		t.Errorf("LiveBindGroups() = %d, want 1", got)
	}
}

func TestKernelRejectsReleasedHandles(t *testing.T) {
	_, m, k := newTestKernel(t)
	b := prepare(t, m, 8, 8)

	if _, err := m.EnsureTarget(16, 16); err != nil {
		t.Fatal(err)
	}
	// b still refers to the replaced 8x8 target.
	if err := k.Dispatch(b); !errors.Is(err, raytrace.ErrReleased) {
		t.Errorf("Dispatch(stale) error = %v, want ErrReleased", err)
	}

	if err := k.Dispatch(Bindings{}); !errors.Is(err, raytrace.ErrReleased) {
		t.Errorf("Dispatch(empty) error = %v, want ErrReleased", err)
	}
}

func TestKernelSubmitFailure(t *testing.T) {
	fake, m, k := newTestKernel(t)
	fake.FailSubmit = func() bool { return true }

	err := k.Dispatch(prepare(t, m, 8, 8))
	if !errors.Is(err, raytrace.ErrKernelDispatch) {
		t.Fatalf("Dispatch() error = %v, want ErrKernelDispatch", err)
	}
	if len(fake.Dispatches()) != 0 {
		t.Error("failed submit should not execute dispatches")
	}
}

func TestKernelRunsThroughFake(t *testing.T) {
	fake, m, k := newTestKernel(t)
	fake.Kernel = gputest.PixelKernel(func(_ gpucore.FrameParams, x, y int) [4]float32 {
		return [4]float32{float32(x), float32(y), 0, 1}
	})

	b := prepare(t, m, 9, 3)
	if err := k.Dispatch(b); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 9*3*4)
	if err := m.ReadTarget(b.Target, out); err != nil {
		t.Fatal(err)
	}
	px := func(x, y int) []float32 { return out[(y*9+x)*4 : (y*9+x)*4+4] }
	if p := px(8, 2); p[0] != 8 || p[1] != 2 || p[3] != 1 {
		t.Errorf("pixel (8, 2) = %v", p)
	}
}

func TestKernelClose(t *testing.T) {
	fake, m, k := newTestKernel(t)
	if err := k.Dispatch(prepare(t, m, 8, 8)); err != nil {
		t.Fatal(err)
	}
	_ = m.Close()
	k.Close()
	k.Close()

	if got := fake.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d after Close, want 0", got)
	}
	if err := k.Dispatch(Bindings{}); err == nil {
		t.Error("Dispatch() after Close should fail")
	}
}

func TestNewKernelEmptySPIRV(t *testing.T) {
	fake := gputest.New()
	if _, err := NewKernel(fake, nil); err == nil {
		t.Fatal("NewKernel(nil) should fail")
	}
	if got := fake.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d after failed NewKernel, want 0", got)
	}
}

func TestTraceShaderSource(t *testing.T) {
	src := TraceShaderSource()
	for _, want := range []string{
		"@workgroup_size(8, 8, 1)",
		"fn " + TraceEntryPoint + "(",
		"@binding(0) var<uniform> params",
		"@binding(1) var<storage, read> spheres",
		"@binding(2) var<storage, read> skybox",
		"@binding(3) var<storage, read_write> output",
		"id.x >= params.width || id.y >= params.height",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("trace shader missing %q", want)
		}
	}
}
