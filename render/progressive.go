package render

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/gpucore"
	"github.com/gogpu/raytrace/internal/gpu"
	"github.com/gogpu/raytrace/internal/parallel"
	"github.com/gogpu/raytrace/scene"
	"github.com/gogpu/raytrace/skybox"
)

// State is the renderer lifecycle state.
type State int

// Renderer states.
const (
	// StateIdle means no render target is allocated.
	StateIdle State = iota

	// StateAccumulating means a target is allocated. Samples reports how
	// many samples the current run holds, which is 0 right after a reset.
	StateAccumulating

	// StateClosed is terminal; every buffer has been released.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAccumulating:
		return "Accumulating"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameInput is what the host supplies each tick.
type FrameInput struct {
	Camera CameraState
	Sun    LightState // Zero uses the renderer's default sun
	Width  int        // Viewport width in pixels
	Height int        // Viewport height in pixels

	// Moved forces an accumulation reset even if Camera is unchanged.
	Moved bool
}

// FrameResult describes the outcome of one tick.
type FrameResult struct {
	// SampleIndex is the index of the sample traced this tick.
	SampleIndex uint32

	// Samples is the number of samples in the accumulation after the tick.
	Samples uint32

	// Reset reports whether this tick restarted accumulation.
	Reset bool

	// Skipped reports that no sample was composited this tick.
	Skipped bool
}

// Stats reports renderer activity.
type Stats struct {
	Frames  uint64 // Samples composited
	Skipped uint64 // Frames skipped for a degenerate projection
	Failed  uint64 // Frames lost to allocation, dispatch or readback failures
	Resets  uint64 // Accumulation restarts
	Samples uint32 // Samples in the current accumulation
	Buffers gpu.BufferStats
}

// Renderer is the progressive accumulation loop.
//
// Tick is meant to be driven by a single frame loop. SetScene and SetSkybox
// may be called from other goroutines; their effect is applied at the start
// of the next tick, never during a dispatch.
type Renderer struct {
	mu sync.Mutex

	buffers *gpu.BufferManager
	kernel  *gpu.Kernel
	pool    *parallel.WorkerPool
	acc     *Accumulator
	sample  []float32
	rng     *rand.Rand

	presenter Presenter
	sun       LightState

	pendingSpheres []gpucore.GPUSphere
	hasSpheres     bool
	pendingSky     *skybox.Image
	needsReset     bool

	state   State
	samples uint32
	anchor  CameraState
	target  *gpu.RenderTarget

	stats Stats
}

// New creates a renderer on adapter. The trace kernel is compiled from the
// embedded WGSL source unless WithShaderCode is given. The renderer starts
// Idle with an empty scene and a skybox (procedural unless WithSkybox).
func New(adapter gpucore.GPUAdapter, opts ...Option) (*Renderer, error) {
	if adapter == nil {
		return nil, fmt.Errorf("render: %w", raytrace.ErrNoDevice)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	spirv := o.spirv
	if spirv == nil {
		var err error
		if spirv, err = gpu.CompileTraceShader(); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
	}

	kernel, err := gpu.NewKernel(adapter, spirv)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	sky := o.skybox
	if sky == nil {
		sky = skybox.Gradient(defaultSkyboxWidth, defaultSkyboxHeight)
	}

	pool := parallel.NewWorkerPool(o.workers)
	r := &Renderer{
		buffers:    gpu.NewBufferManager(adapter),
		kernel:     kernel,
		pool:       pool,
		acc:        NewAccumulator(pool),
		rng:        scene.NewRand(o.seed),
		presenter:  o.presenter,
		sun:        o.sun,
		pendingSky: sky,
		hasSpheres: true,
	}
	return r, nil
}

// SetScene replaces the sphere set. The new spheres are uploaded at the
// start of the next tick, which restarts accumulation. A nil scene clears
// the sphere set.
func (r *Renderer) SetScene(s *scene.Scene) {
	var spheres []gpucore.GPUSphere
	if s != nil {
		spheres = PackScene(s.Spheres)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingSpheres = spheres
	r.hasSpheres = true
}

// SetSkybox replaces the skybox at the start of the next tick, which
// restarts accumulation.
func (r *Renderer) SetSkybox(img *skybox.Image) {
	if img == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingSky = img
}

// PackScene converts spheres to the kernel layout.
func PackScene(spheres []scene.Sphere) []gpucore.GPUSphere {
	out := make([]gpucore.GPUSphere, len(spheres))
	for i, s := range spheres {
		out[i] = gpucore.GPUSphere{
			Center:    s.Center.Array(),
			Radius:    s.Radius,
			Diffuse:   s.Material.Diffuse.Array(),
			Shininess: s.Material.Shininess,
			Specular:  s.Material.Specular.Array(),
		}
	}
	return out
}

// Tick renders one frame: at most one kernel dispatch and one composite.
//
// Errors wrap ErrDegenerateProjection (frame skipped, accumulation kept),
// ErrAllocation (renderer back to Idle), ErrKernelDispatch (frame discarded,
// sample count unchanged) or ErrClosed. The caller simply ticks again.
func (r *Renderer) Tick(in FrameInput) (FrameResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return FrameResult{Skipped: true}, raytrace.ErrClosed
	}
	if in.Width <= 0 || in.Height <= 0 {
		return FrameResult{Skipped: true}, fmt.Errorf("%w: render: viewport %dx%d",
			raytrace.ErrConfiguration, in.Width, in.Height)
	}

	if err := r.applyPendingLocked(); err != nil {
		r.stats.Failed++
		return r.skipped(), err
	}

	resized := r.target == nil || r.target.Released() ||
		r.target.Width() != in.Width || r.target.Height() != in.Height
	reset := r.needsReset || resized || in.Moved ||
		r.state != StateAccumulating || !in.Camera.Equal(r.anchor)

	index := r.samples
	if reset {
		index = 0
	}

	sun := in.Sun
	if sun.IsZero() {
		sun = r.sun
	}
	fs, err := Bind(in.Camera, sun, index, r.rng)
	if err != nil {
		r.stats.Skipped++
		raytrace.Logger().Warn("render: frame skipped", "err", err, "samples", r.samples)
		return r.skipped(), err
	}

	target, err := r.buffers.EnsureTarget(in.Width, in.Height)
	if err != nil {
		r.state = StateIdle
		r.samples = 0
		r.target = nil
		r.stats.Failed++
		raytrace.Logger().Warn("render: target allocation failed", "err", err)
		return r.skipped(), err
	}
	if reset {
		r.commitResetLocked(in.Camera, target)
	}

	if err := r.dispatchLocked(&fs, target); err != nil {
		r.stats.Failed++
		raytrace.Logger().Warn("render: frame discarded", "err", err, "samples", r.samples)
		return FrameResult{SampleIndex: index, Samples: r.samples, Reset: reset, Skipped: true}, err
	}

	r.acc.Add(r.sample, index)
	r.samples = index + 1
	r.state = StateAccumulating
	r.stats.Frames++

	res := FrameResult{SampleIndex: index, Samples: r.samples, Reset: reset}
	if r.presenter != nil {
		f := Frame{Width: r.acc.Width(), Height: r.acc.Height(), Pixels: r.acc.Pixels(), Samples: r.samples}
		if err := r.presenter.Present(f); err != nil {
			return res, fmt.Errorf("render: present: %w", err)
		}
	}
	return res, nil
}

func (r *Renderer) skipped() FrameResult {
	return FrameResult{SampleIndex: r.samples, Samples: r.samples, Skipped: true}
}

// applyPendingLocked uploads a scene or skybox queued since the last tick.
// A failed upload stays queued and is retried on the next tick.
func (r *Renderer) applyPendingLocked() error {
	if r.hasSpheres {
		if _, err := r.buffers.UploadSpheres(r.pendingSpheres); err != nil {
			return fmt.Errorf("render: upload scene: %w", err)
		}
		r.pendingSpheres = nil
		r.hasSpheres = false
		r.needsReset = true
	}
	if r.pendingSky != nil {
		sky := r.pendingSky
		if _, err := r.buffers.UploadSkybox(sky.Width, sky.Height, sky.Texels); err != nil {
			return fmt.Errorf("render: upload skybox: %w", err)
		}
		r.pendingSky = nil
		r.needsReset = true
	}
	return nil
}

func (r *Renderer) commitResetLocked(cam CameraState, target *gpu.RenderTarget) {
	if r.state == StateAccumulating {
		r.stats.Resets++
	}
	r.samples = 0
	r.anchor = cam
	r.needsReset = false
	if len(r.sample) != target.Pixels()*4 {
		r.sample = make([]float32, target.Pixels()*4)
	}
	r.acc.Resize(target.Width(), target.Height())
	r.target = target
	r.state = StateAccumulating
}

// dispatchLocked uploads the frame parameters, runs the kernel and reads
// its output into r.sample.
func (r *Renderer) dispatchLocked(fs *FrameState, target *gpu.RenderTarget) error {
	spheres, sky := r.buffers.Spheres(), r.buffers.Skybox()
	if spheres == nil || sky == nil {
		return fmt.Errorf("render: dispatch: %w", raytrace.ErrReleased)
	}

	params := fs.Params(target.Width(), target.Height(), spheres.Count(), sky.Width(), sky.Height())
	if err := r.buffers.WriteParams(&params); err != nil {
		return err
	}

	b, err := r.buffers.Bindings()
	if err != nil {
		return err
	}
	if err := r.kernel.Dispatch(b); err != nil {
		return err
	}
	if err := r.buffers.ReadTarget(target, r.sample); err != nil {
		return err
	}
	return nil
}

// State returns the current lifecycle state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Samples returns the number of samples in the current accumulation.
func (r *Renderer) Samples() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Accumulation returns a copy of the accumulated linear RGBA pixels and
// their size.
func (r *Renderer) Accumulation() (pixels []float32, width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float32(nil), r.acc.Pixels()...), r.acc.Width(), r.acc.Height()
}

// Stats returns renderer statistics.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats
	st.Samples = r.samples
	st.Buffers = r.buffers.Stats()
	return st
}

// Close releases every GPU buffer and the pipeline. The renderer is
// unusable afterwards; Close is safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return nil
	}
	r.state = StateClosed
	r.target = nil

	r.kernel.Close()
	err := r.buffers.Close()
	r.pool.Close()
	if errors.Is(err, raytrace.ErrClosed) {
		err = nil
	}
	raytrace.Logger().Debug("render: closed", "frames", r.stats.Frames)
	return err
}
