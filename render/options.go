package render

import "github.com/gogpu/raytrace/skybox"

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := render.New(adapter,
//	    render.WithSeed(7),
//	    render.WithPresenter(&render.ImagePresenter{HUD: true}))
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	workers   int
	seed      uint64
	presenter Presenter
	spirv     []uint32
	skybox    *skybox.Image
	sun       LightState
}

// Size of the procedural sky used without a skybox.
const (
	defaultSkyboxWidth  = 256
	defaultSkyboxHeight = 128
)

func defaultOptions() options {
	return options{
		workers: 0, // GOMAXPROCS
		seed:    1,
		sun:     DefaultSun,
	}
}

// WithWorkers sets the number of goroutines compositing samples.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithSeed seeds the jitter random source. Renderers with the same seed
// draw the same jitter sequence.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithPresenter sets the presenter that receives every accumulated frame.
func WithPresenter(p Presenter) Option {
	return func(o *options) {
		o.presenter = p
	}
}

// WithShaderCode supplies precompiled SPIR-V for the trace kernel instead
// of compiling the embedded WGSL source.
func WithShaderCode(spirv []uint32) Option {
	return func(o *options) {
		o.spirv = spirv
	}
}

// WithSkybox sets the initial skybox. Without it a procedural gradient is
// used.
func WithSkybox(img *skybox.Image) Option {
	return func(o *options) {
		o.skybox = img
	}
}

// WithSun sets the light used for ticks whose FrameInput.Sun is zero.
func WithSun(sun LightState) Option {
	return func(o *options) {
		o.sun = sun
	}
}
