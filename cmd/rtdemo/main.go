// Command rtdemo renders a generated sphere scene with the progressive GPU
// tracer and writes the accumulated image as PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/chewxy/math32"
	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/backend/wgpu"
	"github.com/gogpu/raytrace/render"
	"github.com/gogpu/raytrace/scene"
	"github.com/gogpu/raytrace/skybox"
)

type options struct {
	config  string
	width   int
	height  int
	frames  int
	orbit   float64
	output  string
	skybox  string
	watch   bool
	verbose bool
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "scene settings file (.toml, .yaml)")
	flag.IntVar(&o.width, "width", 800, "image width")
	flag.IntVar(&o.height, "height", 600, "image height")
	flag.IntVar(&o.frames, "frames", 64, "frames to accumulate before writing the image")
	flag.Float64Var(&o.orbit, "orbit", 0, "camera orbit speed in degrees per frame")
	flag.StringVar(&o.output, "output", "rtdemo.png", "output file")
	flag.StringVar(&o.skybox, "skybox", "", "equirectangular skybox image")
	flag.BoolVar(&o.watch, "watch", false, "regenerate the scene when the settings file changes")
	flag.BoolVar(&o.verbose, "v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	raytrace.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o); err != nil {
		raytrace.Logger().Error("rtdemo failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	if o.frames <= 0 {
		return fmt.Errorf("%w: -frames must be positive", raytrace.ErrConfiguration)
	}

	s, err := loadScene(o.config)
	if err != nil {
		return err
	}

	dev, err := wgpu.Open()
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	presenter := &render.ImagePresenter{HUD: true}
	opts := []render.Option{render.WithPresenter(presenter), render.WithSeed(s.Seed + 1)}
	if o.skybox != "" {
		sky, err := skybox.Load(o.skybox)
		if err != nil {
			return err
		}
		opts = append(opts, render.WithSkybox(sky))
	}

	r, err := render.New(dev.Adapter(), opts...)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	r.SetScene(s)

	var reloads <-chan *scene.Scene
	if o.watch && o.config != "" {
		ch, err := watchSettings(ctx, o.config)
		if err != nil {
			return err
		}
		reloads = ch
	}

	cam := newOrbit(s.Config.PlacementRadius)
	frame := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ns := <-reloads:
			r.SetScene(ns)
			cam = newOrbit(ns.Config.PlacementRadius)
		default:
		}

		in := render.FrameInput{
			Camera: cam.state(o.width, o.height),
			Width:  o.width,
			Height: o.height,
		}
		res, err := r.Tick(in)
		switch {
		case errors.Is(err, raytrace.ErrDegenerateProjection), errors.Is(err, raytrace.ErrKernelDispatch):
			continue
		case err != nil:
			return err
		}

		frame++
		cam.advance(float32(o.orbit))
		converged := res.Samples%uint32(o.frames) == 0 //nolint:gosec // frames is positive
		if converged || (o.orbit != 0 && frame%o.frames == 0) {
			if err := writePNG(o.output, presenter); err != nil {
				return err
			}
			raytrace.Logger().Info("image written", "path", o.output, "samples", res.Samples, "stats", r.Stats().Buffers.String())
			if reloads == nil {
				return nil
			}
		}
	}
}

func loadScene(path string) (*scene.Scene, error) {
	settings := scene.DefaultSettings()
	if path != "" {
		var err error
		if settings, err = scene.LoadSettings(path); err != nil {
			return nil, err
		}
	}
	s, err := scene.New(settings.Scene, settings.Seed)
	if err != nil {
		return nil, err
	}
	st := s.Stats()
	raytrace.Logger().Info("scene generated", "seed", settings.Seed, "spheres", st.Accepted, "rejected", st.Rejected)
	return s, nil
}

// watchSettings regenerates the scene whenever the settings file is written.
// Editors often replace the file, so the directory is watched.
func watchSettings(ctx context.Context, path string) (<-chan *scene.Scene, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch settings: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch settings: %w", err)
	}

	out := make(chan *scene.Scene, 1)
	abs, _ := filepath.Abs(path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if p, _ := filepath.Abs(event.Name); p != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s, err := loadScene(path)
				if err != nil {
					raytrace.Logger().Warn("settings reload failed", "err", err)
					continue
				}
				select {
				case <-out:
				default:
				}
				out <- s
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				raytrace.Logger().Warn("settings watcher", "err", err)
			}
		}
	}()
	return out, nil
}

// orbit is a camera circling the scene center.
type orbit struct {
	distance float32
	height   float32
	angle    float32
}

func newOrbit(placementRadius float32) *orbit {
	return &orbit{distance: placementRadius * 1.6, height: placementRadius * 0.45}
}

func (c *orbit) advance(degrees float32) {
	c.angle += degrees * math32.Pi / 180
}

func (c *orbit) state(width, height int) render.CameraState {
	eye := raytrace.V3(math32.Sin(c.angle)*c.distance, c.height, math32.Cos(c.angle)*c.distance)
	return render.NewCamera(eye, raytrace.V3(0, 0, 0), math32.Pi/3, width, height)
}

func writePNG(path string, p *render.ImagePresenter) error {
	img := p.Image()
	if img == nil {
		return fmt.Errorf("no frame presented")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
