package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/chewxy/math32"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultGamma is the display gamma applied when converting linear radiance
// to 8-bit color.
const DefaultGamma = 2.2

// Frame is the accumulated image handed to a Presenter after each
// successful composite.
type Frame struct {
	Width   int
	Height  int
	Pixels  []float32 // Linear RGBA, row-major; valid only during Present
	Samples uint32    // Samples in the average
}

// Presenter receives accumulated frames. The renderer does not touch the
// display surface itself; a Presenter blits to wherever the host draws.
type Presenter interface {
	Present(f Frame) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(f Frame) error

// Present calls fn(f).
func (fn PresenterFunc) Present(f Frame) error { return fn(f) }

// ImagePresenter converts frames to *image.RGBA, optionally scaling them to
// a display size and stamping the sample count.
//
// ImagePresenter is safe for concurrent use.
type ImagePresenter struct {
	// DisplayWidth and DisplayHeight set the output size.
	// Zero uses the frame size.
	DisplayWidth, DisplayHeight int

	// Gamma is the display gamma. Zero uses DefaultGamma.
	Gamma float32

	// HUD draws "samples: N" in the top-left corner.
	HUD bool

	mu    sync.Mutex
	lut   []uint8
	gamma float32
	img   *image.RGBA
}

// Present converts f and keeps the result for Image.
func (p *ImagePresenter) Present(f Frame) error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) < f.Width*f.Height*4 {
		return fmt.Errorf("render: present: invalid frame %dx%d with %d floats", f.Width, f.Height, len(f.Pixels))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	src := toRGBA(f, p.lutLocked())

	dst := src
	w, h := p.DisplayWidth, p.DisplayHeight
	if w > 0 && h > 0 && (w != f.Width || h != f.Height) {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}
	if p.HUD {
		drawHUD(dst, fmt.Sprintf("samples: %d", f.Samples))
	}
	p.img = dst
	return nil
}

// Image returns the last presented image, or nil.
func (p *ImagePresenter) Image() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.img
}

// lutLocked returns the linear-to-8-bit table for the current gamma.
func (p *ImagePresenter) lutLocked() []uint8 {
	g := p.Gamma
	if g <= 0 {
		g = DefaultGamma
	}
	if p.lut == nil || p.gamma != g {
		p.lut = gammaLUT(g)
		p.gamma = g
	}
	return p.lut
}

// lutSize is the number of entries covering linear values in [0, 1].
const lutSize = 4096

func gammaLUT(gamma float32) []uint8 {
	lut := make([]uint8, lutSize+1)
	for i := range lut {
		v := math32.Pow(float32(i)/lutSize, 1/gamma)
		lut[i] = uint8(math32.Round(v * 255))
	}
	return lut
}

func encode(lut []uint8, v float32) uint8 {
	// Negated comparison so that NaN maps to black.
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return lut[int(v*lutSize+0.5)]
}

// toRGBA tone-maps linear radiance with the gamma table. Alpha is stored
// linearly.
func toRGBA(f Frame, lut []uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := range f.Height {
		src := f.Pixels[y*f.Width*4 : (y+1)*f.Width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i] = encode(lut, src[i])
			dst[i+1] = encode(lut, src[i+1])
			dst[i+2] = encode(lut, src[i+2])
			dst[i+3] = uint8(math32.Round(clamp01(src[i+3]) * 255))
		}
	}
	return img
}

func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	return min(v, 1)
}

// drawHUD stamps text on a dark box in the top-left corner.
func drawHUD(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	box := image.Rect(0, 0, width+8, face.Height+6).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d.Dot = fixed.P(4, 3+face.Ascent)
	d.DrawString(text)
}
