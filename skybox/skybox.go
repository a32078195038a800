// Package skybox loads the equirectangular environment image sampled by the
// trace kernel when a ray leaves the scene.
//
// Images are decoded with the standard library codecs plus the WebP, BMP and
// TIFF decoders from golang.org/x/image, downscaled to MaxDimension and
// packed into RGBA8 texels (red in the low byte) ready for upload.
package skybox

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/raytrace"
)

// MaxDimension bounds the longer edge of a loaded skybox in texels.
const MaxDimension = 4096

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("skybox: empty image")

// Image is a packed RGBA8 skybox.
type Image struct {
	Width  int
	Height int
	Texels []uint32 // Row-major, R | G<<8 | B<<16 | A<<24
}

// At returns the texel at (x, y) unpacked to color.RGBA.
func (m *Image) At(x, y int) color.RGBA {
	t := m.Texels[y*m.Width+x]
	return color.RGBA{R: uint8(t), G: uint8(t >> 8), B: uint8(t >> 16), A: uint8(t >> 24)}
}

// Load decodes the image file at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("skybox: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("skybox: %s: %w", path, err)
	}
	return img, nil
}

// Decode reads any registered image format from r.
func Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", raytrace.ErrConfiguration, err)
	}
	img, err := FromImage(src, MaxDimension)
	if err != nil {
		return nil, err
	}
	raytrace.Logger().Debug("skybox: decoded", "format", format,
		"width", img.Width, "height", img.Height)
	return img, nil
}

// FromImage converts src to packed texels, scaling it down with Catmull-Rom
// so that neither edge exceeds maxDim. A maxDim <= 0 disables scaling.
func FromImage(src image.Image, maxDim int) (*Image, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	w, h := fit(b.Dx(), b.Dy(), maxDim)
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(rgba, rgba.Bounds(), src, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(rgba, rgba.Bounds(), src, b, xdraw.Src, nil)
	}
	return pack(rgba), nil
}

// fit scales (w, h) down, keeping the aspect ratio, so that both edges are
// at most maxDim.
func fit(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

func pack(rgba *image.RGBA) *Image {
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	out := &Image{Width: w, Height: h, Texels: make([]uint32, w*h)}
	for y := range h {
		row := rgba.Pix[y*rgba.Stride:]
		for x := range w {
			p := row[x*4 : x*4+4]
			out.Texels[y*w+x] = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
		}
	}
	return out
}
