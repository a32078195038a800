package skybox

import (
	"image/color"

	"github.com/chewxy/math32"
)

// Default gradient colors.
var (
	Zenith  = color.RGBA{R: 70, G: 120, B: 200, A: 255}
	Horizon = color.RGBA{R: 200, G: 220, B: 240, A: 255}
	Ground  = color.RGBA{R: 60, G: 55, B: 50, A: 255}
)

// Gradient builds a procedural equirectangular sky: Zenith at the top row
// fading to Horizon at the middle row, and Ground below the horizon.
func Gradient(width, height int) *Image {
	width, height = max(width, 1), max(height, 1)
	img := &Image{Width: width, Height: height, Texels: make([]uint32, width*height)}

	for y := range height {
		// v in [0, 1]: 0 at the zenith, 0.5 at the horizon.
		v := (float32(y) + 0.5) / float32(height)
		var c color.RGBA
		if v < 0.5 {
			// Ease toward the horizon.
			t := math32.Pow(v*2, 0.5)
			c = lerpRGBA(Zenith, Horizon, t)
		} else {
			c = Ground
		}
		t := uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
		row := img.Texels[y*width : (y+1)*width]
		for x := range row {
			row[x] = t
		}
	}
	return img
}

func lerpRGBA(a, b color.RGBA, t float32) color.RGBA {
	l := func(x, y uint8) uint8 {
		return uint8(math32.Round(float32(x) + (float32(y)-float32(x))*t))
	}
	return color.RGBA{R: l(a.R, b.R), G: l(a.G, b.G), B: l(a.B, b.B), A: l(a.A, b.A)}
}
