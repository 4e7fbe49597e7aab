// Package render draws frames as images: a PNG with heatmap and histogram
// for offline export, and an ECharts page for the browser.
package render

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"

	"github.com/banshee-data/ircam/internal/thermal"
)

// colorRange linearly interpolates between two colours over [lo, hi].
type colorRange struct {
	lo, hi       float64
	loRGB, hiRGB color.RGBA
}

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 0xff} }

// colorRanges is searched in order; the first range containing t wins, so
// shared boundaries take the colour of the warmer range.
var colorRanges = []colorRange{
	{150, 216, rgb(255, 255, 0), rgb(255, 245, 158)},
	{100, 150, rgb(255, 77, 0), rgb(255, 255, 0)},
	{40, 100, rgb(247, 221, 219), rgb(255, 0, 0)},
	{30, 40, rgb(255, 179, 220), rgb(218, 112, 214)},
	{5, 30, rgb(46, 139, 87), rgb(228, 250, 228)},
	{0, 5, rgb(0, 0, 255), rgb(46, 139, 87)},
	{-40, 0, rgb(218, 240, 255), rgb(102, 190, 249)},
}

// Black is used for temperatures outside every range, and NaN.
var Black = rgb(0, 0, 0)

func lerp(a, b uint8, frac float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*frac))
}

// Color maps a temperature in degrees Celsius to its display colour.
func Color(t float64) color.RGBA {
	for _, cr := range colorRanges {
		if t >= cr.lo && t <= cr.hi {
			frac := (t - cr.lo) / (cr.hi - cr.lo)
			return rgb(
				lerp(cr.loRGB.R, cr.hiRGB.R, frac),
				lerp(cr.loRGB.G, cr.hiRGB.G, frac),
				lerp(cr.loRGB.B, cr.hiRGB.B, frac),
			)
		}
	}
	return Black
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette samples Color at n evenly spaced temperatures across the sensor
// range. It implements gonum's palette.Palette for heat maps whose Min and
// Max are the sensor limits.
type Palette struct {
	n int
}

// NewPalette returns a palette of n colours; n below 2 is raised to 2.
func NewPalette(n int) Palette {
	return Palette{n: max(n, 2)}
}

// Colors implements palette.Palette.
func (p Palette) Colors() []color.Color {
	out := make([]color.Color, p.n)
	for i, t := range p.temperatures() {
		out[i] = Color(t)
	}
	return out
}

// Hexes returns the palette as CSS colours.
func (p Palette) Hexes() []string {
	out := make([]string, p.n)
	for i, t := range p.temperatures() {
		out[i] = Hex(Color(t))
	}
	return out
}

func (p Palette) temperatures() []float64 {
	ts := make([]float64, p.n)
	step := float64(thermal.MaxTemperature-thermal.MinTemperature) / float64(p.n-1)
	for i := range ts {
		ts[i] = thermal.MinTemperature + step*float64(i)
	}
	ts[p.n-1] = thermal.MaxTemperature
	return ts
}

var _ palette.Palette = Palette{}
