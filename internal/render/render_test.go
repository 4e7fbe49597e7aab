package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
)

func TestColor_RangeEndpoints(t *testing.T) {
	tests := []struct {
		temp float64
		want color.RGBA
	}{
		{-40, rgb(218, 240, 255)},
		{0, rgb(0, 0, 255)}, // shared boundary goes to the warmer range
		{5, rgb(46, 139, 87)},
		{30, rgb(255, 179, 220)},
		{40, rgb(247, 221, 219)},
		{100, rgb(255, 77, 0)},
		{150, rgb(255, 255, 0)},
		{216, rgb(255, 245, 158)},
		{125, rgb(255, 166, 0)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Color(tt.temp), "T=%v", tt.temp)
	}
}

func TestColor_OutsideRangesIsBlack(t *testing.T) {
	for _, temp := range []float64{-40.01, 216.5, math.NaN(), math.Inf(1)} {
		assert.Equal(t, Black, Color(temp), "T=%v", temp)
	}
}

func TestHex(t *testing.T) {
	assert.Equal(t, "#daf0ff", Hex(Color(-40)))
	assert.Equal(t, "#000000", Hex(Black))
}

func TestPalette(t *testing.T) {
	p := NewPalette(257)
	cs := p.Colors()
	require.Len(t, cs, 257)
	assert.Equal(t, Color(-40), cs[0])
	assert.Equal(t, Color(0), cs[40])
	assert.Equal(t, Color(216), cs[256])

	assert.Len(t, NewPalette(0).Hexes(), 2)
}

func TestWritePNG(t *testing.T) {
	f := thermal.NewRampBuffer().Snapshot()
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, f, PNGOptions{Title: FrameTitle(framestats.Summarize(f))}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), b.Dy(), "heatmap and histogram side by side")
}

func TestWritePNG_InvalidBins(t *testing.T) {
	var buf bytes.Buffer
	err := WritePNG(&buf, thermal.Frame{}, PNGOptions{Bins: -3})
	assert.ErrorIs(t, err, framestats.ErrInvalidBins)
	assert.Zero(t, buf.Len())
}

func TestFrameTitle(t *testing.T) {
	assert.Equal(t, "T_min = -1.50°C, T_max = 36.25°C", FrameTitle(framestats.Summary{Min: -1.5, Max: 36.25}))
}

func TestHeatmapPage(t *testing.T) {
	f := thermal.NewRampBuffer().Snapshot()
	var buf bytes.Buffer
	require.NoError(t, HeatmapPage(&buf, f, "ircam live", PageOptions{RefreshSeconds: 2}))

	html := buf.String()
	assert.True(t, strings.HasPrefix(html, `<meta http-equiv="refresh" content="2">`))
	assert.Contains(t, html, "ircam live")
	assert.Contains(t, html, "heatmap")
	assert.Contains(t, html, "T_max = 216.00")
	assert.Contains(t, html, Hex(Color(-40)))
}
