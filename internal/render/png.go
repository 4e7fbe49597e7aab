package render

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
)

// PNGOptions controls WritePNG. Zero values select defaults.
type PNGOptions struct {
	Title  string
	Bins   int
	Width  vg.Length
	Height vg.Length
	// HistogramMax caps the histogram's count axis; 0 auto-scales.
	HistogramMax float64
}

func (o PNGOptions) withDefaults() PNGOptions {
	if o.Bins == 0 {
		o.Bins = framestats.DefaultBins
	}
	if o.Width == 0 {
		o.Width = 12 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 4 * vg.Inch
	}
	return o
}

// frameGrid adapts a frame to plotter.GridXYZ with cell centres at
// (col+0.5, row+0.5), so row 0 is drawn at the bottom.
type frameGrid struct {
	f *thermal.Frame
}

func (g frameGrid) Dims() (c, r int)   { return thermal.Cols, thermal.Rows }
func (g frameGrid) Z(c, r int) float64 { return g.f[r][c] }
func (g frameGrid) X(c int) float64    { return float64(c) + 0.5 }
func (g frameGrid) Y(r int) float64    { return float64(r) + 0.5 }
func (g frameGrid) Min() float64       { return thermal.MinTemperature }
func (g frameGrid) Max() float64       { return thermal.MaxTemperature }

func heatmapPlot(f *thermal.Frame, title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Min, p.X.Max = 0, thermal.Cols
	p.Y.Min, p.Y.Max = 0, thermal.Rows

	hm := plotter.NewHeatMap(frameGrid{f}, NewPalette(257))
	hm.Underflow = Black
	hm.Overflow = Black
	hm.NaN = Black
	p.Add(hm)
	return p
}

func histogramPlot(h framestats.Histogram, ymax float64) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "°C"
	p.Y.Label.Text = "pixels"
	p.X.Min, p.X.Max = h.Edges[0], h.Edges[len(h.Edges)-1]
	p.Y.Min = 0
	if ymax > 0 {
		p.Y.Max = ymax
	}

	centers := h.Centers()
	for i, count := range h.Counts {
		lo, hi := h.Edges[i], h.Edges[i+1]
		bar, err := plotter.NewPolygon(plotter.XYs{
			{X: lo, Y: 0}, {X: hi, Y: 0}, {X: hi, Y: float64(count)}, {X: lo, Y: float64(count)},
		})
		if err != nil {
			return nil, err
		}
		bar.Color = Color(centers[i])
		bar.LineStyle.Width = vg.Points(1)
		bar.LineStyle.Color = plotter.DefaultLineStyle.Color
		p.Add(bar)
		if float64(count) > p.Y.Max && ymax == 0 {
			p.Y.Max = float64(count)
		}
	}
	return p, nil
}

// WritePNG draws f as a heatmap beside its temperature histogram, with bar
// colours taken from the palette at each bin centre.
func WritePNG(w io.Writer, f thermal.Frame, opts PNGOptions) error {
	opts = opts.withDefaults()

	h, err := framestats.ComputeHistogram(f, opts.Bins)
	if err != nil {
		return err
	}
	hist, err := histogramPlot(h, opts.HistogramMax)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	heat := heatmapPlot(&f, opts.Title)

	img := vgimg.New(opts.Width, opts.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{heat, hist}}, tiles, dc)
	heat.Draw(canvases[0][0])
	hist.Draw(canvases[0][1])

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// FrameTitle formats the min/max caption shown above each frame.
func FrameTitle(s framestats.Summary) string {
	return fmt.Sprintf("T_min = %.2f°C, T_max = %.2f°C", s.Min, s.Max)
}
