package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
)

// PageOptions controls HeatmapPage.
type PageOptions struct {
	// AssetsHost serves echarts.min.js; empty uses the go-echarts default CDN.
	AssetsHost string
	Bins       int
	// RefreshSeconds adds a meta refresh to the page when positive.
	RefreshSeconds int
}

func axisLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return labels
}

func heatmapChart(f thermal.Frame, title, subtitle string, o PageOptions) *charts.HeatMap {
	data := make([]opts.HeatMapData, 0, thermal.Rows*thermal.Cols)
	for r := range f {
		for c := range f[r] {
			data = append(data, opts.HeatMapData{Value: [3]any{c, r, f[r][c]}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "960px", Height: "720px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: axisLabels(thermal.Cols), Name: "col"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: axisLabels(thermal.Rows), Name: "row"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        thermal.MinTemperature,
			Max:        thermal.MaxTemperature,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: NewPalette(65).Hexes()},
		}),
	)
	hm.SetXAxis(axisLabels(thermal.Cols)).AddSeries("temperature", data)
	return hm
}

func histogramChart(h framestats.Histogram, o PageOptions) *charts.Bar {
	centers := h.Centers()
	x := make([]string, len(h.Counts))
	y := make([]opts.BarData, len(h.Counts))
	for i, count := range h.Counts {
		x[i] = strconv.FormatFloat(centers[i], 'f', 0, 64)
		y[i] = opts.BarData{Value: count, ItemStyle: &opts.ItemStyle{Color: Hex(Color(centers[i]))}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "960px", Height: "320px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Histogram"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("pixels", y)
	return bar
}

// HeatmapPage renders f and its histogram as a standalone HTML page.
func HeatmapPage(w io.Writer, f thermal.Frame, title string, o PageOptions) error {
	if o.Bins == 0 {
		o.Bins = framestats.DefaultBins
	}
	h, err := framestats.ComputeHistogram(f, o.Bins)
	if err != nil {
		return err
	}

	subtitle := FrameTitle(framestats.Summarize(f))
	page := components.NewPage()
	page.SetPageTitle(title)
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(heatmapChart(f, title, subtitle, o), histogramChart(h, o))

	if o.RefreshSeconds > 0 {
		if _, err := fmt.Fprintf(w, "<meta http-equiv=\"refresh\" content=\"%d\">\n", o.RefreshSeconds); err != nil {
			return err
		}
	}
	return page.Render(w)
}
