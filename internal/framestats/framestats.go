// Package framestats computes per-frame summary statistics and
// temperature histograms.
package framestats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ircam/internal/thermal"
)

// Bin counts used by the live viewer and the replay tool.
const (
	DefaultBins = 16
	ReplayBins  = 32
	MaxBins     = 256
)

var ErrInvalidBins = errors.New("framestats: bin count out of range")

// Summary describes the temperature distribution of one frame.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Summarize returns min, max, mean and sample standard deviation of f.
func Summarize(f thermal.Frame) Summary {
	v := f.Values()
	mean, std := stat.MeanStdDev(v, nil)
	return Summary{
		Min:    floats.Min(v),
		Max:    floats.Max(v),
		Mean:   mean,
		StdDev: std,
	}
}

// Histogram is a fixed-range histogram over the sensor's temperature range.
// Edges has one more element than Counts.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// Centers returns the midpoint of each bin.
func (h Histogram) Centers() []float64 {
	c := make([]float64, len(h.Counts))
	for i := range c {
		c[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return c
}

// Total returns the number of samples counted.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Edges returns bins+1 evenly spaced edges over [MinTemperature, MaxTemperature].
func Edges(bins int) []float64 {
	e := make([]float64, bins+1)
	floats.Span(e, thermal.MinTemperature, thermal.MaxTemperature)
	return e
}

// ComputeHistogram bins every cell of f into bins equal-width bins spanning
// the sensor range. Cells are clamped first, and the top edge is inclusive.
func ComputeHistogram(f thermal.Frame, bins int) (Histogram, error) {
	if bins < 1 || bins > MaxBins {
		return Histogram{}, ErrInvalidBins
	}

	v := f.Values()
	for i := range v {
		v[i] = thermal.Clamp(v[i])
	}
	sort.Float64s(v)

	edges := Edges(bins)
	dividers := append([]float64(nil), edges...)
	// stat.Histogram treats the last divider as exclusive
	dividers[bins] = math.Nextafter(thermal.MaxTemperature, math.Inf(1))

	raw := stat.Histogram(nil, dividers, v, nil)
	counts := make([]int, bins)
	for i, c := range raw {
		counts[i] = int(c)
	}
	return Histogram{Edges: edges, Counts: counts}, nil
}
