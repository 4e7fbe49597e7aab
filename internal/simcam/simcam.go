// Package simcam synthesises sensor output for dev mode and for exercising
// the decoder and replay without hardware.
package simcam

import (
	"bytes"
	"math"
	"math/rand"

	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/thermal/csvlog"
)

// Wave is a radial sine wave travelling outwards from the sensor centre.
// Amplitude and offset fall off linearly with radius, so the centre swings
// across most of the sensor range while the corners stay near 22°C.
type Wave struct {
	// Frequency in Hz.
	Frequency float64

	r, amp, offset thermal.Frame
}

// NewWave precomputes the radial reference grids.
func NewWave(frequency float64) *Wave {
	w := &Wave{Frequency: frequency}
	rmin, rmax := math.Inf(1), math.Inf(-1)
	for row := range w.r {
		y := -11.5 + float64(row)
		for col := range w.r[row] {
			x := -15.5 + float64(col)
			r := math.Hypot(x, y)
			w.r[row][col] = r
			rmin = math.Min(rmin, r)
			rmax = math.Max(rmax, r)
		}
	}
	for row := range w.r {
		for col, r := range w.r[row] {
			k := (rmax - r) / (rmax - rmin)
			w.amp[row][col] = 127 * k
			w.offset[row][col] = 66*k + 22
		}
	}
	return w
}

// Frame returns the wave at time t seconds, clamped to the sensor range.
func (w *Wave) Frame(t float64) thermal.Frame {
	var f thermal.Frame
	phase := 2 * math.Pi * w.Frequency * t
	for row := range f {
		for col := range f[row] {
			v := w.offset[row][col] + w.amp[row][col]*math.Sin(w.r[row][col]-phase)
			f[row][col] = thermal.Clamp(v)
		}
	}
	return f
}

// Frames returns n frames sampled every step seconds from t=0.
func (w *Wave) Frames(n int, step float64) []thermal.Frame {
	out := make([]thermal.Frame, n)
	for i := range out {
		out[i] = w.Frame(float64(i) * step)
	}
	return out
}

// WireFrames encodes each frame as the camera sends it, one chunk per frame
// with a trailing CRLF.
func WireFrames(frames []thermal.Frame) ([][]byte, error) {
	chunks := make([][]byte, len(frames))
	for i, f := range frames {
		b, err := thermal.EncodeFrame(f)
		if err != nil {
			return nil, err
		}
		chunks[i] = append(b, '\r', '\n')
	}
	return chunks, nil
}

// CSV returns the capture log lines for frames.
func CSV(frames []thermal.Frame) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range frames {
		if err := csvlog.WriteFrame(&buf, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Corrupt replaces each byte of p with an out-of-alphabet byte with
// probability rate, simulating line noise. It returns how many bytes were
// replaced. Delimiters are corrupted too, which exercises resync.
func Corrupt(p []byte, rate float64, rng *rand.Rand) int {
	if rate <= 0 {
		return 0
	}
	n := 0
	for i := range p {
		if rng.Float64() < rate {
			p[i] = '#'
			n++
		}
	}
	return n
}
