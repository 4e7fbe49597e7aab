// Package testutil provides shared test helpers and frame fixtures for the
// packages above the decoder (capture, framepub, api, db).
package testutil

import (
	"bytes"
	"testing"

	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/thermal/csvlog"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// GradientFrame returns a frame whose cells are distinct multiples of
// 1/16 degree starting at base, so it survives the wire encoding exactly.
func GradientFrame(base float64) thermal.Frame {
	var f thermal.Frame
	for r := range f {
		for c := range f[r] {
			f[r][c] = thermal.Clamp(base + float64(r*thermal.Cols+c)*0.0625)
		}
	}
	return f
}

// WireFrame encodes f as the camera would send it.
func WireFrame(t *testing.T, f thermal.Frame) []byte {
	t.Helper()
	b, err := thermal.EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return b
}

// NoisyStream concatenates the wire encoding of each frame with line noise
// between them, as seen after a device reset.
func NoisyStream(t *testing.T, frames ...thermal.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("MLX90640 ready\r\n")
	for _, f := range frames {
		buf.Write(WireFrame(t, f))
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// CSVFrame returns the capture log lines for f in ascending row order.
func CSVFrame(t *testing.T, f thermal.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := csvlog.WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	return buf.Bytes()
}
