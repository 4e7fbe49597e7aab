package thermal

import (
	"fmt"
	"math"
)

const (
	// Rows and Cols are the fixed sensor dimensions.
	Rows = 24
	Cols = 32

	// MinTemperature and MaxTemperature bound the valid temperature range.
	// The wire encoding tops out at MaxSample, just under MaxTemperature.
	MinTemperature = -40.0
	MaxTemperature = 216.0
	MaxSample      = 4095.0/16.0 - 40.0

	// FrameStart and FrameEnd delimit a row on the wire.
	FrameStart = '{'
	FrameEnd   = '}'
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ=%"

// DecodeSymbol maps one alphabet character to its 6-bit value.
func DecodeSymbol(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'z':
		return 10 + c - 'a', nil
	case c >= 'A' && c <= 'Z':
		return 36 + c - 'A', nil
	case c == '=':
		return 62, nil
	case c == '%':
		return 63, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSymbol, c)
}

// EncodeSymbol is the inverse of DecodeSymbol.
func EncodeSymbol(v uint8) (byte, error) {
	if int(v) >= len(alphabet) {
		return 0, fmt.Errorf("%w: value %d", ErrInvalidSymbol, v)
	}
	return alphabet[v], nil
}

// DecodeSample decodes a two symbol sample into degrees C. The result is
// always within [MinTemperature, MaxSample].
func DecodeSample(hi, lo byte) (float64, error) {
	h, err := DecodeSymbol(hi)
	if err != nil {
		return 0, err
	}
	l, err := DecodeSymbol(lo)
	if err != nil {
		return 0, err
	}
	return sampleTemperature(h, l), nil
}

func sampleTemperature(hi, lo uint8) float64 {
	value := int(hi)*64 + int(lo)
	return float64(value)/16.0 - 40.0
}

// EncodeSample quantises t to 1/16 of a degree and returns its two symbols.
// Temperatures outside the representable range are clamped. For any t
// produced by DecodeSample the round trip is exact.
func EncodeSample(t float64) (hi, lo byte, err error) {
	if math.IsNaN(t) {
		return 0, 0, fmt.Errorf("%w: NaN temperature", ErrInvalidSymbol)
	}
	value := math.Round((t + 40.0) * 16.0)
	value = math.Max(0, math.Min(4095, value))
	v := int(value)
	return alphabet[v/64], alphabet[v%64], nil
}

// Clamp limits t to [MinTemperature, MaxTemperature].
func Clamp(t float64) float64 {
	if t < MinTemperature {
		return MinTemperature
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}

// EncodeRow renders one row in wire format, delimiters included.
func EncodeRow(row int, temps Row) ([]byte, error) {
	if row < 0 || row >= Rows {
		return nil, fmt.Errorf("%w: %d", ErrRowIndexOutOfRange, row)
	}
	out := make([]byte, 0, 4+2*Cols)
	out = append(out, FrameStart, alphabet[row])
	for _, t := range temps {
		hi, lo, err := EncodeSample(t)
		if err != nil {
			return nil, err
		}
		out = append(out, hi, lo)
	}
	return append(out, FrameEnd), nil
}

// EncodeFrame renders all rows of f in ascending order.
func EncodeFrame(f Frame) ([]byte, error) {
	var out []byte
	for row := range f {
		line, err := EncodeRow(row, f[row])
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
	}
	return out, nil
}
