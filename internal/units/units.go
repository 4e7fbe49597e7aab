// Package units provides shared constants and validation for temperature units
package units

import (
	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
)

// Unit constants
const (
	Celsius    = "c"
	Fahrenheit = "f"
	Kelvin     = "k"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Celsius, Fahrenheit, Kelvin}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "c, f, k"
}

func scaleOffset(unit string) (float64, float64) {
	switch unit {
	case Fahrenheit:
		return 1.8, 32
	case Kelvin:
		return 1, 273.15
	default:
		return 1, 0
	}
}

// ConvertTemperature converts a temperature from degrees Celsius to the
// target unit. Frames and summaries are always Celsius internally.
func ConvertTemperature(celsius float64, targetUnit string) float64 {
	scale, offset := scaleOffset(targetUnit)
	return celsius*scale + offset
}

// ConvertFrame converts every cell of f.
func ConvertFrame(f thermal.Frame, targetUnit string) thermal.Frame {
	if targetUnit == Celsius {
		return f
	}
	for r := range f {
		for c := range f[r] {
			f[r][c] = ConvertTemperature(f[r][c], targetUnit)
		}
	}
	return f
}

// ConvertSummary converts a frame summary. The spread only scales.
func ConvertSummary(s framestats.Summary, targetUnit string) framestats.Summary {
	scale, _ := scaleOffset(targetUnit)
	return framestats.Summary{
		Min:    ConvertTemperature(s.Min, targetUnit),
		Max:    ConvertTemperature(s.Max, targetUnit),
		Mean:   ConvertTemperature(s.Mean, targetUnit),
		StdDev: s.StdDev * scale,
	}
}
