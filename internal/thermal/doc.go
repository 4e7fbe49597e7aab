// Package thermal decodes the serial stream of the MLX90640 thermal camera
// bridge into a 24×32 grid of temperatures.
//
// The wire format is one row per frame:
//
//	'{' <row symbol> <32 × (hi symbol, lo symbol)> '}'
//
// Symbols come from a 64 character alphabet (0-9, a-z, A-Z, '=', '%') and a
// sample decodes as (hi*64+lo)/16 - 40 degrees C. Anything between frames is
// noise and is skipped.
//
// Key types: Decoder (the character state machine), Buffer (the single live
// grid it writes into) and Listener (row and frame completion events).
//
// A Buffer has exactly one producer at a time, either a Decoder fed from the
// live stream or a csvlog replay. Nothing here locks; consumers must take a
// Snapshot, normally from inside FrameComplete.
package thermal
