package thermal

import "errors"

// Decoder-local errors. The decoder recovers from all of these by dropping
// the pending row and resynchronising on the next '{'; they are only ever
// visible through DecoderStats and the codec functions.
var (
	ErrInvalidSymbol          = errors.New("thermal: invalid symbol")
	ErrRowIndexOutOfRange     = errors.New("thermal: row index out of range")
	ErrFrameDelimiterMismatch = errors.New("thermal: frame delimiter mismatch")
)

// ErrTransportFailure wraps a failed read from the byte source. It is fatal
// for a capture run; reconnecting is the caller's decision.
var ErrTransportFailure = errors.New("thermal: transport failure")
