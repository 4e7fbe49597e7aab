package thermal

import "fmt"

// State is the decoder's position within a wire row.
type State int

const (
	SeekStart State = iota
	ReadRow
	ReadSampleHi
	ReadSampleLo
	SeekEnd
)

func (s State) String() string {
	switch s {
	case SeekStart:
		return "seek-start"
	case ReadRow:
		return "read-row"
	case ReadSampleHi:
		return "read-sample-hi"
	case ReadSampleLo:
		return "read-sample-lo"
	case SeekEnd:
		return "seek-end"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DecoderStats counts what the decoder has seen. Dropped rows are silent
// otherwise, so these counters are the only record of stream quality.
type DecoderStats struct {
	Bytes               uint64 `json:"bytes"`
	Rows                uint64 `json:"rows"`
	Frames              uint64 `json:"frames"`
	InvalidSymbols      uint64 `json:"invalid_symbols"`
	RowsOutOfRange      uint64 `json:"rows_out_of_range"`
	DelimiterMismatches uint64 `json:"delimiter_mismatches"`
}

// Dropped is the number of rows abandoned after a '{' was seen.
func (s DecoderStats) Dropped() uint64 {
	return s.InvalidSymbols + s.RowsOutOfRange + s.DelimiterMismatches
}

// Decoder is the character state machine. It owns no I/O: bytes are pushed
// in with Feed or Write and completed rows land in the Buffer it was given.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf      *Buffer
	listener Listener

	state   State
	row     int
	col     int
	hi      uint8
	pending Row

	stats DecoderStats
}

// NewDecoder returns a decoder writing into buf and notifying listeners.
func NewDecoder(buf *Buffer, listeners ...Listener) *Decoder {
	return &Decoder{
		buf:      buf,
		listener: combine(listeners),
	}
}

// Feed advances the state machine by one character.
func (d *Decoder) Feed(c byte) {
	d.stats.Bytes++

	switch d.state {
	case SeekStart:
		if c == FrameStart {
			d.state = ReadRow
		}

	case ReadRow:
		v, err := DecodeSymbol(c)
		if err != nil {
			d.fail(ErrInvalidSymbol)
			return
		}
		if int(v) >= Rows {
			d.fail(ErrRowIndexOutOfRange)
			return
		}
		d.row = int(v)
		d.col = 0
		d.state = ReadSampleHi

	case ReadSampleHi:
		v, err := DecodeSymbol(c)
		if err != nil {
			d.fail(ErrInvalidSymbol)
			return
		}
		d.hi = v
		d.state = ReadSampleLo

	case ReadSampleLo:
		v, err := DecodeSymbol(c)
		if err != nil {
			d.fail(ErrInvalidSymbol)
			return
		}
		d.pending[d.col] = sampleTemperature(d.hi, v)
		d.col++
		if d.col == Cols {
			d.state = SeekEnd
		} else {
			d.state = ReadSampleHi
		}

	case SeekEnd:
		if c != FrameEnd {
			d.fail(ErrFrameDelimiterMismatch)
			return
		}
		d.complete()
	}
}

// Write feeds every byte of p. It never fails, which lets a Decoder sit at
// the end of io.Copy or a serial monitor.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, c := range p {
		d.Feed(c)
	}
	return len(p), nil
}

// State reports where the decoder is within the current row.
func (d *Decoder) State() State {
	return d.state
}

// Stats returns a copy of the counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Reset abandons any pending row without counting it as dropped.
func (d *Decoder) Reset() {
	d.state = SeekStart
	d.col = 0
	d.pending = Row{}
}

func (d *Decoder) complete() {
	row, temps := d.row, d.pending
	d.Reset()

	d.buf.SetRow(row, temps)
	d.stats.Rows++
	d.listener.RowComplete(row, temps)
	if row == Rows-1 {
		d.stats.Frames++
		d.listener.FrameComplete()
	}
}

// fail drops the pending row and consumes c. A '{' that caused the failure
// is not reused, so a truncated row also costs the row that follows it.
func (d *Decoder) fail(reason error) {
	switch reason {
	case ErrInvalidSymbol:
		d.stats.InvalidSymbols++
	case ErrRowIndexOutOfRange:
		d.stats.RowsOutOfRange++
	case ErrFrameDelimiterMismatch:
		d.stats.DelimiterMismatches++
	}
	d.Reset()
}
