package csvlog

import (
	"bufio"
	"io"

	"github.com/banshee-data/ircam/internal/thermal"
)

// Writer appends one CSV line per completed row. It is a thermal.Listener,
// so it can be handed straight to a Decoder or to Replay. Output is
// buffered and flushed at every frame boundary.
//
// Listener methods cannot return errors, so the first write error is
// latched and reported by Err and Flush; later rows are discarded.
type Writer struct {
	w    *bufio.Writer
	line []byte
	rows uint64
	err  error
}

// NewWriter returns a Writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:    bufio.NewWriter(w),
		line: make([]byte, 0, 8*FieldsPerLine),
	}
}

func (w *Writer) RowComplete(row int, temps thermal.Row) {
	if w.err != nil {
		return
	}
	w.line = AppendRow(w.line[:0], row, temps)
	if _, err := w.w.Write(w.line); err != nil {
		w.err = err
		return
	}
	w.rows++
}

func (w *Writer) FrameComplete() {
	if w.err != nil {
		return
	}
	w.err = w.w.Flush()
}

// Flush writes any buffered lines.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Err returns the latched write error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Rows is the number of lines written so far.
func (w *Writer) Rows() uint64 {
	return w.rows
}
