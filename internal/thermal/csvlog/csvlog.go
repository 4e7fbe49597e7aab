// Package csvlog reads and writes the line-oriented capture log.
//
// Each line is one validated row: the row index followed by 32
// temperatures with two fractional digits, comma separated, no header:
//
//	7,21.50,21.56,...,22.06
//
// Lines appear in the order rows arrived, which is not necessarily
// ascending. Replay is strict: unlike the live stream there is no framing
// to resynchronise on, so any malformed line aborts the run.
package csvlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ircam/internal/thermal"
)

// FieldsPerLine is the row index plus one field per column.
const FieldsPerLine = thermal.Cols + 1

// ErrMalformedLine is matched by every replay parse failure.
var ErrMalformedLine = errors.New("csvlog: malformed line")

// MalformedLineError reports which line failed and why.
type MalformedLineError struct {
	Line   int // 1-based
	Reason string
	Err    error
}

func (e *MalformedLineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("csvlog: line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("csvlog: line %d: %s", e.Line, e.Reason)
}

func (e *MalformedLineError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedLine, e.Err}
	}
	return []error{ErrMalformedLine}
}

// FileName is the capture log name for a session started at t.
func FileName(t time.Time) string {
	return t.Format("IRCam-20060102-150405") + ".csv"
}

// AppendRow appends the CSV line for one row, newline included.
func AppendRow(dst []byte, row int, temps thermal.Row) []byte {
	dst = strconv.AppendInt(dst, int64(row), 10)
	for _, t := range temps {
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, t, 'f', 2, 64)
	}
	return append(dst, '\n')
}

// FormatRow returns the CSV line for one row, newline included.
func FormatRow(row int, temps thermal.Row) string {
	return string(AppendRow(make([]byte, 0, 8*FieldsPerLine), row, temps))
}

// ParseRow parses one line (without its newline). Temperatures are clamped
// to [thermal.MinTemperature, thermal.MaxTemperature]. The returned error
// carries line number 0; Replay fills in the real one.
func ParseRow(line string) (int, thermal.Row, error) {
	var temps thermal.Row

	line = strings.TrimSuffix(line, "\r")
	fields := strings.Split(line, ",")
	if len(fields) != FieldsPerLine {
		return 0, temps, &MalformedLineError{
			Reason: fmt.Sprintf("got %d fields, want %d", len(fields), FieldsPerLine),
		}
	}

	row, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, temps, &MalformedLineError{Reason: "row index is not an integer", Err: err}
	}
	if row < 0 || row >= thermal.Rows {
		return 0, temps, &MalformedLineError{
			Reason: fmt.Sprintf("row index %d out of range", row),
			Err:    thermal.ErrRowIndexOutOfRange,
		}
	}

	for col, field := range fields[1:] {
		t, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return 0, temps, &MalformedLineError{
				Reason: fmt.Sprintf("column %d is not a number", col),
				Err:    err,
			}
		}
		if math.IsNaN(t) {
			return 0, temps, &MalformedLineError{Reason: fmt.Sprintf("column %d is NaN", col)}
		}
		temps[col] = thermal.Clamp(t)
	}
	return row, temps, nil
}

// ReplayStats summarises a replay run.
type ReplayStats struct {
	Lines  int
	Frames int
}

// Replay reads r line by line into buf, notifying l exactly as the live
// decoder would: RowComplete for every line and FrameComplete whenever the
// row index is 23. ctx is checked once per line. The first malformed line
// stops the run with a *MalformedLineError; rows before it stay applied.
func Replay(ctx context.Context, r io.Reader, buf *thermal.Buffer, l thermal.Listener) (ReplayStats, error) {
	var stats ReplayStats
	if l == nil {
		l = thermal.ListenerFuncs{}
	}

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++

		row, temps, err := ParseRow(scan.Text())
		if err != nil {
			var mle *MalformedLineError
			if errors.As(err, &mle) {
				mle.Line = stats.Lines
			}
			return stats, err
		}

		buf.SetRow(row, temps)
		l.RowComplete(row, temps)
		if row == thermal.Rows-1 {
			stats.Frames++
			l.FrameComplete()
		}
	}
	if err := scan.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			stats.Lines++
			return stats, &MalformedLineError{Line: stats.Lines, Reason: "line too long", Err: err}
		}
		return stats, fmt.Errorf("csvlog: read failed after line %d: %w", stats.Lines, err)
	}
	return stats, nil
}

// WriteFrame writes all rows of f in ascending order.
func WriteFrame(w io.Writer, f thermal.Frame) error {
	line := make([]byte, 0, 8*FieldsPerLine)
	for row := range f {
		line = AppendRow(line[:0], row, f[row])
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
