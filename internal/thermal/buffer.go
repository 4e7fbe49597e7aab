package thermal

// Row is one line of the sensor in column order.
type Row [Cols]float64

// Frame is a full grid, indexed [row][col].
type Frame [Rows]Row

// Buffer is the single live grid that a producer overwrites row by row.
// It has no locking and no double buffering: a Snapshot taken well after
// FrameComplete may already contain rows of the following frame.
type Buffer struct {
	cells Frame
}

// NewBuffer returns a zeroed buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewRampBuffer returns a buffer seeded with a linear ramp from
// MinTemperature to MaxTemperature in row-major order, so a viewer shows
// the full colour range before the first frame arrives.
func NewRampBuffer() *Buffer {
	b := &Buffer{}
	n := Rows * Cols
	for i := 0; i < n; i++ {
		b.cells[i/Cols][i%Cols] = MinTemperature + (MaxTemperature-MinTemperature)*float64(i)/float64(n-1)
	}
	return b
}

// Set overwrites one cell. Out of range coordinates panic.
func (b *Buffer) Set(row, col int, t float64) {
	b.cells[row][col] = t
}

// SetRow overwrites a whole row.
func (b *Buffer) SetRow(row int, temps Row) {
	b.cells[row] = temps
}

// At returns one cell.
func (b *Buffer) At(row, col int) float64 {
	return b.cells[row][col]
}

// Snapshot returns a copy of the grid that is safe to hand to consumers.
func (b *Buffer) Snapshot() Frame {
	return b.cells
}

// Values flattens f in row-major order.
func (f *Frame) Values() []float64 {
	out := make([]float64, 0, Rows*Cols)
	for _, row := range f {
		out = append(out, row[:]...)
	}
	return out
}
