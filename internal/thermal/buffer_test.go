package thermal

import "testing"

func TestNewRampBuffer(t *testing.T) {
	b := NewRampBuffer()
	if got := b.At(0, 0); got != MinTemperature {
		t.Errorf("first cell = %v, want %v", got, MinTemperature)
	}
	if got := b.At(Rows-1, Cols-1); got != MaxTemperature {
		t.Errorf("last cell = %v, want %v", got, MaxTemperature)
	}
	if b.At(0, 1) <= b.At(0, 0) || b.At(1, 0) <= b.At(0, Cols-1) {
		t.Error("ramp should increase in row-major order")
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewBuffer()
	b.Set(2, 3, 21.5)

	snap := b.Snapshot()
	if snap[2][3] != 21.5 {
		t.Fatalf("snapshot cell = %v, want 21.5", snap[2][3])
	}

	b.Set(2, 3, 99)
	snap[4][4] = -1
	if snap[2][3] != 21.5 {
		t.Error("snapshot changed after buffer write")
	}
	if b.At(4, 4) != 0 {
		t.Error("buffer changed after snapshot write")
	}
}

func TestBuffer_SetRow(t *testing.T) {
	b := NewRampBuffer()
	var row Row
	for i := range row {
		row[i] = float64(i)
	}
	b.SetRow(10, row)
	for c := 0; c < Cols; c++ {
		if b.At(10, c) != float64(c) {
			t.Fatalf("cell (10,%d) = %v", c, b.At(10, c))
		}
	}
	if b.At(11, 0) == 0 {
		t.Error("SetRow touched the next row")
	}
}

func TestFrame_Values(t *testing.T) {
	f := NewRampBuffer().Snapshot()
	v := f.Values()
	if len(v) != Rows*Cols {
		t.Fatalf("len = %d", len(v))
	}
	if v[Cols] != f[1][0] {
		t.Error("Values is not row-major")
	}
}
