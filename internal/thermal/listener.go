package thermal

// Listener receives completion events in the order rows are validated.
// Both methods run synchronously on the producer's goroutine, so a listener
// that wants a consistent frame must snapshot the buffer inside
// FrameComplete.
type Listener interface {
	// RowComplete is called after temps has been written to the buffer.
	RowComplete(row int, temps Row)
	// FrameComplete is called right after RowComplete for row 23.
	FrameComplete()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	OnRow   func(row int, temps Row)
	OnFrame func()
}

func (l ListenerFuncs) RowComplete(row int, temps Row) {
	if l.OnRow != nil {
		l.OnRow(row, temps)
	}
}

func (l ListenerFuncs) FrameComplete() {
	if l.OnFrame != nil {
		l.OnFrame()
	}
}

// MultiListener fans events out to each listener in order.
type MultiListener []Listener

func (m MultiListener) RowComplete(row int, temps Row) {
	for _, l := range m {
		l.RowComplete(row, temps)
	}
}

func (m MultiListener) FrameComplete() {
	for _, l := range m {
		l.FrameComplete()
	}
}

type nopListener struct{}

func (nopListener) RowComplete(int, Row) {}
func (nopListener) FrameComplete()       {}

func combine(listeners []Listener) Listener {
	var out MultiListener
	for _, l := range listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return nopListener{}
	case 1:
		return out[0]
	}
	return out
}
