// Package framepub publishes completed frames from the decoder to readers
// that only care about the newest one: HTTP handlers, the renderer and the
// frame archive.
//
// The publisher holds a single slot. A frame that nobody read before the
// next one arrived is counted as overwritten, never queued.
package framepub

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/timeutil"
)

// Published is an immutable copy of a completed frame.
type Published struct {
	Seq        uint64             `json:"seq"`
	CapturedAt time.Time          `json:"captured_at"`
	Frame      thermal.Frame      `json:"frame"`
	Summary    framestats.Summary `json:"summary"`
}

// Sink receives every published frame on the decoder goroutine. It must not
// block for long.
type Sink interface {
	HandleFrame(p Published)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Published)

func (f SinkFunc) HandleFrame(p Published) { f(p) }

// Stats counts publisher activity.
type Stats struct {
	Published   uint64 `json:"published"`
	Overwritten uint64 `json:"overwritten"`
}

// Publisher implements thermal.Listener. On every FrameComplete it
// snapshots the buffer into the latest slot and wakes waiters.
type Publisher struct {
	buf   *thermal.Buffer
	clock timeutil.Clock

	mu       sync.Mutex
	latest   Published
	have     bool
	consumed bool
	notify   chan struct{}
	sinks    []Sink
	stats    Stats
}

// New returns a publisher reading from buf. A nil clock uses real time.
func New(buf *thermal.Buffer, clock timeutil.Clock) *Publisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Publisher{
		buf:    buf,
		clock:  clock,
		notify: make(chan struct{}),
	}
}

// AddSink registers s for all frames published after the call.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// RowComplete is a no-op; the publisher works on whole frames.
func (p *Publisher) RowComplete(int, thermal.Row) {}

// FrameComplete publishes the current buffer contents.
func (p *Publisher) FrameComplete() {
	frame := p.buf.Snapshot()
	pub := Published{
		CapturedAt: p.clock.Now(),
		Frame:      frame,
		Summary:    framestats.Summarize(frame),
	}

	p.mu.Lock()
	p.stats.Published++
	pub.Seq = p.stats.Published
	if p.have && !p.consumed {
		p.stats.Overwritten++
	}
	p.latest = pub
	p.have = true
	p.consumed = false
	close(p.notify)
	p.notify = make(chan struct{})
	sinks := slices.Clone(p.sinks)
	p.mu.Unlock()

	for _, s := range sinks {
		s.HandleFrame(pub)
	}
}

// Latest returns the newest frame, if any has been published.
func (p *Publisher) Latest() (Published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.have {
		return Published{}, false
	}
	p.consumed = true
	return p.latest, true
}

// Wait blocks until a frame with Seq greater than afterSeq is available and
// returns it. Pass 0 to get the current frame as soon as there is one.
func (p *Publisher) Wait(ctx context.Context, afterSeq uint64) (Published, error) {
	for {
		p.mu.Lock()
		if p.have && p.latest.Seq > afterSeq {
			p.consumed = true
			pub := p.latest
			p.mu.Unlock()
			return pub, nil
		}
		ch := p.notify
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return Published{}, ctx.Err()
		case <-ch:
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

var _ thermal.Listener = (*Publisher)(nil)
