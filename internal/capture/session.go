// Package capture runs one live or replayed capture: it owns the frame
// buffer and decoder and fans completed rows and frames out to the capture
// log, the frame publisher and the optional archive.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/fsutil"
	"github.com/banshee-data/ircam/internal/monitoring"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/thermal/csvlog"
	"github.com/banshee-data/ircam/internal/timeutil"
)

// Source delivers raw wire bytes to consume until it fails or ctx ends.
// serialmux.SerialMuxInterface satisfies it.
type Source interface {
	Monitor(ctx context.Context, consume func([]byte)) error
}

// Options configures a Session. Zero values pick sensible defaults.
type Options struct {
	// Source names the frame origin in logs and the archive.
	Source string
	// CaptureDir receives the CSV capture log. Empty disables the log.
	CaptureDir string
	FS         fsutil.FileSystem
	Clock      timeutil.Clock
	// Zeros starts from an all-zero buffer instead of the ramp.
	Zeros bool
	// StatsInterval between decoder counter log lines; 0 disables.
	StatsInterval time.Duration
	// Store archives every published frame when set.
	Store *db.DB
}

// Session wires one decoder to its consumers.
type Session struct {
	id     string
	source string
	clock  timeutil.Clock
	logf   func(format string, v ...interface{})

	buf      *thermal.Buffer
	pub      *framepub.Publisher
	listener thermal.Listener

	mu  sync.Mutex // guards dec
	dec *thermal.Decoder

	logName  string
	logFile  io.WriteCloser
	csv      *csvlog.Writer
	store    *db.DB
	recorder *db.FrameRecorder

	statsInterval time.Duration
	closeOnce     sync.Once
	closeErr      error
}

// NewSession creates the buffer, decoder and listeners. When a capture
// directory is set the log file is created immediately, named after the
// session start time.
func NewSession(o Options) (*Session, error) {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}

	s := &Session{
		id:            uuid.NewString(),
		source:        o.Source,
		clock:         o.Clock,
		statsInterval: o.StatsInterval,
		store:         o.Store,
	}
	if o.Zeros {
		s.buf = thermal.NewBuffer()
	} else {
		s.buf = thermal.NewRampBuffer()
	}
	s.pub = framepub.New(s.buf, o.Clock)

	start := o.Clock.Now()
	var listeners []thermal.Listener
	if o.CaptureDir != "" {
		if err := o.FS.MkdirAll(o.CaptureDir, 0o755); err != nil {
			return nil, fmt.Errorf("capture dir: %w", err)
		}
		s.logName = filepath.Join(o.CaptureDir, csvlog.FileName(start))
		f, err := o.FS.Create(s.logName)
		if err != nil {
			return nil, fmt.Errorf("capture log: %w", err)
		}
		s.logFile = f
		s.csv = csvlog.NewWriter(f)
		listeners = append(listeners, s.csv)
	}
	listeners = append(listeners, s.pub)

	if o.Store != nil {
		id, err := o.Store.StartSession(o.Source, start)
		if err != nil {
			if s.logFile != nil {
				s.logFile.Close()
			}
			return nil, err
		}
		s.id = id
		s.recorder = db.NewFrameRecorder(o.Store, id)
		s.pub.AddSink(s.recorder)
	}

	s.listener = thermal.MultiListener(listeners)
	s.dec = thermal.NewDecoder(s.buf, listeners...)
	s.logf = monitoring.Prefixed("session " + s.id[:8])
	return s, nil
}

// ID returns the session ID; it matches the archive's session_id when a
// store is configured.
func (s *Session) ID() string { return s.id }

// LogName returns the capture log path, or "" when logging is disabled.
func (s *Session) LogName() string { return s.logName }

// Publisher returns the publisher fed by this session.
func (s *Session) Publisher() *framepub.Publisher { return s.pub }

// DecoderStats returns the decoder counters. Safe to call while Run is active.
func (s *Session) DecoderStats() thermal.DecoderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.Stats()
}

// Write feeds wire bytes to the decoder. It never fails.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.Write(p)
}

func (s *Session) consume(p []byte) { s.Write(p) }

// Run decodes everything src delivers until it ends, then closes the
// session. Cancelling ctx is a clean stop. A transport failure is logged
// and returned.
func (s *Session) Run(ctx context.Context, src Source) error {
	s.logf("started: source=%s log=%q", s.source, s.logName)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reportStats(ctx)
		}()
	}

	err := src.Monitor(ctx, s.consume)
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		s.logf("transport failure: %v", err)
	}
	s.logStats("final")
	return errors.Join(err, s.Close())
}

// Replay feeds a capture log through the session's listeners, as if the
// rows had just been decoded.
func (s *Session) Replay(ctx context.Context, r io.Reader) (csvlog.ReplayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return csvlog.Replay(ctx, r, s.buf, s.listener)
}

func (s *Session) reportStats(ctx context.Context) {
	ticker := s.clock.NewTicker(s.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.logStats("stats")
		}
	}
}

func (s *Session) logStats(label string) {
	st := s.DecoderStats()
	ps := s.pub.Stats()
	s.logf("%s: bytes=%d rows=%d frames=%d published=%d dropped=%d (symbol=%d range=%d delimiter=%d)",
		label, st.Bytes, st.Rows, st.Frames, ps.Published, st.Dropped(),
		st.InvalidSymbols, st.RowsOutOfRange, st.DelimiterMismatches)
	if s.recorder != nil {
		recorded, failed := s.recorder.Counts()
		if failed > 0 {
			s.logf("%s: archive recorded=%d failed=%d", label, recorded, failed)
		}
	}
}

// Close flushes and closes the capture log and ends the archive session.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.csv != nil {
			errs = append(errs, s.csv.Flush())
			errs = append(errs, s.logFile.Close())
		}
		if s.store != nil {
			errs = append(errs, s.store.EndSession(s.id, s.clock.Now()))
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logf("close: %v", s.closeErr)
		}
	})
	return s.closeErr
}
