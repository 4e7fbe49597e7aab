package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/fsutil"
	"github.com/banshee-data/ircam/internal/serialmux"
	"github.com/banshee-data/ircam/internal/testutil"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/timeutil"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type sourceFunc func(ctx context.Context, consume func([]byte)) error

func (f sourceFunc) Monitor(ctx context.Context, consume func([]byte)) error { return f(ctx, consume) }

// feed delivers stream in small chunks, then returns err.
func feed(stream []byte, err error) Source {
	return sourceFunc(func(ctx context.Context, consume func([]byte)) error {
		for len(stream) > 0 {
			n := min(7, len(stream))
			consume(stream[:n])
			stream = stream[n:]
		}
		return err
	})
}

func newMemSession(t *testing.T) (*Session, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	s, err := NewSession(Options{
		Source:     "test",
		CaptureDir: "captures",
		FS:         mfs,
		Clock:      timeutil.NewMockClock(start),
	})
	require.NoError(t, err)
	return s, mfs
}

func TestSession_RunLogsAndPublishes(t *testing.T) {
	s, mfs := newMemSession(t)
	assert.Equal(t, filepath.Join("captures", "IRCam-20240301-120000.csv"), s.LogName())

	f1, f2 := testutil.GradientFrame(10), testutil.GradientFrame(20)
	require.NoError(t, s.Run(context.Background(), feed(testutil.NoisyStream(t, f1, f2), nil)))

	got, ok := s.Publisher().Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)
	if diff := cmp.Diff(f2, got.Frame); diff != "" {
		t.Errorf("latest frame mismatch (-want +got):\n%s", diff)
	}

	st := s.DecoderStats()
	assert.Equal(t, uint64(48), st.Rows)
	assert.Equal(t, uint64(2), st.Frames)
	assert.Zero(t, st.Dropped())

	data, err := mfs.ReadFile(s.LogName())
	require.NoError(t, err)
	want := append(testutil.CSVFrame(t, f1), testutil.CSVFrame(t, f2)...)
	assert.Equal(t, string(want), string(data))
}

func TestSession_CorruptRowIsCounted(t *testing.T) {
	s, _ := newMemSession(t)
	stream := testutil.WireFrame(t, testutil.GradientFrame(0))
	stream[5] = '#'

	require.NoError(t, s.Run(context.Background(), feed(stream, nil)))

	st := s.DecoderStats()
	assert.Equal(t, uint64(1), st.InvalidSymbols)
	assert.Equal(t, uint64(23), st.Rows)
	assert.Equal(t, uint64(1), st.Frames)
}

func TestSession_CancelIsCleanStop(t *testing.T) {
	s, _ := newMemSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := sourceFunc(func(ctx context.Context, _ func([]byte)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, s.Run(ctx, src))
}

func TestSession_TransportFailure(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.AddReadData(testutil.WireFrame(t, testutil.GradientFrame(30)))
	port.ReadError = errors.New("device unplugged")
	mux := serialmux.NewSerialMux(port)

	s, _ := newMemSession(t)
	err := s.Run(context.Background(), mux)
	require.Error(t, err)
	assert.ErrorIs(t, err, thermal.ErrTransportFailure)

	// Rows read before the failure were decoded.
	_, ok := s.Publisher().Latest()
	assert.True(t, ok)
}

func TestSession_SerialEOF(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.AddReadData(testutil.NoisyStream(t, testutil.GradientFrame(5)))
	mux := serialmux.NewSerialMux(port)

	s, _ := newMemSession(t)
	require.NoError(t, s.Run(context.Background(), mux))
	assert.Equal(t, uint64(1), s.Publisher().Stats().Published)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, _ := newMemSession(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSession_NoCaptureDir(t *testing.T) {
	s, err := NewSession(Options{Clock: timeutil.NewMockClock(start), Zeros: true})
	require.NoError(t, err)
	assert.Empty(t, s.LogName())

	require.NoError(t, s.Run(context.Background(), feed(testutil.WireFrame(t, testutil.GradientFrame(1)), nil)))
	assert.Equal(t, uint64(1), s.Publisher().Stats().Published)
}

func TestSession_Replay(t *testing.T) {
	s, err := NewSession(Options{Clock: timeutil.NewMockClock(start), Zeros: true})
	require.NoError(t, err)

	f := testutil.GradientFrame(0)
	log := append(testutil.CSVFrame(t, f), testutil.CSVFrame(t, f)...)
	stats, err := s.Replay(context.Background(), bytes.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, 48, stats.Lines)
	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, uint64(2), s.Publisher().Stats().Published)
}

func TestSession_Archive(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "ircam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timeutil.NewMockClock(start)
	s, err := NewSession(Options{Source: "/dev/ttyACM0", Clock: clock, Store: store})
	require.NoError(t, err)

	stream := testutil.NoisyStream(t, testutil.GradientFrame(0), testutil.GradientFrame(1), testutil.GradientFrame(2))
	clock.Advance(time.Minute)
	require.NoError(t, s.Run(context.Background(), feed(stream, nil)))

	sess, err := store.Session(s.ID())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", sess.Source)
	assert.Equal(t, 3, sess.Frames)
	require.NotNil(t, sess.EndedAt)
	assert.True(t, sess.EndedAt.Equal(start.Add(time.Minute)))

	var out bytes.Buffer
	n, err := store.ExportSession(&out, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3*thermal.Rows, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestSession_Stats(t *testing.T) {
	clock := timeutil.NewMockClock(start)
	s, err := NewSession(Options{Clock: clock, StatsInterval: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	r, w := io.Pipe()
	src := sourceFunc(func(ctx context.Context, consume func([]byte)) error {
		go func() { <-ctx.Done(); r.Close() }()
		buf := make([]byte, 64)
		for {
			n, err := r.Read(buf)
			consume(buf[:n])
			if err != nil {
				return ctx.Err()
			}
		}
	})
	go func() { done <- s.Run(ctx, src) }()

	_, err = w.Write(testutil.WireFrame(t, testutil.GradientFrame(3)))
	require.NoError(t, err)
	pub, err := s.Publisher().Wait(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pub.Seq)
	assert.Equal(t, uint64(1), s.DecoderStats().Frames)

	clock.Advance(2 * time.Second)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
