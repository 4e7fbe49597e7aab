package db

import (
	"sync/atomic"

	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/monitoring"
)

// FrameRecorder archives every frame published for one session. It is a
// framepub.Sink; write failures are logged and counted, never fatal, so a
// full disk does not stop the live capture.
type FrameRecorder struct {
	db        *DB
	sessionID string
	recorded  atomic.Uint64
	failed    atomic.Uint64
}

// NewFrameRecorder returns a recorder writing into sessionID.
func NewFrameRecorder(db *DB, sessionID string) *FrameRecorder {
	return &FrameRecorder{db: db, sessionID: sessionID}
}

// HandleFrame implements framepub.Sink.
func (r *FrameRecorder) HandleFrame(p framepub.Published) {
	if err := r.db.RecordFrame(r.sessionID, p.Seq, p.CapturedAt, p.Frame, p.Summary); err != nil {
		if r.failed.Add(1) == 1 {
			monitoring.Logf("archive: %v (further failures counted silently)", err)
		}
		return
	}
	r.recorded.Add(1)
}

// SessionID returns the session frames are recorded into.
func (r *FrameRecorder) SessionID() string { return r.sessionID }

// Counts returns the number of frames recorded and failed.
func (r *FrameRecorder) Counts() (recorded, failed uint64) {
	return r.recorded.Load(), r.failed.Load()
}

var _ framepub.Sink = (*FrameRecorder)(nil)
