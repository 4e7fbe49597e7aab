package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/thermal/csvlog"
)

var ErrSessionNotFound = errors.New("capture session not found")

// Session is one archived capture run.
type Session struct {
	ID        string     `json:"session_id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    int        `json:"frames"`
}

// ArchivedFrame is a stored frame with its summary.
type ArchivedFrame struct {
	Seq        uint64             `json:"seq"`
	CapturedAt time.Time          `json:"captured_at"`
	Summary    framestats.Summary `json:"summary"`
	Frame      thermal.Frame      `json:"frame"`
}

// StartSession records a new open session and returns its ID. source
// describes where frames come from: a device path or a replayed file.
func (db *DB) StartSession(source string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO capture_sessions (session_id, source, started_at) VALUES (?, ?, ?)`,
		id, source, startedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// EndSession closes an open session.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE capture_sessions SET ended_at = ? WHERE session_id = ?`,
		endedAt.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// RecordFrame stores f as the seq'th frame of the session. The frame is
// kept as its capture log lines so it can be replayed unchanged.
func (db *DB) RecordFrame(sessionID string, seq uint64, capturedAt time.Time, f thermal.Frame, s framestats.Summary) error {
	var csv bytes.Buffer
	if err := csvlog.WriteFrame(&csv, f); err != nil {
		return err
	}
	_, err := db.Exec(
		`INSERT INTO frames (session_id, frame_seq, captured_at, t_min, t_max, t_mean, csv_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(seq), capturedAt.UnixNano(), s.Min, s.Max, s.Mean, csv.String(),
	)
	if err != nil {
		return fmt.Errorf("record frame %d: %w", seq, err)
	}
	return nil
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// Sessions lists sessions newest first with their frame counts.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.source, s.started_at, s.ended_at,
		       (SELECT COUNT(*) FROM frames f WHERE f.session_id = s.session_id)
		FROM capture_sessions s
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Source, &started, &ended, &s.Frames); err != nil {
			return nil, err
		}
		s.StartedAt = fromNanos(started)
		if ended.Valid {
			t := fromNanos(ended.Int64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Session returns one session by ID.
func (db *DB) Session(id string) (Session, error) {
	sessions, err := db.Sessions()
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
}

// Frames returns up to limit frames of a session in sequence order, decoded
// back from their stored capture log lines. limit <= 0 returns all.
func (db *DB) Frames(sessionID string, limit int) ([]ArchivedFrame, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT frame_seq, captured_at, t_min, t_max, t_mean, csv_data
		FROM frames WHERE session_id = ?
		ORDER BY frame_seq LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []ArchivedFrame
	for rows.Next() {
		var (
			af       ArchivedFrame
			seq      int64
			captured int64
			csv      string
		)
		if err := rows.Scan(&seq, &captured, &af.Summary.Min, &af.Summary.Max, &af.Summary.Mean, &csv); err != nil {
			return nil, err
		}
		af.Seq = uint64(seq)
		af.CapturedAt = fromNanos(captured)

		buf := thermal.NewBuffer()
		if _, err := csvlog.Replay(context.Background(), strings.NewReader(csv), buf, nil); err != nil {
			return nil, fmt.Errorf("frame %d: %w", seq, err)
		}
		af.Frame = buf.Snapshot()
		af.Summary.StdDev = framestats.Summarize(af.Frame).StdDev
		frames = append(frames, af)
	}
	return frames, rows.Err()
}

// ExportSession writes every frame of the session to w as a capture log,
// replayable with csvlog.Replay.
func (db *DB) ExportSession(w io.Writer, sessionID string) (int, error) {
	var exists bool
	if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM capture_sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	rows, err := db.Query(`SELECT csv_data FROM frames WHERE session_id = ? ORDER BY frame_seq`, sessionID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var csv string
		if err := rows.Scan(&csv); err != nil {
			return n, err
		}
		if _, err := io.WriteString(w, csv); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}
