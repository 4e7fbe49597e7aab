package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/fsutil"
	"github.com/banshee-data/ircam/internal/httputil"
	"github.com/banshee-data/ircam/internal/security"
)

// CaptureFile describes one CSV capture log on disk.
type CaptureFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "frame archive disabled")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listSessionFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "frame archive disabled")
		return
	}
	id := r.PathValue("id")
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	if _, err := s.db.Session(id); err != nil {
		writeSessionError(w, err)
		return
	}
	frames, err := s.db.Frames(id, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if frames == nil {
		frames = []db.ArchivedFrame{}
	}
	httputil.WriteJSONOK(w, frames)
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "frame archive disabled")
		return
	}
	id := r.PathValue("id")
	var buf bytes.Buffer
	if _, err := s.db.ExportSession(&buf, id); err != nil {
		writeSessionError(w, err)
		return
	}
	httputil.Attachment(w, security.SanitizeFilename(id)+".csv", "text/csv")
	w.Write(buf.Bytes())
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.captureDir == "" {
		httputil.ServiceUnavailable(w, "capture logging disabled")
		return
	}
	infos, err := s.fs.List(s.captureDir)
	if err != nil {
		httputil.InternalServerError(w, "failed to list captures: "+err.Error())
		return
	}
	files := []CaptureFile{}
	for _, fi := range infos {
		if fi.IsDir() || !fsutil.HasExt(fi.Name(), ".csv") {
			continue
		}
		files = append(files, CaptureFile{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	httputil.WriteJSONOK(w, files)
}

func (s *Server) downloadCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.captureDir == "" {
		httputil.ServiceUnavailable(w, "capture logging disabled")
		return
	}
	name := r.PathValue("name")
	if name != filepath.Base(name) || !fsutil.HasExt(name, ".csv") {
		httputil.BadRequest(w, "invalid capture name")
		return
	}
	path := filepath.Join(s.captureDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.captureDir); err != nil {
		httputil.BadRequest(w, "invalid capture name")
		return
	}

	f, err := s.fs.Open(path)
	if err != nil {
		httputil.NotFound(w, "capture not found")
		return
	}
	defer f.Close()

	httputil.Attachment(w, name, "text/csv")
	io.Copy(w, f)
}
