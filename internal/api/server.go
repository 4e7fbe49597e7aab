package api

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/fsutil"
	"github.com/banshee-data/ircam/internal/httputil"
	"github.com/banshee-data/ircam/internal/serialmux"
	"github.com/banshee-data/ircam/internal/thermal"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatsSource reports decoder counters. capture.Session implements it.
type StatsSource interface {
	DecoderStats() thermal.DecoderStats
}

type Server struct {
	m          serialmux.SerialMuxInterface
	pub        *framepub.Publisher
	stats      StatsSource
	db         *db.DB
	captureDir string
	fs         fsutil.FileSystem

	// AssetsHost is passed to the echarts page; empty uses the CDN.
	AssetsHost string
}

// NewServer builds the API over a live capture. store may be nil when the
// archive is disabled and captureDir may be empty when CSV logging is off.
func NewServer(m serialmux.SerialMuxInterface, pub *framepub.Publisher, stats StatsSource, store *db.DB, captureDir string) *Server {
	return &Server{
		m:          m,
		pub:        pub,
		stats:      stats,
		db:         store,
		captureDir: captureDir,
		fs:         fsutil.OSFileSystem{},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/frame.html", http.StatusFound)
	})
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/frame", s.showFrame)
	mux.HandleFunc("/api/frame/histogram", s.showHistogram)
	mux.HandleFunc("/api/decoder", s.showDecoderStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}/frames", s.listSessionFrames)
	mux.HandleFunc("/api/sessions/{id}/csv", s.exportSession)
	mux.HandleFunc("/api/captures", s.listCaptures)
	mux.HandleFunc("/api/captures/{name}", s.downloadCapture)
	mux.HandleFunc("/frame.html", s.framePage)
	mux.HandleFunc("/frame.png", s.framePNG)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) showDecoderStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.stats.DecoderStats()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"decoder":      st,
		"dropped_rows": st.Dropped(),
		"publisher":    s.pub.Stats(),
	})
}
