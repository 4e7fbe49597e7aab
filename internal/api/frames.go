package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/httputil"
	"github.com/banshee-data/ircam/internal/render"
	"github.com/banshee-data/ircam/internal/units"
)

const maxWait = 30 * time.Second

var errNoFrame = errors.New("no frame received yet")

// currentFrame returns the latest frame. With ?after=N it long-polls until a
// frame newer than N arrives or ?wait (seconds, default 10) runs out.
func (s *Server) currentFrame(r *http.Request) (framepub.Published, int, error) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		p, ok := s.pub.Latest()
		if !ok {
			return p, http.StatusServiceUnavailable, errNoFrame
		}
		return p, http.StatusOK, nil
	}

	seq, err := strconv.ParseUint(after, 10, 64)
	if err != nil {
		return framepub.Published{}, http.StatusBadRequest, errors.New("invalid 'after' parameter")
	}
	wait := 10 * time.Second
	if ws := q.Get("wait"); ws != "" {
		n, err := strconv.Atoi(ws)
		if err != nil || n < 0 {
			return framepub.Published{}, http.StatusBadRequest, errors.New("invalid 'wait' parameter")
		}
		wait = min(time.Duration(n)*time.Second, maxWait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	p, err := s.pub.Wait(ctx, seq)
	if err != nil {
		return p, http.StatusNotModified, err
	}
	return p, http.StatusOK, nil
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.Celsius
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, "'units' must be one of: "+units.GetValidUnitsString())
		return
	}
	p, status, err := s.currentFrame(r)
	if err != nil {
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	p.Frame = units.ConvertFrame(p.Frame, unit)
	p.Summary = units.ConvertSummary(p.Summary, unit)
	httputil.WriteJSONOK(w, map[string]interface{}{
		"seq":         p.Seq,
		"captured_at": p.CapturedAt,
		"units":       unit,
		"frame":       p.Frame,
		"summary":     p.Summary,
	})
}

func parseBins(r *http.Request) (int, error) {
	bs := r.URL.Query().Get("bins")
	if bs == "" {
		return framestats.DefaultBins, nil
	}
	bins, err := strconv.Atoi(bs)
	if err != nil || bins < 1 || bins > framestats.MaxBins {
		return 0, framestats.ErrInvalidBins
	}
	return bins, nil
}

func (s *Server) showHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	bins, err := parseBins(r)
	if err != nil {
		httputil.BadRequest(w, "'bins' must be between 1 and "+strconv.Itoa(framestats.MaxBins))
		return
	}
	p, ok := s.pub.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, errNoFrame.Error())
		return
	}
	h, err := framestats.ComputeHistogram(p.Frame, bins)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"seq":       p.Seq,
		"histogram": h,
	})
}

func (s *Server) framePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	bins, err := parseBins(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	refresh := 0
	if rs := r.URL.Query().Get("refresh"); rs != "" {
		if refresh, err = strconv.Atoi(rs); err != nil || refresh < 0 {
			httputil.BadRequest(w, "invalid 'refresh' parameter")
			return
		}
	}
	p, ok := s.pub.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, errNoFrame.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	opts := render.PageOptions{AssetsHost: s.AssetsHost, Bins: bins, RefreshSeconds: refresh}
	if err := render.HeatmapPage(w, p.Frame, fmt.Sprintf("Frame %d", p.Seq), opts); err != nil {
		log.Printf("frame page: %v", err)
	}
}

func (s *Server) framePNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	bins, err := parseBins(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p, ok := s.pub.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, errNoFrame.Error())
		return
	}

	var buf bytes.Buffer
	opts := render.PNGOptions{Title: render.FrameTitle(p.Summary), Bins: bins}
	if err := render.WritePNG(&buf, p.Frame, opts); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
