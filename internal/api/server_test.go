package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/serialmux"
	"github.com/banshee-data/ircam/internal/testutil"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/timeutil"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedStats thermal.DecoderStats

func (s fixedStats) DecoderStats() thermal.DecoderStats { return thermal.DecoderStats(s) }

type testEnv struct {
	server *Server
	mux    *http.ServeMux
	port   *serialmux.TestableSerialPort
	buf    *thermal.Buffer
	pub    *framepub.Publisher
	store  *db.DB
	dir    string
}

func setupTestServer(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	env := &testEnv{
		port: serialmux.NewTestableSerialPort(),
		buf:  thermal.NewBuffer(),
		dir:  t.TempDir(),
	}
	env.pub = framepub.New(env.buf, timeutil.NewMockClock(epoch))
	if withStore {
		store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		env.store = store
	}
	stats := fixedStats{Bytes: 1600, Rows: 48, Frames: 2, InvalidSymbols: 1}
	env.server = NewServer(serialmux.NewSerialMux(env.port), env.pub, stats, env.store, env.dir)
	env.mux = env.server.ServeMux()
	return env
}

func (e *testEnv) publish(f thermal.Frame) {
	for r := range f {
		e.buf.SetRow(r, f[r])
	}
	e.pub.FrameComplete()
}

func (e *testEnv) do(method, target string, body *strings.Reader) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func TestShowFrame(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodGet, "/api/frame", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)

	f := testutil.GradientFrame(20)
	env.publish(f)

	w = env.do(http.MethodGet, "/api/frame", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got framepub.Published
	decodeJSON(t, w, &got)
	assert.Equal(t, uint64(1), got.Seq)
	assert.Equal(t, f, got.Frame)
	assert.Equal(t, 20.0, got.Summary.Min)
	assert.True(t, got.CapturedAt.Equal(epoch))

	w = env.do(http.MethodPost, "/api/frame", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)

	w = env.do(http.MethodGet, "/api/frame?units=f", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var inF struct {
		Units   string             `json:"units"`
		Summary framestats.Summary `json:"summary"`
		Frame   thermal.Frame      `json:"frame"`
	}
	decodeJSON(t, w, &inF)
	assert.Equal(t, "f", inF.Units)
	assert.Equal(t, 68.0, inF.Summary.Min)
	assert.Equal(t, 68.0, inF.Frame[0][0])

	w = env.do(http.MethodGet, "/api/frame?units=rankine", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestShowFrame_LongPoll(t *testing.T) {
	env := setupTestServer(t, false)
	env.publish(testutil.GradientFrame(0))

	// Already newer than 0.
	w := env.do(http.MethodGet, "/api/frame?after=0", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = env.do(http.MethodGet, "/api/frame?after=1&wait=0", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusNotModified)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- env.do(http.MethodGet, "/api/frame?after=1&wait=5", nil) }()
	time.Sleep(20 * time.Millisecond)
	env.publish(testutil.GradientFrame(1))

	select {
	case w = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not return")
	}
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got framepub.Published
	decodeJSON(t, w, &got)
	assert.Equal(t, uint64(2), got.Seq)

	for _, q := range []string{"after=x", "after=1&wait=-1", "after=1&wait=x"} {
		w = env.do(http.MethodGet, "/api/frame?"+q, nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	}
}

func TestShowHistogram(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodGet, "/api/frame/histogram", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)

	env.publish(testutil.GradientFrame(0))

	tests := []struct {
		query    string
		wantCode int
		wantBins int
	}{
		{"", http.StatusOK, 16},
		{"?bins=32", http.StatusOK, 32},
		{"?bins=0", http.StatusBadRequest, 0},
		{"?bins=257", http.StatusBadRequest, 0},
		{"?bins=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/frame/histogram"+tt.query, nil)
			testutil.AssertStatusCode(t, w.Code, tt.wantCode)
			if tt.wantCode != http.StatusOK {
				return
			}
			var got struct {
				Seq       uint64 `json:"seq"`
				Histogram struct {
					Edges  []float64 `json:"edges"`
					Counts []int     `json:"counts"`
				} `json:"histogram"`
			}
			decodeJSON(t, w, &got)
			assert.Len(t, got.Histogram.Counts, tt.wantBins)
			assert.Len(t, got.Histogram.Edges, tt.wantBins+1)
			total := 0
			for _, c := range got.Histogram.Counts {
				total += c
			}
			assert.Equal(t, thermal.Rows*thermal.Cols, total)
		})
	}
}

func TestShowDecoderStats(t *testing.T) {
	env := setupTestServer(t, false)
	env.publish(testutil.GradientFrame(0))

	w := env.do(http.MethodGet, "/api/decoder", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got struct {
		Decoder     thermal.DecoderStats `json:"decoder"`
		DroppedRows uint64               `json:"dropped_rows"`
		Publisher   framepub.Stats       `json:"publisher"`
	}
	decodeJSON(t, w, &got)
	assert.Equal(t, uint64(48), got.Decoder.Rows)
	assert.Equal(t, uint64(1), got.DroppedRows)
	assert.Equal(t, uint64(1), got.Publisher.Published)
}

func TestSendCommand(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodPost, "/command", strings.NewReader(url.Values{"command": {"rate 4"}}.Encode()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "rate 4;", string(env.port.GetWrittenData()))

	w = env.do(http.MethodPost, "/command", strings.NewReader(""))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = env.do(http.MethodGet, "/command", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)

	env.port.WriteError = assert.AnError
	w = env.do(http.MethodPost, "/command", strings.NewReader("command=auto+on"))
	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
}

func TestFramePage(t *testing.T) {
	env := setupTestServer(t, false)

	w := env.do(http.MethodGet, "/frame.html", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)

	env.publish(testutil.GradientFrame(10))
	w = env.do(http.MethodGet, "/frame.html?refresh=2", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, `content="2"`)
	assert.Contains(t, body, "Frame 1")

	w = env.do(http.MethodGet, "/frame.html?refresh=-1", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = env.do(http.MethodGet, "/", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusFound)
	assert.Equal(t, "/frame.html", w.Header().Get("Location"))
}

func TestFramePNG(t *testing.T) {
	env := setupTestServer(t, false)
	env.publish(testutil.GradientFrame(10))

	w := env.do(http.MethodGet, "/frame.png?bins=8", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
}

func TestSessions_ArchiveDisabled(t *testing.T) {
	env := setupTestServer(t, false)
	for _, path := range []string{"/api/sessions", "/api/sessions/x/csv", "/api/sessions/x/frames"} {
		w := env.do(http.MethodGet, path, nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
	}
}

func TestSessions(t *testing.T) {
	env := setupTestServer(t, true)

	w := env.do(http.MethodGet, "/api/sessions", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, "[]", w.Body.String())

	id, err := env.store.StartSession("/dev/ttyACM0", epoch)
	require.NoError(t, err)
	env.pub.AddSink(db.NewFrameRecorder(env.store, id))
	env.publish(testutil.GradientFrame(0))
	env.publish(testutil.GradientFrame(1))

	w = env.do(http.MethodGet, "/api/sessions", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var sessions []db.Session
	decodeJSON(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Frames)

	w = env.do(http.MethodGet, "/api/sessions/"+id+"/frames?limit=1", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var frames []db.ArchivedFrame
	decodeJSON(t, w, &frames)
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(1), frames[0].Seq)

	w = env.do(http.MethodGet, "/api/sessions/"+id+"/csv", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), id+".csv")
	assert.Equal(t, 2*thermal.Rows, strings.Count(w.Body.String(), "\n"))

	w = env.do(http.MethodGet, "/api/sessions/missing/csv", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	w = env.do(http.MethodGet, "/api/sessions/missing/frames", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	w = env.do(http.MethodGet, "/api/sessions/"+id+"/frames?limit=x", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestCaptures(t *testing.T) {
	env := setupTestServer(t, false)
	data := testutil.CSVFrame(t, testutil.GradientFrame(0))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "IRCam-20240301-120000.csv"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "IRCam-20240302-120000.csv"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "notes.txt"), []byte("x"), 0o644))

	w := env.do(http.MethodGet, "/api/captures", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var files []CaptureFile
	decodeJSON(t, w, &files)
	require.Len(t, files, 2)
	assert.Equal(t, "IRCam-20240302-120000.csv", files[0].Name)
	assert.Equal(t, int64(len(data)), files[0].Size)

	w = env.do(http.MethodGet, "/api/captures/IRCam-20240301-120000.csv", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, string(data), w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "IRCam-20240301-120000.csv")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing", "/api/captures/IRCam-20990101-000000.csv", http.StatusNotFound},
		{"wrong extension", "/api/captures/notes.txt", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path, nil)
			testutil.AssertStatusCode(t, w.Code, tt.want)
		})
	}
}

func TestDownloadCapture_Traversal(t *testing.T) {
	env := setupTestServer(t, false)
	outside := filepath.Join(filepath.Dir(env.dir), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, name := range []string{"../secret.csv", "sub/../../secret.csv", "/etc/secret.csv"} {
		req := httptest.NewRequest(http.MethodGet, "/api/captures/x", nil)
		req.SetPathValue("name", name)
		w := httptest.NewRecorder()
		env.server.downloadCapture(w, req)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	}
}

func TestCaptures_LoggingDisabled(t *testing.T) {
	env := setupTestServer(t, false)
	env.server.captureDir = ""
	w := env.do(http.MethodGet, "/api/captures", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, colorBoldGreen + "200" + colorReset},
		{http.StatusFound, colorYellow + "302" + colorReset},
		{http.StatusNotFound, colorBoldRed + "404" + colorReset},
		{http.StatusServiceUnavailable, colorBoldRed + "503" + colorReset},
		{100, "100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeColor(tt.code))
	}

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
}
