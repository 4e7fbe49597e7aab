// Serialmux provides an abstraction over the camera's serial port with the
// ability for multiple clients to tap the raw byte stream and send commands
// to the single device.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/ircam/internal/thermal"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// ErrInvalidRate is returned by Initialize for a refresh rate the sensor
// does not support.
var ErrInvalidRate = errors.New("unsupported refresh rate")

// CommandTerminator ends every command sent to the camera.
const CommandTerminator = ';'

// readChunkSize bounds a single read from the port.
const readChunkSize = 4096

// subscriberBuffer is the number of chunks a tap may lag before it drops.
const subscriberBuffer = 16

// RefreshRates lists the MLX90640 refresh rates in Hz.
var RefreshRates = []float64{0.5, 1, 2, 4, 8, 16, 32, 64}

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialMux is a generic serial port multiplexer: one reader feeds the
// decoder while any number of taps observe the raw chunks.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel receiving copies of the raw chunks read
	// from the port. The ID is used to unsubscribe.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads chunks from the port and hands them, in order, to
	// consume.
	Monitor(ctx context.Context, consume func([]byte)) error
	// Initialize sets the refresh rate and turns streaming on.
	Initialize(rateHz float64) error
	// Shutdown turns streaming off.
	Shutdown() error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// RateCommand returns the command that selects rateHz and starts streaming.
func RateCommand(rateHz float64) (string, error) {
	if !slices.Contains(RefreshRates, rateHz) {
		return "", fmt.Errorf("%w: %v Hz", ErrInvalidRate, rateHz)
	}
	return ";rate " + strconv.FormatFloat(rateHz, 'g', -1, 64) + ";auto on;", nil
}

// Initialize selects the refresh rate and switches the camera to automatic
// frame output. The leading terminator flushes any partial command left in
// the device's input buffer.
func (s *SerialMux[T]) Initialize(rateHz float64) error {
	command, err := RateCommand(rateHz)
	if err != nil {
		return err
	}
	if err := s.SendCommand(command); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	return nil
}

// Shutdown stops automatic frame output.
func (s *SerialMux[T]) Shutdown() error {
	if err := s.SendCommand("auto off"); err != nil {
		return fmt.Errorf("failed to stop streaming: %w", err)
	}
	return nil
}

// SendCommand sends a command to the serial port, terminated with ';'.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, string(CommandTerminator)) {
		command += string(CommandTerminator)
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the port until EOF, a read error, Close or cancellation.
// Every chunk is passed to consume on the calling goroutine in arrival
// order, after a copy has gone to each subscriber. A read error is returned
// wrapped in thermal.ErrTransportFailure. EOF and Close end cleanly.
func (s *SerialMux[T]) Monitor(ctx context.Context, consume func([]byte)) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// the blocking Read must not hold up the outer loop awaiting chunks &
	// context cancellation.
	go func() {
		defer close(chunkChan)
		for {
			buf := make([]byte, readChunkSize)
			n, err := s.port.Read(buf)
			if n > 0 {
				select {
				case chunkChan <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErrChan <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunkChan:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				select {
				case err := <-readErrChan:
					if s.isClosing() {
						return nil
					}
					return fmt.Errorf("%w: %w", thermal.ErrTransportFailure, err)
				default:
					return nil
				}
			}
			if s.isClosing() {
				return nil
			}
			s.publish(chunk)
			if consume != nil {
				consume(chunk)
			}
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) publish(chunk []byte) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- bytes.Clone(chunk):
		default:
			// a slow tap loses chunks rather than stalling the decoder
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// sseData formats a raw chunk as one server-sent event. Line breaks in the
// chunk become continuation data lines.
func sseData(chunk []byte) []byte {
	payload := strings.ReplaceAll(string(chunk), "\r", "")
	payload = strings.ReplaceAll(payload, "\n", "\ndata: ")
	return []byte("data: " + payload + "\n\n")
}

func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the camera", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, map[string]any{"Rates": RefreshRates}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", command)
	})

	// Server-Sent Events carrying the raw wire stream.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				if _, err := w.Write(sseData(chunk)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
