// Package serialmux provides an abstraction over the encoder board's serial
// port with the ability for multiple clients to subscribe to lines from the
// port and send commands to the single device.
package serialmux

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// DefaultStreamRateHz is the sample rate requested from the board when none
// is configured.
const DefaultStreamRateHz = 50

// subscriberBuffer is how many lines a subscriber may lag before lines to it
// are dropped.
const subscriberBuffer = 64

// SerialMux is a generic serial port multiplexer that allows multiple clients
// to subscribe to lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool
	streamRateHz int

	linesRead    atomic.Uint64
	linesDropped atomic.Uint64
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving lines from the serial
	// port. The ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads lines from the serial port and sends them to the
	// subscribers until ctx is done or the port is exhausted.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// Initialize sends the board start-up commands.
	Initialize() error
	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts lines seen by Monitor.
type Stats struct {
	LinesRead    uint64 `json:"lines_read"`
	LinesDropped uint64 `json:"lines_dropped"`
	Subscribers  int    `json:"subscribers"`
}

// NewSerialMux creates a SerialMux around an open port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:         port,
		subscribers:  make(map[string]chan string),
		streamRateHz: DefaultStreamRateHz,
	}
}

// SetStreamRate sets the sample rate Initialize requests from the board.
// Non-positive values keep the current rate.
func (s *SerialMux[T]) SetStreamRate(hz int) {
	if hz > 0 {
		s.streamRateHz = hz
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)
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

// StartupCommands returns the commands Initialize sends, in order.
func StartupCommands(streamRateHz int) []string {
	if streamRateHz <= 0 {
		streamRateHz = DefaultStreamRateHz
	}
	return []string{
		"S",                               // stop streaming while configuring
		"Z",                               // zero both encoder counters
		"OC",                              // CSV output: left,right,timestamp
		"OT",                              // include the millisecond timestamp
		fmt.Sprintf("R=%d", streamRateHz), // sample rate
		"G",                               // start streaming
	}
}

// Initialize zeroes the encoders and configures the output format so lines
// can be parsed by encoderfeed.
func (s *SerialMux[T]) Initialize() error {
	for _, command := range StartupCommands(s.streamRateHz) {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
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

// Monitor reads lines from the serial port and forwards them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan runs in its own goroutine so the loop below can
	// observe ctx cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.closing.Load() {
				return nil
			}
			s.linesRead.Add(1)
			s.broadcast(line)
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// subscriber full; skip so the port keeps draining
			s.linesDropped.Add(1)
		}
	}
}

// Stats returns the line counters.
func (s *SerialMux[T]) Stats() Stats {
	s.subscriberMu.Lock()
	n := len(s.subscribers)
	s.subscriberMu.Unlock()
	return Stats{
		LinesRead:    s.linesRead.Load(),
		LinesDropped: s.linesDropped.Load(),
		Subscribers:  n,
	}
}

func (s *SerialMux[T]) Close() error {
	s.closing.Store(true)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("serial-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Stats())
	})
	attachCommandRoutes(debug, s.SendCommand, s.Subscribe, s.Unsubscribe)
}

// attachCommandRoutes mounts the command and live tail endpoints shared by
// every mux implementation.
func attachCommandRoutes(debug *tsweb.DebugHandler, send func(string) error, subscribe func() (string, chan string), unsubscribe func(string)) {
	// API endpoint to write a command to the serial port
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
		if err := send(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Sent Events stream of lines coming from the serial port.
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
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := subscribe()
		defer unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
