// Package api serves the odometry state, recorded sessions and track charts
// over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/odometry/internal/db"
	"github.com/banshee-data/odometry/internal/httputil"
	"github.com/banshee-data/odometry/internal/monitor"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/serialmux"
	"github.com/banshee-data/odometry/internal/timeutil"
	"github.com/banshee-data/odometry/internal/units"
	"github.com/banshee-data/odometry/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxSampleLimit caps the rows returned by a single samples request.
const maxSampleLimit = 10000

type Server struct {
	m     serialmux.SerialMuxInterface
	pipe  *pipeline.Pipeline
	db    *db.DB
	units string
	clock timeutil.Clock

	recorder *db.Recorder
	plotter  *monitor.TrackPlotter

	// sessionMu serialises resets so the session rotation and processor
	// reset are observed together.
	sessionMu sync.Mutex
}

// NewServer creates a server over pipe. m and database may be nil when the
// daemon runs without a board or without persistence.
func NewServer(m serialmux.SerialMuxInterface, pipe *pipeline.Pipeline, database *db.DB, units string) *Server {
	return &Server{
		m:     m,
		pipe:  pipe,
		db:    database,
		units: units,
		clock: timeutil.RealClock{},
	}
}

// SetRecorder lets reset rotate the session the recorder writes to.
func (s *Server) SetRecorder(r *db.Recorder) { s.recorder = r }

// SetPlotter exposes the live track on the chart endpoints.
func (s *Server) SetPlotter(tp *monitor.TrackPlotter) { s.plotter = tp }

// SetClock replaces the clock used to stamp session boundaries.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

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
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/config", s.showConfig)

	mux.HandleFunc("/api/pose", s.showPose)
	mux.HandleFunc("/api/velocity", s.showVelocity)
	mux.HandleFunc("/api/distance", s.showDistance)
	mux.HandleFunc("/api/wheels", s.showWheels)
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/reset", s.resetHandler)

	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}/samples", s.listSamples)
	mux.HandleFunc("/api/sessions/{id}/stats", s.showSessionStats)

	mux.HandleFunc("/charts/track", s.trackChart)
	mux.HandleFunc("/charts/track.png", s.trackPNG)
	mux.HandleFunc("/api/track/save", s.saveTrack)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.m == nil {
		httputil.ServiceUnavailable(w, "no serial board attached")
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		log.Printf("failed to send command %q: %v", command, err)
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	io.WriteString(w, "Command sent successfully")
}

// configResponse describes how the daemon is set up.
type configResponse struct {
	Version    string            `json:"version"`
	Units      string            `json:"units"`
	Geometry   any               `json:"geometry"`
	BoardState map[string]string `json:"board_state"`
	Session    string            `json:"session_id,omitempty"`
	Persisting bool              `json:"persisting"`
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, configResponse{
		Version:    version.Version,
		Units:      s.units,
		Geometry:   s.pipe.Config(),
		BoardState: serialmux.BoardState(),
		Session:    s.sessionID(),
		Persisting: s.db != nil,
	})
}

// requestUnits returns the ?units= override or the server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q: must be one of %s", u, units.GetValidUnitsString())
	}
	return u, nil
}

func (s *Server) sessionID() string {
	if s.recorder == nil {
		return ""
	}
	return s.recorder.SessionID()
}

// rotateSession ends the current session and starts a new one that accepts
// updates from generation on. It returns the new session id, or "" when
// nothing is persisted.
func (s *Server) rotateSession(generation uint64) (string, error) {
	if s.db == nil || s.recorder == nil {
		return "", nil
	}
	now := s.clock.Now()
	if prev := s.recorder.SessionID(); prev != "" {
		if err := s.db.EndSession(prev, now); err != nil && !errors.Is(err, db.ErrSessionNotFound) {
			return "", err
		}
	}
	sess, err := s.db.StartSession(s.pipe.Config(), now)
	if err != nil {
		return "", err
	}
	s.recorder.SetSession(sess.ID, generation)
	return sess.ID, nil
}
