package api

import (
	"bytes"
	"log"
	"net/http"
	"strings"

	"github.com/banshee-data/odometry/internal/httputil"
	"github.com/banshee-data/odometry/internal/monitor"
	"github.com/banshee-data/odometry/internal/odometry"
)

// trackPoses returns the poses of ?session=<id> from the database, or the
// live track when no session is named.
func (s *Server) trackPoses(w http.ResponseWriter, r *http.Request) (string, []odometry.Pose, bool) {
	id := r.URL.Query().Get("session")
	if id == "" {
		if s.plotter == nil {
			httputil.ServiceUnavailable(w, "live track disabled")
			return "", nil, false
		}
		return "live track", s.plotter.Poses(), true
	}
	if !s.requireDB(w) {
		return "", nil, false
	}
	samples, err := s.db.Samples(id, 0)
	if err != nil {
		writeDBError(w, "load track", err)
		return "", nil, false
	}
	poses := make([]odometry.Pose, 0, len(samples))
	for _, sm := range samples {
		poses = append(poses, sm.Pose)
	}
	return "session " + id, poses, true
}

func (s *Server) trackChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	title, poses, ok := s.trackPoses(w, r)
	if !ok {
		return
	}
	// Render into a buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := monitor.RenderTrackChart(&buf, title, poses); err != nil {
		log.Printf("track chart: %v", err)
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) trackPNG(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	title, poses, ok := s.trackPoses(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := monitor.WriteTrackPNG(&buf, title, poses); err != nil {
		log.Printf("track png: %v", err)
		httputil.InternalServerError(w, "failed to render plot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// saveTrack writes the live track to the plot directory as ?name=<name>.png.
func (s *Server) saveTrack(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.plotter == nil {
		httputil.ServiceUnavailable(w, "live track disabled")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = "track-" + s.clock.Now().UTC().Format("20060102T150405Z")
	}
	path, err := s.plotter.Save(name)
	if err != nil {
		log.Printf("save track: %v", err)
		httputil.InternalServerError(w, "failed to save track")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": path})
}
