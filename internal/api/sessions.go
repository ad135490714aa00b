package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/banshee-data/odometry/internal/db"
	"github.com/banshee-data/odometry/internal/httputil"
)

// requireDB answers 503 and returns false when persistence is disabled.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "persistence disabled")
		return false
	}
	return true
}

// writeDBError maps a db error to a JSON response.
func writeDBError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, "session not found")
		return
	}
	log.Printf("%s: %v", op, err)
	httputil.InternalServerError(w, op+" failed")
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireDB(w) {
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		writeDBError(w, "list sessions", err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"current":  s.sessionID(),
		"sessions": sessions,
	})
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireDB(w) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 0, maxSampleLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if limit == 0 {
		limit = maxSampleLimit
	}
	samples, err := s.db.Samples(r.PathValue("id"), limit)
	if err != nil {
		writeDBError(w, "list samples", err)
		return
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) showSessionStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) || !s.requireDB(w) {
		return
	}
	stats, err := s.db.SessionStats(r.PathValue("id"))
	if err != nil {
		writeDBError(w, "session stats", err)
		return
	}
	httputil.WriteJSONOK(w, stats)
}
