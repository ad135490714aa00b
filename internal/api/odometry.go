package api

import (
	"log"
	"net/http"

	"github.com/banshee-data/odometry/internal/httputil"
	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/units"
)

type poseResponse struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Theta    float64 `json:"theta"`
	ThetaDeg float64 `json:"theta_deg"`
	Settled  bool    `json:"settled"`
}

type velocityResponse struct {
	LinearX     float64 `json:"linear_x"`
	AngularZ    float64 `json:"angular_z"`
	AngularZDeg float64 `json:"angular_z_deg"`
	Units       string  `json:"units"`
	DeltaMillis int32   `json:"delta_ms"`
}

type wheelResponse struct {
	Wheel            string  `json:"wheel"`
	ForwardIncreases bool    `json:"forward_increases"`
	CurrentDeg       float64 `json:"current_deg"`
	LastDeg          float64 `json:"last_deg"`
	FrameDeg         float64 `json:"frame_deg"`
	TotalDeg         float64 `json:"total_deg"`
	FrameMeters      float64 `json:"frame_m"`
	TotalMeters      float64 `json:"total_m"`
}

type snapshotResponse struct {
	Pose      poseResponse      `json:"pose"`
	Velocity  velocityResponse  `json:"velocity"`
	Distance  odometry.Distance `json:"distance"`
	Wheels    []wheelResponse   `json:"wheels"`
	Stats     pipeline.Stats    `json:"stats"`
	SessionID string            `json:"session_id,omitempty"`
	Recorder  any               `json:"recorder,omitempty"`
}

func newPoseResponse(snap odometry.Snapshot) poseResponse {
	return poseResponse{
		X:        snap.Pose.X,
		Y:        snap.Pose.Y,
		Theta:    snap.Pose.Theta,
		ThetaDeg: units.RadToDeg(snap.Pose.Theta),
		Settled:  snap.Settled,
	}
}

// newVelocityResponse converts the linear speed to u. Angular rate stays in
// rad/s with a deg/s copy alongside.
func newVelocityResponse(snap odometry.Snapshot, u string) velocityResponse {
	return velocityResponse{
		LinearX:     units.ConvertSpeed(snap.Velocity.LinearX, u),
		AngularZ:    snap.Velocity.AngularZ,
		AngularZDeg: units.RadToDeg(snap.Velocity.AngularZ),
		Units:       u,
		DeltaMillis: snap.Clock.Delta,
	}
}

func newWheelResponses(snap odometry.Snapshot, cfg odometry.Config) []wheelResponse {
	out := make([]wheelResponse, 0, len(odometry.Wheels))
	for _, w := range odometry.Wheels {
		e := snap.Wheel(w)
		out = append(out, wheelResponse{
			Wheel:            w.String(),
			ForwardIncreases: cfg.ForwardIncreases(w),
			CurrentDeg:       e.Current,
			LastDeg:          e.Last,
			FrameDeg:         e.FrameDegrees,
			TotalDeg:         e.TotalDegrees,
			FrameMeters:      e.FrameMeters,
			TotalMeters:      e.TotalMeters,
		})
	}
	return out
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, newPoseResponse(s.pipe.Snapshot()))
}

func (s *Server) showVelocity(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, newVelocityResponse(s.pipe.Snapshot(), u))
}

func (s *Server) showDistance(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.pipe.Snapshot().Distance)
}

func (s *Server) showWheels(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, newWheelResponses(s.pipe.Snapshot(), s.pipe.Config()))
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap := s.pipe.Snapshot()
	resp := snapshotResponse{
		Pose:      newPoseResponse(snap),
		Velocity:  newVelocityResponse(snap, u),
		Distance:  snap.Distance,
		Wheels:    newWheelResponses(snap, s.pipe.Config()),
		Stats:     s.pipe.Stats(),
		SessionID: s.sessionID(),
	}
	if s.recorder != nil {
		resp.Recorder = s.recorder.Stats()
	}
	httputil.WriteJSONOK(w, resp)
}

// resetHandler zeroes the processor and starts a new session. The recorder
// and plotter move to the next generation before the processor does, so
// updates still queued from the previous run are dropped rather than stored
// in the new session.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	next := s.pipe.Generation() + 1
	id, rotateErr := s.rotateSession(next)
	if s.plotter != nil {
		s.plotter.Reset(next)
	}
	s.pipe.Reset()
	if rotateErr != nil {
		log.Printf("reset: failed to rotate session: %v", rotateErr)
		httputil.InternalServerError(w, "processor reset but session rotation failed")
		return
	}
	log.Printf("odometry reset, session=%q generation=%d", id, next)
	httputil.WriteJSONOK(w, map[string]any{"reset": true, "session_id": id, "generation": next})
}
