package db

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
)

// Sample is one persisted processor snapshot.
type Sample struct {
	SessionID     string            `json:"session_id"`
	Seq           uint64            `json:"seq"`
	RecordedAt    time.Time         `json:"recorded_at"`
	Pose          odometry.Pose     `json:"pose"`
	Velocity      odometry.Velocity `json:"velocity"`
	Distance      odometry.Distance `json:"distance"`
	DeltaMillis   int32             `json:"delta_ms"`
	LeftTotalDeg  float64           `json:"left_total_deg"`
	RightTotalDeg float64           `json:"right_total_deg"`
}

// RecordSample persists a pipeline update under sessionID.
func (db *DB) RecordSample(sessionID string, u pipeline.Update) error {
	s := u.Snapshot
	_, err := db.Exec(
		`INSERT INTO pose_samples (
			session_id, seq, recorded_unix_ms, x, y, theta, linear_x, angular_z,
			frame_distance, total_distance, delta_ms, left_total_deg, right_total_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(u.Seq), u.At.UnixMilli(),
		s.Pose.X, s.Pose.Y, s.Pose.Theta,
		s.Velocity.LinearX, s.Velocity.AngularZ,
		s.Distance.FrameDistance, s.Distance.TotalDistance,
		s.Clock.Delta,
		s.Wheel(odometry.Left).TotalDegrees, s.Wheel(odometry.Right).TotalDegrees,
	)
	if err != nil {
		return fmt.Errorf("insert sample %d: %w", u.Seq, err)
	}
	return nil
}

// Samples returns up to limit samples for a session in sequence order.
// A non-positive limit returns all of them.
func (db *DB) Samples(sessionID string, limit int) ([]Sample, error) {
	if _, err := db.Session(sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := db.Query(
		`SELECT seq, recorded_unix_ms, x, y, theta, linear_x, angular_z,
		        frame_distance, total_distance, delta_ms, left_total_deg, right_total_deg
		 FROM pose_samples WHERE session_id = ? ORDER BY seq ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			s          Sample
			seq        int64
			recordedMs int64
		)
		if err := rows.Scan(&seq, &recordedMs,
			&s.Pose.X, &s.Pose.Y, &s.Pose.Theta,
			&s.Velocity.LinearX, &s.Velocity.AngularZ,
			&s.Distance.FrameDistance, &s.Distance.TotalDistance,
			&s.DeltaMillis, &s.LeftTotalDeg, &s.RightTotalDeg,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.SessionID = sessionID
		s.Seq = uint64(seq)
		s.RecordedAt = time.UnixMilli(recordedMs).UTC()
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// SessionStats summarises the samples of one session.
type SessionStats struct {
	SessionID       string        `json:"session_id"`
	Count           int           `json:"count"`
	MeanLinearX     float64       `json:"mean_linear_x"`
	StdDevLinearX   float64       `json:"stddev_linear_x"`
	MaxAbsLinearX   float64       `json:"max_abs_linear_x"`
	MeanAngularZ    float64       `json:"mean_angular_z"`
	StdDevAngularZ  float64       `json:"stddev_angular_z"`
	FinalPose       odometry.Pose `json:"final_pose"`
	TotalDistance   float64       `json:"total_distance"`
	PathLength      float64       `json:"path_length"`
	DurationSeconds float64       `json:"duration_s"`
}

// SessionStats computes velocity statistics and the final state of a session.
func (db *DB) SessionStats(sessionID string) (*SessionStats, error) {
	samples, err := db.Samples(sessionID, 0)
	if err != nil {
		return nil, err
	}
	return computeStats(sessionID, samples), nil
}

func computeStats(sessionID string, samples []Sample) *SessionStats {
	st := &SessionStats{SessionID: sessionID, Count: len(samples)}
	if len(samples) == 0 {
		return st
	}

	linear := make([]float64, len(samples))
	angular := make([]float64, len(samples))
	steps := make([]float64, 0, len(samples)-1)
	for i, s := range samples {
		linear[i] = s.Velocity.LinearX
		angular[i] = s.Velocity.AngularZ
		if i > 0 {
			prev := samples[i-1].Pose
			steps = append(steps, math.Hypot(s.Pose.X-prev.X, s.Pose.Y-prev.Y))
		}
	}
	st.PathLength = floats.Sum(steps)

	st.MeanLinearX, st.StdDevLinearX = stat.MeanStdDev(linear, nil)
	st.MeanAngularZ, st.StdDevAngularZ = stat.MeanStdDev(angular, nil)
	if len(samples) < 2 {
		// Sample standard deviation is undefined for a single value.
		st.StdDevLinearX, st.StdDevAngularZ = 0, 0
	}
	st.MaxAbsLinearX = math.Max(math.Abs(floats.Max(linear)), math.Abs(floats.Min(linear)))

	last := samples[len(samples)-1]
	st.FinalPose = last.Pose
	st.TotalDistance = last.Distance.TotalDistance
	st.DurationSeconds = last.RecordedAt.Sub(samples[0].RecordedAt).Seconds()
	return st
}
