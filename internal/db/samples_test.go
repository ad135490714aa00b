package db

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
)

func update(seq uint64, at time.Time, x, linear, angular, total float64) pipeline.Update {
	var enc odometry.PerWheel[odometry.EncoderState]
	enc[odometry.Left].TotalDegrees = total * 10
	enc[odometry.Right].TotalDegrees = total * 20
	return pipeline.Update{
		Seq: seq,
		At:  at,
		Snapshot: odometry.Snapshot{
			Pose:     odometry.Pose{X: x, Y: -x, Theta: 0.5},
			Velocity: odometry.Velocity{LinearX: linear, AngularZ: angular},
			Distance: odometry.Distance{FrameDistance: 0.1, TotalDistance: total},
			Clock:    odometry.ClockState{Last: uint16(seq * 100), Delta: 100},
			Settled:  true,
			Encoders: enc,
		},
	}
}

func TestRecordSampleAndSamples(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, db.RecordSample(s.ID, update(i, t0.Add(time.Duration(i)*100*time.Millisecond), float64(i), 1, 0, float64(i)/10)))
	}

	all, err := db.Samples(s.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	first := all[0]
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, s.ID, first.SessionID)
	assert.Equal(t, t0.Add(100*time.Millisecond), first.RecordedAt)
	assert.Equal(t, odometry.Pose{X: 1, Y: -1, Theta: 0.5}, first.Pose)
	assert.Equal(t, int32(100), first.DeltaMillis)
	assert.InDelta(t, 1.0, first.LeftTotalDeg, 1e-12)
	assert.InDelta(t, 2.0, first.RightTotalDeg, 1e-12)

	limited, err := db.Samples(s.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, uint64(2), limited[1].Seq)
}

func TestRecordSample_DuplicateSeqRejected(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	require.NoError(t, db.RecordSample(s.ID, update(1, t0, 0, 0, 0, 0)))
	assert.Error(t, db.RecordSample(s.ID, update(1, t0, 0, 0, 0, 0)))
}

func TestRecordSample_UnknownSessionRejected(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.RecordSample("missing", update(1, t0, 0, 0, 0, 0)))
}

func TestSamples_UnknownSession(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Samples("missing", 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStats(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	linear := []float64{1, 2, 3, -4}
	angular := []float64{0.1, 0.1, 0.1, 0.1}
	for i := range linear {
		seq := uint64(i + 1)
		require.NoError(t, db.RecordSample(s.ID, update(seq, t0.Add(time.Duration(i)*time.Second), float64(i), linear[i], angular[i], float64(seq))))
	}

	st, err := db.SessionStats(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Count)
	assert.InDelta(t, 0.5, st.MeanLinearX, 1e-12)
	// sample stddev of {1,2,3,-4}: sqrt(29/3)
	assert.InDelta(t, math.Sqrt(29.0/3.0), st.StdDevLinearX, 1e-12)
	assert.InDelta(t, 4.0, st.MaxAbsLinearX, 1e-12)
	assert.InDelta(t, 0.1, st.MeanAngularZ, 1e-12)
	assert.InDelta(t, 0.0, st.StdDevAngularZ, 1e-12)
	assert.Equal(t, odometry.Pose{X: 3, Y: -3, Theta: 0.5}, st.FinalPose)
	assert.Equal(t, 4.0, st.TotalDistance)
	assert.InDelta(t, 3*math.Sqrt2, st.PathLength, 1e-12)
	assert.Equal(t, 3.0, st.DurationSeconds)
}

func TestSessionStats_EmptyAndSingle(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	st, err := db.SessionStats(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count)

	require.NoError(t, db.RecordSample(s.ID, update(1, t0, 1, 2, 3, 4)))
	st, err = db.SessionStats(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 2.0, st.MeanLinearX)
	assert.Equal(t, 0.0, st.StdDevLinearX)
	assert.False(t, math.IsNaN(st.StdDevAngularZ))
	assert.Equal(t, 0.0, st.PathLength)
}

func TestSessionStats_PathLengthCountsBacktracking(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	// Out to (2, -2) and back to the origin.
	for i, x := range []float64{0, 2, 0} {
		require.NoError(t, db.RecordSample(s.ID, update(uint64(i+1), t0.Add(time.Duration(i)*time.Second), x, 0, 0, 0)))
	}

	st, err := db.SessionStats(s.ID)
	require.NoError(t, err)
	assert.Equal(t, odometry.Pose{Theta: 0.5}, st.FinalPose)
	assert.InDelta(t, 4*math.Sqrt2, st.PathLength, 1e-12)
}
