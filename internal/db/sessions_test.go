package db

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/odometry/internal/odometry"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStartSession(t *testing.T) {
	db := setupTestDB(t)
	cfg := odometry.DefaultConfig()
	cfg.LeftForwardIncreases = false

	s, err := db.StartSession(cfg, t0)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("Session mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.EndedAt)
}

func TestEndSession(t *testing.T) {
	db := setupTestDB(t)
	s, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)

	require.NoError(t, db.EndSession(s.ID, t0.Add(time.Minute)))
	// A second end keeps the original time.
	require.NoError(t, db.EndSession(s.ID, t0.Add(time.Hour)))

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.EndedAt)

	assert.ErrorIs(t, db.EndSession("missing", t0), ErrSessionNotFound)
}

func TestSessionNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Session("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_NewestFirst(t *testing.T) {
	db := setupTestDB(t)

	sessions, err := db.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	a, err := db.StartSession(odometry.DefaultConfig(), t0)
	require.NoError(t, err)
	b, err := db.StartSession(odometry.DefaultConfig(), t0.Add(time.Second))
	require.NoError(t, err)

	sessions, err = db.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Equal(t, a.ID, sessions[1].ID)
}
