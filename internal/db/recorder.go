package db

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/odometry/internal/monitoring"
	"github.com/banshee-data/odometry/internal/pipeline"
)

// Recorder persists pipeline updates into the current session, writing at
// most one sample per interval. Updates from before the settle gate opened
// are not stored, nor are updates from a generation older than the session.
type Recorder struct {
	db       *DB
	interval time.Duration

	mu         sync.Mutex
	sessionID  string
	generation uint64
	lastAt     time.Time
	written    uint64
	skipped    uint64
	stale      uint64
}

// RecorderStats counts samples written, skipped by throttling and dropped as
// stale.
type RecorderStats struct {
	SessionID string `json:"session_id"`
	Written   uint64 `json:"written"`
	Skipped   uint64 `json:"skipped"`
	Stale     uint64 `json:"stale"`
}

// NewRecorder creates a recorder writing to sessionID.
func NewRecorder(db *DB, sessionID string, interval time.Duration) *Recorder {
	return &Recorder{db: db, sessionID: sessionID, interval: interval}
}

// SetSession switches subsequent writes to a new session that starts at the
// given pipeline generation. Updates queued before the switch carry an older
// generation and are dropped.
func (r *Recorder) SetSession(id string, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
	r.generation = generation
	r.lastAt = time.Time{}
}

// SessionID returns the session currently written to.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{SessionID: r.sessionID, Written: r.written, Skipped: r.skipped, Stale: r.stale}
}

// Record stores u if it is settled and at least interval after the last
// stored sample.
func (r *Recorder) Record(u pipeline.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Generation < r.generation {
		r.stale++
		return nil
	}
	if !u.Snapshot.Settled {
		return nil
	}
	if !r.lastAt.IsZero() && u.At.Sub(r.lastAt) < r.interval {
		r.skipped++
		return nil
	}
	if err := r.db.RecordSample(r.sessionID, u); err != nil {
		return err
	}
	r.lastAt = u.At
	r.written++
	return nil
}

// Run records updates until ctx is done or updates is closed.
func (r *Recorder) Run(ctx context.Context, updates <-chan pipeline.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := r.Record(u); err != nil {
				monitoring.Logf("recorder: %v", err)
			}
		}
	}
}
