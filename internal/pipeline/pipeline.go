// Package pipeline shares a single odometry processor between the serial
// feed and its readers, and fans processed snapshots out to subscribers.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/odometry/internal/encoderfeed"
	"github.com/banshee-data/odometry/internal/monitoring"
	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/timeutil"
)

// subscriberBuffer is the number of updates a subscriber may lag behind
// before updates to it are dropped.
const subscriberBuffer = 16

// Update is published after every processed frame. Generation counts the
// resets that preceded it, so consumers can discard updates that were still
// queued when the processor was reset.
type Update struct {
	Seq        uint64            `json:"seq"`
	Generation uint64            `json:"generation"`
	At         time.Time         `json:"at"`
	Snapshot   odometry.Snapshot `json:"snapshot"`
}

// Stats counts what the pipeline has consumed since construction.
type Stats struct {
	Frames      uint64 `json:"frames"`
	Skipped     uint64 `json:"skipped"`
	ParseErrors uint64 `json:"parse_errors"`
	Resets      uint64 `json:"resets"`
}

// Pipeline owns the processor and serialises every access to it.
type Pipeline struct {
	mu    sync.Mutex
	proc  *odometry.Processor
	clock timeutil.Clock
	epoch time.Time
	seq   uint64
	gen   uint64
	stats Stats

	subscribers  map[string]chan Update
	subscriberMu sync.Mutex
}

// New creates a pipeline around a fresh processor. Frames that arrive
// without a board timestamp are stamped from clock.
func New(cfg odometry.Config, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		proc:        odometry.NewProcessor(cfg),
		clock:       clock,
		epoch:       clock.Now(),
		subscribers: make(map[string]chan Update),
	}
}

// Config returns the processor configuration.
func (p *Pipeline) Config() odometry.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.Config()
}

// HandleLine parses one line of board output and applies it. Lines without
// a sample are counted and ignored; malformed lines are logged, counted and
// returned as errors.
func (p *Pipeline) HandleLine(line string) error {
	frame, err := encoderfeed.ParseLine(line)
	if errors.Is(err, encoderfeed.ErrSkipLine) {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.mu.Lock()
		p.stats.ParseErrors++
		p.mu.Unlock()
		monitoring.Logf("pipeline: dropping line %q: %v", line, err)
		return err
	}
	p.HandleFrame(frame)
	return nil
}

// HandleFrame applies a decoded frame and publishes the resulting snapshot.
// Publishing happens under the processor lock, so subscribers see updates in
// Seq order even with several feeders.
func (p *Pipeline) HandleFrame(frame encoderfeed.Frame) Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !frame.HasTimestamp {
		frame = frame.WithTimestamp(timeutil.Millis16(p.clock, p.epoch))
	}
	encoderfeed.Apply(p.proc, frame)
	p.seq++
	p.stats.Frames++
	u := Update{Seq: p.seq, Generation: p.gen, At: p.clock.Now(), Snapshot: p.proc.Snapshot()}

	monitoring.Debugf("pipeline: frame %d pose=(%.4f, %.4f, %.4f)", u.Seq, u.Snapshot.Pose.X, u.Snapshot.Pose.Y, u.Snapshot.Pose.Theta)
	p.publish(u)
	return u
}

// Snapshot returns the current processor state.
func (p *Pipeline) Snapshot() odometry.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.Snapshot()
}

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reset restores the processor to its initial state, re-arming the settle
// gate, and returns the new generation. The sequence counter keeps running.
func (p *Pipeline) Reset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proc.Reset()
	p.gen++
	p.stats.Resets++
	monitoring.Logf("pipeline: processor reset, generation %d", p.gen)
	return p.gen
}

// Generation returns the number of resets so far.
func (p *Pipeline) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Subscribe registers a channel that receives every published update. A
// subscriber that falls subscriberBuffer updates behind misses updates
// rather than stalling the feed.
func (p *Pipeline) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, subscriberBuffer)
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	p.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (p *Pipeline) Unsubscribe(id string) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

func (p *Pipeline) publish(u Update) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- u:
		default:
			// slow subscriber, skip so the feed is never blocked
		}
	}
}

// Run consumes lines until ctx is cancelled or lines is closed.
func (p *Pipeline) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			// Parse errors are already logged and counted.
			_ = p.HandleLine(line)
		}
	}
}

// Close unsubscribes every subscriber.
func (p *Pipeline) Close() {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
}
