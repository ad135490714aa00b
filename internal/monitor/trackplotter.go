// Package monitor renders the driven path as PNG plots and HTML charts.
package monitor

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/odometry/internal/monitoring"
	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/security"
)

// DefaultMaxPoints bounds the in-memory track.
const DefaultMaxPoints = 20000

var (
	trackColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	startColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	endColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// TrackPlotter accumulates poses for plotting after or during a run.
type TrackPlotter struct {
	mu         sync.Mutex
	outputDir  string
	maxPoints  int
	generation uint64
	poses      []odometry.Pose
}

// NewTrackPlotter creates a plotter saving into outputDir. When the track
// exceeds maxPoints the oldest half is thinned to every other pose.
func NewTrackPlotter(outputDir string, maxPoints int) *TrackPlotter {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &TrackPlotter{outputDir: outputDir, maxPoints: maxPoints}
}

// Add appends a pose to the track.
func (tp *TrackPlotter) Add(p odometry.Pose) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.appendLocked(p)
}

// AddUpdate appends the pose of a settled update. Updates from a generation
// older than the last Reset are dropped.
func (tp *TrackPlotter) AddUpdate(u pipeline.Update) {
	if !u.Snapshot.Settled {
		return
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if u.Generation < tp.generation {
		return
	}
	tp.appendLocked(u.Snapshot.Pose)
}

func (tp *TrackPlotter) appendLocked(p odometry.Pose) {
	tp.poses = append(tp.poses, p)
	if len(tp.poses) > tp.maxPoints {
		tp.poses = thin(tp.poses)
	}
}

// thin drops every other pose from the older half of the track so recent
// motion keeps full resolution.
func thin(poses []odometry.Pose) []odometry.Pose {
	half := len(poses) / 2
	out := make([]odometry.Pose, 0, half/2+len(poses)-half+1)
	for i := 0; i < half; i += 2 {
		out = append(out, poses[i])
	}
	return append(out, poses[half:]...)
}

// Poses returns a copy of the track.
func (tp *TrackPlotter) Poses() []odometry.Pose {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]odometry.Pose(nil), tp.poses...)
}

// Reset clears the track and starts accepting updates from generation on.
func (tp *TrackPlotter) Reset(generation uint64) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.poses = nil
	tp.generation = generation
}

// Run passes every update to AddUpdate until ctx is done or updates is
// closed.
func (tp *TrackPlotter) Run(ctx context.Context, updates <-chan pipeline.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			tp.AddUpdate(u)
		}
	}
}

// Save writes the current track as <name>.png in the output directory and
// returns the file path.
func (tp *TrackPlotter) Save(name string) (string, error) {
	if tp.outputDir == "" {
		return "", fmt.Errorf("track plotter has no output directory")
	}
	if err := os.MkdirAll(tp.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create plot dir: %w", err)
	}
	path, err := security.OutputPath(tp.outputDir, name, ".png")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteTrackPNG(f, name, tp.Poses()); err != nil {
		return "", err
	}
	monitoring.Logf("monitor: wrote track plot %s", path)
	return path, nil
}

// WriteTrackPNG renders poses as an x/y line plot with start and end markers.
func WriteTrackPNG(w io.Writer, title string, poses []odometry.Pose) error {
	p, err := newTrackPlot(title, poses)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render track plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write track plot: %w", err)
	}
	return nil
}

func newTrackPlot(title string, poses []odometry.Pose) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(poses) == 0 {
		return p, nil
	}

	pts := make(plotter.XYs, len(poses))
	for i, pose := range poses {
		pts[i] = plotter.XY{X: pose.X, Y: pose.Y}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("track line: %w", err)
	}
	line.Color = trackColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("track", line)

	for _, m := range []struct {
		label string
		pose  odometry.Pose
		c     color.Color
	}{
		{"start", poses[0], startColor},
		{"end", poses[len(poses)-1], endColor},
	} {
		s, err := plotter.NewScatter(plotter.XYs{{X: m.pose.X, Y: m.pose.Y}})
		if err != nil {
			return nil, fmt.Errorf("%s marker: %w", m.label, err)
		}
		s.GlyphStyle.Color = m.c
		s.GlyphStyle.Radius = vg.Points(4)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(m.label, s)
	}

	squareAxes(p, pts)
	return p, nil
}

// squareAxes gives both axes the same span so turns are not distorted.
func squareAxes(p *plot.Plot, pts plotter.XYs) {
	xmin, xmax, ymin, ymax := plotter.XYRange(pts)
	span := math.Max(xmax-xmin, ymax-ymin)
	if span == 0 {
		span = 1
	}
	span *= 1.1
	cx, cy := (xmin+xmax)/2, (ymin+ymax)/2
	p.X.Min, p.X.Max = cx-span/2, cx+span/2
	p.Y.Min, p.Y.Max = cy-span/2, cy+span/2
}
