package odometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{2 * math.Pi, 0},
		{5 * math.Pi, math.Pi},
		{-7 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9, "NormalizeAngle(%v)", tt.in)
	}
}

func TestIntegratePoseStraight(t *testing.T) {
	p := Pose{}
	for i := 0; i < 10; i++ {
		p = IntegratePose(p, 0, 0.1)
	}
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-12)
	assert.InDelta(t, 0, p.Theta, 1e-12)
}

func TestIntegratePoseArcQuarterCircle(t *testing.T) {
	// A quarter circle of radius 1 travelled in one frame ends at (1, 1).
	p := IntegratePose(Pose{}, math.Pi/2, math.Pi/2)
	assert.InDelta(t, 1, p.X, 1e-9)
	assert.InDelta(t, 1, p.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Theta, 1e-12)
}

func TestIntegratePoseSpinInPlace(t *testing.T) {
	p := IntegratePose(Pose{X: 1, Y: 2}, 0.5, 0)
	assert.InDelta(t, 1, p.X, 1e-12)
	assert.InDelta(t, 2, p.Y, 1e-12)
	assert.InDelta(t, 0.5, p.Theta, 1e-12)
}

func TestIntegratePoseBranchContinuity(t *testing.T) {
	start := Pose{X: 0.4, Y: -0.2, Theta: 0.3}
	for _, dist := range []float64{0.01, 0.05, 0.2} {
		below := IntegratePose(start, SmallAngleThreshold-1e-9, dist)
		above := IntegratePose(start, SmallAngleThreshold+1e-9, dist)

		assert.Less(t, math.Abs(below.X-above.X), 1e-4, "dist=%v", dist)
		assert.Less(t, math.Abs(below.Y-above.Y), 1e-4, "dist=%v", dist)

		negBelow := IntegratePose(start, -SmallAngleThreshold+1e-9, dist)
		negAbove := IntegratePose(start, -SmallAngleThreshold-1e-9, dist)
		assert.Less(t, math.Abs(negBelow.X-negAbove.X), 1e-4, "dist=%v", dist)
		assert.Less(t, math.Abs(negBelow.Y-negAbove.Y), 1e-4, "dist=%v", dist)
	}
}

func TestIntegratePoseThetaAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := Pose{}
	for i := 0; i < 5000; i++ {
		dTheta := (rng.Float64() - 0.5) * 4
		dist := (rng.Float64() - 0.5) * 0.4
		p = IntegratePose(p, dTheta, dist)
		if p.Theta <= -math.Pi || p.Theta > math.Pi {
			t.Fatalf("step %d: theta %v outside (-pi, pi]", i, p.Theta)
		}
	}
}
