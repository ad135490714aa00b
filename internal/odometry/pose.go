package odometry

import "math"

// SmallAngleThreshold is the heading change, in radians, below which the
// integrator uses the midpoint-heading approximation instead of arc geometry.
const SmallAngleThreshold = 0.01

// Pose is the robot position relative to where it started.
type Pose struct {
	X     float64 `json:"x"`     // meters, forward at start
	Y     float64 `json:"y"`     // meters, left at start
	Theta float64 `json:"theta"` // radians, in (-Pi, Pi]
}

// Distance holds per-frame and accumulated travel of the axle centre.
// TotalDistance is a signed sum, so reversing reduces it.
type Distance struct {
	FrameDistance float64 `json:"frame_distance"`
	TotalDistance float64 `json:"total_distance"`
}

// IntegratePose advances p by one frame of motion.
//
// The heading is advanced first. Small turns use the midpoint heading; larger
// turns follow the exact arc about the instantaneous centre of rotation.
func IntegratePose(p Pose, deltaTheta, frameDistance float64) Pose {
	theta := p.Theta + deltaTheta

	var dx, dy float64
	if math.Abs(deltaTheta) < SmallAngleThreshold {
		mid := theta - deltaTheta/2
		dx = frameDistance * math.Cos(mid)
		dy = frameDistance * math.Sin(mid)
	} else {
		radius := frameDistance / deltaTheta
		prev := theta - deltaTheta
		dx = radius * (math.Sin(theta) - math.Sin(prev))
		dy = radius * (math.Cos(prev) - math.Cos(theta))
	}

	return Pose{
		X:     p.X + dx,
		Y:     p.Y + dy,
		Theta: NormalizeAngle(theta),
	}
}

// NormalizeAngle wraps theta into (-Pi, Pi].
func NormalizeAngle(theta float64) float64 {
	a := math.Mod(math.Mod(theta+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
