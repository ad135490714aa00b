package odometry

// FrameMotion is the robot-centre motion derived from one frame of wheel travel.
type FrameMotion struct {
	Distance   float64 // meters travelled by the axle centre
	DeltaTheta float64 // heading change in radians, counter-clockwise positive
}

// Kinematics applies the differential-drive relation to one frame of wheel
// travel. wheelBase must be non-zero.
func Kinematics(leftMeters, rightMeters, wheelBase float64) FrameMotion {
	return FrameMotion{
		Distance:   (leftMeters + rightMeters) / 2,
		DeltaTheta: (rightMeters - leftMeters) / wheelBase,
	}
}
