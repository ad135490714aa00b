package odometry

// Velocity is the robot-frame velocity over the most recent frame.
type Velocity struct {
	LinearX  float64 `json:"linear_x"`  // m/s
	AngularZ float64 `json:"angular_z"` // rad/s
}

// EstimateVelocity divides one frame of motion by its elapsed time.
// A non-positive elapsed time yields zero velocity.
func EstimateVelocity(frameDistance, deltaTheta float64, deltaMillis int32) Velocity {
	if deltaMillis <= 0 {
		return Velocity{}
	}
	secs := float64(deltaMillis) / 1000
	return Velocity{
		LinearX:  frameDistance / secs,
		AngularZ: deltaTheta / secs,
	}
}
