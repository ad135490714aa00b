package odometry

// DegreesToMeters converts an encoder angle delta into linear wheel travel.
// The sign is flipped first when forward motion decreases the reading.
func DegreesToMeters(deltaDeg float64, forwardIncreases bool, gearRatio, circumference float64) float64 {
	if !forwardIncreases {
		deltaDeg = -deltaDeg
	}
	encoderRotations := deltaDeg / degreesPerRevolution
	wheelRotations := encoderRotations / gearRatio
	return wheelRotations * circumference
}

// convert updates the frame and total linear travel of e from its current
// frame angle delta.
func (e *EncoderState) convert(forwardIncreases bool, gearRatio, circumference float64) float64 {
	m := DegreesToMeters(e.FrameDegrees, forwardIncreases, gearRatio, circumference)
	e.FrameMeters = m
	e.TotalMeters += m
	return m
}
