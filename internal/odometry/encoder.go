package odometry

const degreesPerRevolution = 360.0

// EncoderState is the per-wheel reading history and accumulated travel.
type EncoderState struct {
	Current float64 `json:"current_deg"`
	Last    float64 `json:"last_deg"`

	FrameDegrees float64 `json:"frame_deg"`
	TotalDegrees float64 `json:"total_deg"`

	FrameMeters float64 `json:"frame_m"`
	TotalMeters float64 `json:"total_m"`
}

// record shifts the current reading into Last and stores the new one.
func (e *EncoderState) record(angleDeg float64) {
	e.Last = e.Current
	e.Current = angleDeg
}

// advance computes the rollover-corrected delta for this frame and adds it
// to the running total.
func (e *EncoderState) advance(rolloverThreshold float64) float64 {
	d := DeltaDegrees(e.Current, e.Last, rolloverThreshold)
	e.FrameDegrees = d
	e.TotalDegrees += d
	return d
}

// DeltaDegrees returns current-last corrected for a single encoder wrap.
//
// A raw jump larger than threshold is a rollunder (e.g. 10 -> 350 is -20),
// one smaller than -threshold is a rollover (350 -> 10 is +20). At most one
// revolution may pass between samples.
func DeltaDegrees(current, last, threshold float64) float64 {
	d := current - last
	switch {
	case d > threshold:
		return -(degreesPerRevolution - d)
	case d < -threshold:
		return degreesPerRevolution + d
	default:
		return d
	}
}
