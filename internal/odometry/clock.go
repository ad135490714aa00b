package odometry

// ClockState tracks the wrapping 16-bit millisecond counter supplied with
// each frame.
type ClockState struct {
	Last  uint16 `json:"last"`
	Delta int32  `json:"delta_ms"`
}

// update stores ts and returns the elapsed milliseconds since the previous
// stamp. Subtraction wraps modulo 2^16, so a counter rollover still yields a
// small positive delta.
func (c *ClockState) update(ts uint16) int32 {
	c.Delta = int32(ts - c.Last)
	c.Last = ts
	return c.Delta
}
