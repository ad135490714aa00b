package odometry

// SettleFrames is the number of ProcessData calls discarded after
// construction or Reset.
const SettleFrames = 3

// settleGate counts down the initial frames whose readings are not trusted.
type settleGate struct {
	remaining int
}

func newSettleGate() settleGate {
	return settleGate{remaining: SettleFrames}
}

// pass consumes one frame and reports whether the pipeline may run.
func (g *settleGate) pass() bool {
	if g.remaining > 0 {
		g.remaining--
		return false
	}
	return true
}

func (g settleGate) settled() bool {
	return g.remaining == 0
}
