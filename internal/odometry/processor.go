package odometry

// Processor owns the full odometry state for one vehicle.
type Processor struct {
	cfg Config

	encoders PerWheel[EncoderState]
	clock    ClockState
	gate     settleGate

	pose     Pose
	distance Distance
	velocity Velocity
}

// Option adjusts a Config before the Processor is built.
type Option func(*Config)

// WithRightForwardIncreases sets the right encoder direction convention.
func WithRightForwardIncreases(v bool) Option {
	return func(c *Config) { c.RightForwardIncreases = v }
}

// WithLeftForwardIncreases sets the left encoder direction convention.
func WithLeftForwardIncreases(v bool) Option {
	return func(c *Config) { c.LeftForwardIncreases = v }
}

// New builds a Processor from the wheel geometry. Both encoders default to
// increasing on forward motion unless overridden by opts.
func New(wheelCircumference, wheelBase, gearRatio, rolloverThreshold float64, opts ...Option) *Processor {
	cfg := Config{
		WheelCircumference:    wheelCircumference,
		WheelBase:             wheelBase,
		GearRatio:             gearRatio,
		RolloverThreshold:     rolloverThreshold,
		RightForwardIncreases: true,
		LeftForwardIncreases:  true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewProcessor(cfg)
}

// NewProcessor builds a Processor from a complete Config.
func NewProcessor(cfg Config) *Processor {
	return &Processor{
		cfg:  cfg,
		gate: newSettleGate(),
	}
}

// Config returns the configuration the processor was built with.
func (p *Processor) Config() Config {
	return p.cfg
}

// RecordReading stores a new angle reading for wheel. It must be called for
// both wheels once per frame before ProcessData.
func (p *Processor) RecordReading(wheel WheelID, angleDeg float64) {
	p.encoders[wheel].record(angleDeg)
}

// UpdateTimestamp records the frame timestamp in wrapping milliseconds.
func (p *Processor) UpdateTimestamp(ts uint16) {
	p.clock.update(ts)
}

// ProcessData runs one frame of the pipeline. The first SettleFrames calls
// after construction or Reset only consume the gate.
func (p *Processor) ProcessData() {
	if !p.gate.pass() {
		return
	}

	var meters PerWheel[float64]
	for _, w := range Wheels {
		e := &p.encoders[w]
		e.advance(p.cfg.RolloverThreshold)
		meters[w] = e.convert(p.cfg.ForwardIncreases(w), p.cfg.GearRatio, p.cfg.WheelCircumference)
	}

	motion := Kinematics(meters[Left], meters[Right], p.cfg.WheelBase)

	p.pose = IntegratePose(p.pose, motion.DeltaTheta, motion.Distance)
	p.distance.FrameDistance = motion.Distance
	p.distance.TotalDistance += motion.Distance

	p.velocity = EstimateVelocity(motion.Distance, motion.DeltaTheta, p.clock.Delta)
}

// Reset restores every field, including the settle gate, to its initial value.
func (p *Processor) Reset() {
	p.encoders = PerWheel[EncoderState]{}
	p.clock = ClockState{}
	p.gate = newSettleGate()
	p.velocity = Velocity{}
	p.ResetDistance()
	p.ResetPosition()
}

// ResetDistance zeroes the frame and total distance.
func (p *Processor) ResetDistance() {
	p.distance = Distance{}
}

// ResetPosition returns the pose to the origin.
func (p *Processor) ResetPosition() {
	p.pose = Pose{}
}

// ResetTotalDegreesTraveled zeroes the accumulated angle of both wheels.
func (p *Processor) ResetTotalDegreesTraveled() {
	for _, w := range Wheels {
		p.encoders[w].TotalDegrees = 0
	}
}

// ResetTotalMetersTraveled zeroes the accumulated linear travel of both wheels.
func (p *Processor) ResetTotalMetersTraveled() {
	for _, w := range Wheels {
		p.encoders[w].TotalMeters = 0
	}
}

func (p *Processor) Position() Pose     { return p.pose }
func (p *Processor) Velocity() Velocity { return p.velocity }
func (p *Processor) Distance() Distance { return p.distance }

// DeltaTime is the elapsed milliseconds between the last two timestamps.
func (p *Processor) DeltaTime() int32 { return p.clock.Delta }

// Settled reports whether the settle gate has opened. It does not consume a
// frame.
func (p *Processor) Settled() bool { return p.gate.settled() }

func (p *Processor) CurrentReading(w WheelID) float64 { return p.encoders[w].Current }
func (p *Processor) LastReading(w WheelID) float64    { return p.encoders[w].Last }

func (p *Processor) TotalDegreesTraveled(w WheelID) float64 {
	return p.encoders[w].TotalDegrees
}

func (p *Processor) TotalMetersTraveled(w WheelID) float64 {
	return p.encoders[w].TotalMeters
}

func (p *Processor) DegreesTraveledInFrame(w WheelID) float64 {
	return p.encoders[w].FrameDegrees
}

func (p *Processor) MetersTraveledInFrame(w WheelID) float64 {
	return p.encoders[w].FrameMeters
}

// Snapshot is a copy of the externally visible processor state.
type Snapshot struct {
	Pose     Pose                   `json:"pose"`
	Velocity Velocity               `json:"velocity"`
	Distance Distance               `json:"distance"`
	Clock    ClockState             `json:"clock"`
	Settled  bool                   `json:"settled"`
	Encoders PerWheel[EncoderState] `json:"encoders"`
}

// Snapshot returns a copy of the current state.
func (p *Processor) Snapshot() Snapshot {
	return Snapshot{
		Pose:     p.pose,
		Velocity: p.velocity,
		Distance: p.distance,
		Clock:    p.clock,
		Settled:  p.gate.settled(),
		Encoders: p.encoders,
	}
}

// Wheel returns the encoder state for w.
func (s Snapshot) Wheel(w WheelID) EncoderState {
	return s.Encoders[w]
}
