// Package odometry converts per-wheel encoder angle readings from a two-wheel
// differential-drive vehicle into pose, velocity and travelled distance.
//
// A Processor is fed once per frame: both wheel readings, then the frame
// timestamp, then ProcessData. It is not safe for concurrent use.
package odometry

import "fmt"

// WheelID identifies one of the two drive wheels.
type WheelID int

const (
	Left WheelID = iota
	Right

	numWheels
)

// Wheels lists every wheel in index order.
var Wheels = [numWheels]WheelID{Left, Right}

func (w WheelID) String() string {
	switch w {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("wheel(%d)", int(w))
	}
}

// PerWheel holds one value per drive wheel, indexed by WheelID.
type PerWheel[T any] [numWheels]T

// Config describes the drive geometry and encoder conventions.
// It is copied into the Processor at construction and never mutated.
type Config struct {
	// WheelCircumference is the drive wheel circumference in meters.
	WheelCircumference float64 `json:"wheel_circumference_m"`
	// WheelBase is the distance between the wheel contact centres in meters.
	WheelBase float64 `json:"wheel_base_m"`
	// GearRatio is the number of encoder degrees per degree of wheel rotation.
	GearRatio float64 `json:"gear_ratio"`
	// RolloverThreshold is the raw delta, in degrees, above which a jump is
	// treated as an encoder wrap.
	RolloverThreshold float64 `json:"rollover_threshold_deg"`
	// RightForwardIncreases is true when driving forward increases the right
	// encoder reading.
	RightForwardIncreases bool `json:"right_forward_increases"`
	// LeftForwardIncreases is the same for the left encoder.
	LeftForwardIncreases bool `json:"left_forward_increases"`
}

// Reference robot geometry.
const (
	DefaultWheelCircumference = 1.0373
	DefaultWheelBase          = 0.5065
	DefaultGearRatio          = 2.38462
	DefaultRolloverThreshold  = 100.0
)

// DefaultConfig returns the reference robot configuration with both encoders
// increasing on forward motion.
func DefaultConfig() Config {
	return Config{
		WheelCircumference:    DefaultWheelCircumference,
		WheelBase:             DefaultWheelBase,
		GearRatio:             DefaultGearRatio,
		RolloverThreshold:     DefaultRolloverThreshold,
		RightForwardIncreases: true,
		LeftForwardIncreases:  true,
	}
}

// ForwardIncreases reports the direction convention for wheel w.
func (c Config) ForwardIncreases(w WheelID) bool {
	if w == Left {
		return c.LeftForwardIncreases
	}
	return c.RightForwardIncreases
}
