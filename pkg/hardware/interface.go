package hardware

import (
	"time"

	"github.com/pkg/errors"
)

// Port is a hub port letter, "A" to "F".
type Port string

func (p Port) Validate() error {
	if len(p) != 1 || p[0] < 'A' || p[0] > 'F' {
		return errors.Errorf("invalid hub port %q", string(p))
	}
	return nil
}

// Interface is a connected hub.
type Interface interface {
	MotionSensor() HeadingSensor
	DriveMotors() MotorPair
	Motor(port Port) Motor
	LightMatrix() LightMatrix
	Speaker() Speaker

	Close() error
}

// HeadingSensor reports yaw in degrees, positive clockwise seen from above.
// Readings accumulate past +/-180 within a run.
type HeadingSensor interface {
	ResetYaw() error
	Yaw() (float64, error)
}

// RotationCounter reports accumulated wheel rotation in degrees.
type RotationCounter interface {
	ResetDegrees() error
	Degrees() (float64, error)
}

// DriveActuator starts the drive motors; commands take effect until the next
// command or Stop.  Speeds are percentages in [-100, 100].
type DriveActuator interface {
	StartTank(left, right float64) error
	// Steering in [-100, 100]: 0 is straight, positive turns right, 100 spins
	// in place.
	StartSteered(steering, speed float64) error
	Stop() error
}

type Unit string

const (
	UnitCM        Unit = "cm"
	UnitInches    Unit = "in"
	UnitDegrees   Unit = "degrees"
	UnitRotations Unit = "rotations"
	UnitSeconds   Unit = "seconds"
)

func (u Unit) Validate() error {
	switch u {
	case UnitCM, UnitInches, UnitDegrees, UnitRotations, UnitSeconds:
		return nil
	}
	return errors.Errorf("invalid unit %q", string(u))
}

// MotorPair is the two drive motors.  The blocking Move calls return once the
// movement is complete.
type MotorPair interface {
	DriveActuator
	MoveTank(amount float64, unit Unit, left, right float64) error
	Move(amount float64, unit Unit, steering, speed float64) error
}

type StopAction string

const (
	StopCoast StopAction = "coast"
	StopBrake StopAction = "brake"
	StopHold  StopAction = "hold"
)

func (a StopAction) Validate() error {
	switch a {
	case StopCoast, StopBrake, StopHold:
		return nil
	}
	return errors.Errorf("invalid stop action %q", string(a))
}

// Motor is a single motor, typically an attachment motor.  Its encoder doubles
// as a RotationCounter.
type Motor interface {
	RotationCounter
	RunForSeconds(seconds, speed float64) error
	RunForDegrees(degrees, speed float64) error
	RunForRotations(rotations, speed float64) error
	SetStopAction(action StopAction) error
	Stop() error
}

type LightMatrix interface {
	ShowImage(name string) error
}

// Beep is one note played by a Speaker.
type Beep struct {
	Note     int
	Duration time.Duration
}

type Speaker interface {
	// Beep plays MIDI note number note (44 to 123) for the given time.
	Beep(note int, seconds float64) error
}
