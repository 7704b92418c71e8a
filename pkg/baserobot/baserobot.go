// Package baserobot is the convenience layer that mission scripts drive:
// gyro turns and heading-hold drives over a hub, plus access to the
// attachment motors, light matrix and speaker.
package baserobot

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/chassis"
	"github.com/fllteam24277/basebot/pkg/config"
	"github.com/fllteam24277/basebot/pkg/gyrodrive"
	"github.com/fllteam24277/basebot/pkg/hardware"
)

const Version = "1.2 8/4/2022"

type Options struct {
	Ports    config.Ports
	Geometry chassis.Geometry
	Drive    gyrodrive.Config

	// Validation mode.
	Debug bool

	TurnCompensation config.TurnCompensation

	// Replaces the hub's motion sensor, e.g. with an external gyro.
	HeadingSensor hardware.HeadingSensor
}

// OptionsFromConfig picks the robot settings out of a resolved config.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	g, err := cfg.ChassisGeometry()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Ports:            cfg.Ports,
		Geometry:         g,
		Drive:            cfg.Drive,
		Debug:            cfg.Debug,
		TurnCompensation: cfg.TurnCompensation,
	}, nil
}

type BaseRobot struct {
	logger *zap.SugaredLogger
	hub    hardware.Interface
	clock  gyrodrive.Clock
	opts   Options

	heading *headingFrame
	turner  *gyrodrive.TurnController
	driver  *gyrodrive.HeadingDriveController
}

func New(logger *zap.SugaredLogger, hub hardware.Interface, clk gyrodrive.Clock, opts Options) (*BaseRobot, error) {
	if err := opts.Drive.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Ports.LeftDrive.Validate(); err != nil {
		return nil, errors.Wrap(err, "left drive port")
	}
	sensor := opts.HeadingSensor
	if sensor == nil {
		sensor = hub.MotionSensor()
	}
	if opts.Debug {
		opts.Drive.ValidateTurns = true
	}

	logger = logger.Named("robot")
	frame := &headingFrame{sensor: sensor}
	dev := gyrodrive.Devices{
		Sensor:  frame,
		Counter: hub.Motor(opts.Ports.LeftDrive),
		Drive:   hub.DriveMotors(),
	}
	r := &BaseRobot{
		logger:  logger,
		hub:     hub,
		clock:   clk,
		opts:    opts,
		heading: frame,
		turner:  gyrodrive.NewTurnController(logger, clk, dev, opts.Drive),
		driver:  gyrodrive.NewHeadingDriveController(logger, clk, opts.Geometry, dev, opts.Drive),
	}
	logger.Infof("base robot %s, wheel %.1fcm, debug %v", Version, opts.Geometry.WheelDiameterCM(), opts.Debug)
	return r, nil
}

func (r *BaseRobot) Version() string {
	return Version
}

func (r *BaseRobot) Hub() hardware.Interface         { return r.hub }
func (r *BaseRobot) DriveMotors() hardware.MotorPair { return r.hub.DriveMotors() }
func (r *BaseRobot) LeftAttachment() hardware.Motor  { return r.hub.Motor(r.opts.Ports.LeftAttachment) }
func (r *BaseRobot) RightAttachment() hardware.Motor {
	return r.hub.Motor(r.opts.Ports.RightAttachment)
}
func (r *BaseRobot) LightMatrix() hardware.LightMatrix { return r.hub.LightMatrix() }
func (r *BaseRobot) Speaker() hardware.Speaker         { return r.hub.Speaker() }

// TurnController and DriveController expose the controllers, mainly so that
// callers can attach a Trace.
func (r *BaseRobot) TurnController() *gyrodrive.TurnController          { return r.turner }
func (r *BaseRobot) DriveController() *gyrodrive.HeadingDriveController { return r.driver }

func (r *BaseRobot) Wait(d time.Duration) {
	r.clock.Sleep(d)
}

// Heading is the robot's heading relative to the last ResetHeading.
func (r *BaseRobot) Heading() (float64, error) {
	return r.heading.Heading()
}

func (r *BaseRobot) ResetHeading() error {
	return r.heading.Reset()
}

// GyroTurn turns on the spot by angle degrees, clockwise positive.
func (r *BaseRobot) GyroTurn(ctx context.Context, angle float64) error {
	return r.turner.Turn(ctx, angle)
}

// GyroDriveOnHeading drives distanceCM holding heading, relative to the
// direction faced when called.
func (r *BaseRobot) GyroDriveOnHeading(ctx context.Context, distanceCM, heading float64) error {
	return r.driver.DriveOnHeading(ctx, distanceCM, heading)
}

// AccelGyroDriveForward drives distanceCM on whatever heading the robot is
// facing.
func (r *BaseRobot) AccelGyroDriveForward(ctx context.Context, distanceCM float64) error {
	return r.driver.DriveOnHeading(ctx, distanceCM, 0)
}

// TurnRightAndDriveOnHeading turns clockwise to the absolute heading target
// and then drives distanceCM holding it.
func (r *BaseRobot) TurnRightAndDriveOnHeading(ctx context.Context, distanceCM, target float64) error {
	current, err := r.Heading()
	if err != nil {
		return err
	}
	if r.opts.Debug && target < current {
		return &gyrodrive.InvalidHeadingDirectionError{
			Method:         "TurnRightAndDriveOnHeading",
			TargetHeading:  target,
			CurrentHeading: current,
			Suggestion:     "TurnLeftAndDriveOnHeading",
		}
	}
	return r.turnAndDrive(ctx, distanceCM, target, target-current)
}

// TurnLeftAndDriveOnHeading turns anticlockwise to the absolute heading
// target and then drives distanceCM holding it.
func (r *BaseRobot) TurnLeftAndDriveOnHeading(ctx context.Context, distanceCM, target float64) error {
	current, err := r.Heading()
	if err != nil {
		return err
	}
	if r.opts.Debug && target > current {
		return &gyrodrive.InvalidHeadingDirectionError{
			Method:         "TurnLeftAndDriveOnHeading",
			TargetHeading:  target,
			CurrentHeading: current,
			Suggestion:     "TurnRightAndDriveOnHeading",
		}
	}
	return r.turnAndDrive(ctx, distanceCM, target, target-current)
}

func (r *BaseRobot) turnAndDrive(ctx context.Context, distanceCM, target, turn float64) error {
	turn = r.compensate(turn)
	r.logger.Infof("turning %.1f to heading %.1f", turn, target)
	if err := r.turner.Turn(ctx, turn); err != nil {
		return err
	}
	// The drive resets the sensor, so steer for whatever the turn missed by.
	after, err := r.Heading()
	if err != nil {
		return err
	}
	return r.driver.DriveOnHeading(ctx, distanceCM, target-after)
}

// compensate shortens a turn by the configured overshoot, never reversing
// its direction.
func (r *BaseRobot) compensate(angle float64) float64 {
	switch {
	case angle > 0:
		return math.Max(0, angle-r.opts.TurnCompensation.Right)
	case angle < 0:
		return math.Min(0, angle+r.opts.TurnCompensation.Left)
	}
	return 0
}
