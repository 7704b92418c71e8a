package gyrodrive

import (
	"context"

	"github.com/felixge/pidctrl"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/chassis"
)

type Phase int

const (
	Accelerating Phase = iota
	Cruising
	Decelerating
)

func (p Phase) String() string {
	switch p {
	case Accelerating:
		return "accelerating"
	case Cruising:
		return "cruising"
	case Decelerating:
		return "decelerating"
	}
	return "unknown"
}

type DriveState struct {
	Heading       float64
	TargetDegrees float64
	Phase         Phase

	Degrees  float64
	Yaw      float64
	Speed    float64
	Steering float64
}

// HeadingDriveController drives straight along a heading using proportional
// steering correction from the gyro, with an accelerate/cruise/decelerate
// speed profile and one wheel's encoder as the distance measure.
//
// The deceleration ramp always gets DecelBudgetDegrees of wheel rotation, so
// distances under about one wheel circumference (roughly 16cm on 5.6cm
// wheels) skip the cruise phase and overrun.
type HeadingDriveController struct {
	logger   *zap.SugaredLogger
	clock    Clock
	geometry chassis.Geometry
	dev      Devices
	cfg      Config

	// Called after every drive command.
	Trace func(DriveState)
}

func NewHeadingDriveController(
	logger *zap.SugaredLogger,
	clk Clock,
	geometry chassis.Geometry,
	dev Devices,
	cfg Config,
) *HeadingDriveController {
	return &HeadingDriveController{
		logger:   logger.Named("drive"),
		clock:    clk,
		geometry: geometry,
		dev:      dev,
		cfg:      cfg,
	}
}

// DriveOnHeading drives distanceCM while steering towards heading.  The gyro
// is zeroed at the start so heading is relative to the direction the robot
// faces when called.
func (d *HeadingDriveController) DriveOnHeading(ctx context.Context, distanceCM, heading float64) error {
	m := newManeuver(ctx, d.clock, d.cfg)
	state := DriveState{
		Heading:       heading,
		TargetDegrees: d.geometry.DegreesForDistance(distanceCM),
	}

	if err := d.dev.Sensor.ResetYaw(); err != nil {
		return errors.Wrap(err, "resetting yaw")
	}
	if err := d.dev.Counter.ResetDegrees(); err != nil {
		return errors.Wrap(err, "resetting rotation counter")
	}

	// P-only: the output is ProportionFactor * (heading - yaw), so a robot
	// left of the heading (yaw < heading) steers right.
	pid := pidctrl.NewPIDController(d.cfg.ProportionFactor, 0, 0).
		SetOutputLimits(-100, 100).
		Set(heading)

	d.logger.Infof("driving %.1fcm (%.0f degrees) on heading %.1f", distanceCM, state.TargetDegrees, heading)

	state.Phase = Accelerating
	for speed := 0.0; speed < d.cfg.MaxSpeed; speed += d.cfg.SpeedStep {
		if err := d.rampTick(m, pid, &state, speed); err != nil {
			return abortWithStop(d.logger, d.dev.Drive, err)
		}
	}

	state.Phase = Cruising
	slowDownPoint := state.TargetDegrees - d.cfg.DecelBudgetDegrees
	for {
		degrees, err := d.dev.Counter.Degrees()
		if err != nil {
			return abortWithStop(d.logger, d.dev.Drive, errors.Wrap(err, "reading rotation counter"))
		}
		state.Degrees = degrees
		if degrees >= slowDownPoint {
			break
		}
		if err := m.check(); err != nil {
			return abortWithStop(d.logger, d.dev.Drive, err)
		}
		if err := d.steer(pid, &state, d.cfg.MaxSpeed); err != nil {
			return abortWithStop(d.logger, d.dev.Drive, err)
		}
		m.wait()
	}

	state.Phase = Decelerating
	for speed := d.cfg.MaxSpeed; speed > d.cfg.MinSpeed; speed -= d.cfg.SpeedStep {
		if err := d.rampTick(m, pid, &state, speed); err != nil {
			return abortWithStop(d.logger, d.dev.Drive, err)
		}
	}

	if err := d.dev.Drive.Stop(); err != nil {
		return errors.Wrap(err, "stopping after drive")
	}
	if degrees, err := d.dev.Counter.Degrees(); err == nil {
		state.Degrees = degrees
	}
	d.logger.Infof("drive done at %.0f degrees, yaw %.1f", state.Degrees, state.Yaw)
	return nil
}

func (d *HeadingDriveController) rampTick(m *maneuver, pid *pidctrl.PIDController, state *DriveState, speed float64) error {
	if err := m.check(); err != nil {
		return err
	}
	degrees, err := d.dev.Counter.Degrees()
	if err != nil {
		return errors.Wrap(err, "reading rotation counter")
	}
	state.Degrees = degrees
	if err := d.steer(pid, state, speed); err != nil {
		return err
	}
	d.clock.Sleep(d.cfg.RampTick)
	return nil
}

func (d *HeadingDriveController) steer(pid *pidctrl.PIDController, state *DriveState, speed float64) error {
	yaw, err := d.dev.Sensor.Yaw()
	if err != nil {
		return errors.Wrap(err, "reading yaw")
	}
	// I and D gains are zero; the duration only has to be non-zero.
	steering := pid.UpdateDuration(yaw, d.cfg.RampTick)

	state.Yaw = yaw
	state.Speed = speed
	state.Steering = steering
	if err := d.dev.Drive.StartSteered(steering, speed); err != nil {
		return errors.Wrap(err, "starting steered drive")
	}
	d.logger.Debugf("%v speed %.0f yaw %.1f steering %.1f degrees %.0f/%.0f",
		state.Phase, speed, yaw, steering, state.Degrees, state.TargetDegrees)
	if d.Trace != nil {
		d.Trace(*state)
	}
	return nil
}
