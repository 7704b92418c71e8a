package gyrodrive

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type TurnState struct {
	TargetAngle float64
	Yaw         float64
	Speed       float64
}

// TurnController turns the robot in place until the gyro reaches the
// requested angle.  There is no deceleration so the robot overshoots by a
// roughly constant amount (about 7 degrees on the competition robot); callers
// compensate for that themselves.
type TurnController struct {
	logger *zap.SugaredLogger
	clock  Clock
	dev    Devices
	cfg    Config

	// Called once per loop iteration, after the motors have been commanded.
	Trace func(TurnState)
}

func NewTurnController(logger *zap.SugaredLogger, clk Clock, dev Devices, cfg Config) *TurnController {
	return &TurnController{
		logger: logger.Named("turn"),
		clock:  clk,
		dev:    dev,
		cfg:    cfg,
	}
}

// Turn rotates by angle degrees relative to the current heading; positive
// turns right.  The gyro is zeroed first.
func (t *TurnController) Turn(ctx context.Context, angle float64) error {
	if t.cfg.ValidateTurns && math.Abs(angle) > 180 {
		return &InvalidTurnAngleError{Angle: angle}
	}
	m := newManeuver(ctx, t.clock, t.cfg)

	if err := t.dev.Sensor.ResetYaw(); err != nil {
		return errors.Wrap(err, "resetting yaw")
	}

	state := TurnState{TargetAngle: angle, Speed: t.cfg.TurnSpeed}
	left, right := -state.Speed, state.Speed
	done := func(yaw float64) bool { return yaw <= angle }
	if angle > 0 {
		left, right = state.Speed, -state.Speed
		done = func(yaw float64) bool { return yaw >= angle }
	}

	t.logger.Debugf("turning %.1f at speed %v", angle, state.Speed)
	for {
		yaw, err := t.dev.Sensor.Yaw()
		if err != nil {
			return abortWithStop(t.logger, t.dev.Drive, errors.Wrap(err, "reading yaw"))
		}
		state.Yaw = yaw
		if done(yaw) {
			break
		}
		if err := m.check(); err != nil {
			return abortWithStop(t.logger, t.dev.Drive, err)
		}
		if err := t.dev.Drive.StartTank(left, right); err != nil {
			return abortWithStop(t.logger, t.dev.Drive, errors.Wrap(err, "starting tank drive"))
		}
		if t.Trace != nil {
			t.Trace(state)
		}
		m.wait()
	}

	if err := t.dev.Drive.Stop(); err != nil {
		return errors.Wrap(err, "stopping after turn")
	}
	t.logger.Infof("turn %.1f done, yaw at stop %.1f", angle, state.Yaw)
	return nil
}
