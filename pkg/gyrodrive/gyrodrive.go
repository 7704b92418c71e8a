// Package gyrodrive holds the two closed-loop maneuvers of the base robot: an
// in-place gyro turn and a gyro-corrected straight drive with a speed ramp.
package gyrodrive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/hardware"
)

// Clock is the subset of clock.Clock used for ramp ticks and deadlines.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type Config struct {
	// Speed magnitude for in-place turns.
	TurnSpeed float64 `yaml:"turn_speed"`

	MaxSpeed         float64       `yaml:"max_speed"`
	MinSpeed         float64       `yaml:"min_speed"`
	SpeedStep        float64       `yaml:"speed_step"`
	ProportionFactor float64       `yaml:"proportion_factor"`
	RampTick         time.Duration `yaml:"ramp_tick"`

	// Wheel rotation reserved for the deceleration ramp, independent of the
	// requested distance.
	DecelBudgetDegrees float64 `yaml:"decel_budget_degrees"`

	// Sleep between iterations of the cruise and turn loops; zero busy-polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Zero means no limit.
	ManeuverTimeout time.Duration `yaml:"maneuver_timeout"`

	// Reject turns of more than 180 degrees.
	ValidateTurns bool `yaml:"validate_turns"`
}

func DefaultConfig() Config {
	return Config{
		TurnSpeed:          5,
		MaxSpeed:           50,
		MinSpeed:           10,
		SpeedStep:          5,
		ProportionFactor:   1,
		RampTick:           100 * time.Millisecond,
		DecelBudgetDegrees: 360,
	}
}

func (c Config) Validate() error {
	if c.TurnSpeed <= 0 {
		return errors.Errorf("turn speed must be positive, got %v", c.TurnSpeed)
	}
	if c.SpeedStep <= 0 {
		return errors.Errorf("speed step must be positive, got %v", c.SpeedStep)
	}
	if c.MinSpeed < 0 || c.MinSpeed >= c.MaxSpeed {
		return errors.Errorf("need 0 <= min speed < max speed, got %v and %v", c.MinSpeed, c.MaxSpeed)
	}
	if c.MaxSpeed > 100 {
		return errors.Errorf("max speed %v is above 100", c.MaxSpeed)
	}
	if c.ProportionFactor <= 0 {
		return errors.Errorf("proportion factor must be positive, got %v", c.ProportionFactor)
	}
	if c.RampTick <= 0 {
		return errors.Errorf("ramp tick must be positive, got %v", c.RampTick)
	}
	if c.PollInterval < 0 || c.ManeuverTimeout < 0 {
		return errors.New("poll interval and maneuver timeout must not be negative")
	}
	return nil
}

// Devices are the hardware handles a maneuver reads and commands.
type Devices struct {
	Sensor  hardware.HeadingSensor
	Counter hardware.RotationCounter
	Drive   hardware.DriveActuator
}

// maneuver tracks cancellation and the optional deadline of one call.
type maneuver struct {
	ctx      context.Context
	clock    Clock
	poll     time.Duration
	deadline time.Time
}

func newManeuver(ctx context.Context, clk Clock, cfg Config) *maneuver {
	m := &maneuver{
		ctx:   ctx,
		clock: clk,
		poll:  cfg.PollInterval,
	}
	if cfg.ManeuverTimeout > 0 {
		m.deadline = clk.Now().Add(cfg.ManeuverTimeout)
	}
	return m
}

func (m *maneuver) check() error {
	if err := m.ctx.Err(); err != nil {
		return err
	}
	if !m.deadline.IsZero() && !m.clock.Now().Before(m.deadline) {
		return ErrManeuverTimeout
	}
	return nil
}

func (m *maneuver) wait() {
	if m.poll > 0 {
		m.clock.Sleep(m.poll)
	}
}

// abortWithStop makes a best-effort attempt to stop the motors before
// returning err.
func abortWithStop(logger *zap.SugaredLogger, drive hardware.DriveActuator, err error) error {
	if stopErr := drive.Stop(); stopErr != nil {
		logger.Warnf("failed to stop motors after %v: %v", err, stopErr)
	}
	return err
}
