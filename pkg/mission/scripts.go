package mission

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/baserobot"
	"github.com/fllteam24277/basebot/pkg/hardware"
)

func resetHeading(ctx context.Context, r *baserobot.BaseRobot) error {
	return r.ResetHeading()
}

func forward(cm float64) step {
	return step{
		desc: "forward",
		run: func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.AccelGyroDriveForward(ctx, cm)
		},
	}
}

func rightAndDrive(cm, heading float64) step {
	return step{
		desc: "right and drive",
		run: func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.TurnRightAndDriveOnHeading(ctx, cm, heading)
		},
	}
}

func image(name string) step {
	return step{
		desc: "show " + name,
		run: func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.LightMatrix().ShowImage(name)
		},
	}
}

func attachment(desc string, motor func(*baserobot.BaseRobot) hardware.Motor, do func(hardware.Motor) error) step {
	return step{
		desc: desc,
		run: func(ctx context.Context, r *baserobot.BaseRobot) error {
			return do(motor(r))
		},
	}
}

func leftArm(r *baserobot.BaseRobot) hardware.Motor  { return r.LeftAttachment() }
func rightArm(r *baserobot.BaseRobot) hardware.Motor { return r.RightAttachment() }

type TestProgram struct {
	logger *zap.SugaredLogger
}

func NewTestProgram(logger *zap.SugaredLogger) *TestProgram {
	return &TestProgram{logger: logger.Named("testprogram")}
}

func (m *TestProgram) Name() string        { return "testprogram" }
func (m *TestProgram) Description() string { return "Forward 60cm, then right to 90 and 60cm more" }
func (m *TestProgram) StartupNote() int    { return 60 }

func (m *TestProgram) Run(ctx context.Context, r *baserobot.BaseRobot) error {
	return runSteps(ctx, m.logger, r, []step{
		{"reset heading", resetHeading},
		forward(60),
		rightAndDrive(60, 90),
	})
}

type Mission1 struct {
	logger *zap.SugaredLogger

	// FinalHeading is the heading reported at the end of the last run.
	FinalHeading float64
}

func NewMission1(logger *zap.SugaredLogger) *Mission1 {
	return &Mission1{logger: logger.Named("mission1")}
}

func (m *Mission1) Name() string { return "mission1" }
func (m *Mission1) Description() string {
	return "Drive out, work both attachments, square up and return"
}
func (m *Mission1) StartupNote() int { return 72 }

func (m *Mission1) Run(ctx context.Context, r *baserobot.BaseRobot) error {
	err := runSteps(ctx, m.logger, r, []step{
		{"reset heading", resetHeading},
		forward(60),
		rightAndDrive(60, 90),
		rightAndDrive(30, 120),

		image("ARROW_S"),
		attachment("left arm out", leftArm, func(mo hardware.Motor) error { return mo.RunForSeconds(2, 100) }),
		attachment("left arm back", leftArm, func(mo hardware.Motor) error { return mo.RunForSeconds(2, -100) }),
		attachment("left arm coast", leftArm, func(mo hardware.Motor) error { return mo.SetStopAction(hardware.StopCoast) }),
		attachment("left arm stop", leftArm, func(mo hardware.Motor) error { return mo.Stop() }),

		image("ARROW_N"),
		attachment("right arm 200 degrees", rightArm, func(mo hardware.Motor) error { return mo.RunForDegrees(200, 50) }),
		attachment("right arm 2.2 rotations", rightArm, func(mo hardware.Motor) error { return mo.RunForRotations(2.2, 60) }),
		attachment("right arm hold", rightArm, func(mo hardware.Motor) error { return mo.SetStopAction(hardware.StopHold) }),
		attachment("right arm stop", rightArm, func(mo hardware.Motor) error { return mo.Stop() }),

		{"turn right 90", func(ctx context.Context, r *baserobot.BaseRobot) error { return r.GyroTurn(ctx, 90) }},
		{"turn left 45", func(ctx context.Context, r *baserobot.BaseRobot) error { return r.GyroTurn(ctx, -45) }},

		// Back gently into the wall to square up, then take that as heading 0.
		{"square up", func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.DriveMotors().Move(-1, hardware.UnitSeconds, 0, 10)
		}},
		{"reset heading", resetHeading},

		{"move 40cm", func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.DriveMotors().MoveTank(40, hardware.UnitCM, 70, 70)
		}},
		forward(50),
		rightAndDrive(45, 110),
		{"creep 60cm", func(ctx context.Context, r *baserobot.BaseRobot) error {
			return r.DriveMotors().MoveTank(60, hardware.UnitCM, 10, 10)
		}},
		{"settle", func(ctx context.Context, r *baserobot.BaseRobot) error {
			r.Wait(200 * time.Millisecond)
			return nil
		}},
	})
	if err != nil {
		return err
	}
	h, err := r.Heading()
	if err != nil {
		return err
	}
	m.FinalHeading = h
	m.logger.Infof("Robot stopped. Current heading is %.0f", h)
	return nil
}
