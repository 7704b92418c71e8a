// Package mission holds the competition scripts.
package mission

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/baserobot"
)

type Mission interface {
	Name() string
	Description() string
	// StartupNote is the MIDI note beeped when the mission starts, so the
	// drive team can tell which slot is running.
	StartupNote() int
	Run(ctx context.Context, r *baserobot.BaseRobot) error
}

var ErrUnknownMission = errors.New("unknown mission")

func All(logger *zap.SugaredLogger) []Mission {
	ms := []Mission{
		NewMission1(logger),
		NewTestProgram(logger),
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name() < ms[j].Name() })
	return ms
}

func Lookup(logger *zap.SugaredLogger, name string) (Mission, error) {
	for _, m := range All(logger) {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, errors.Wrap(ErrUnknownMission, name)
}

// Start beeps the mission's note and then runs it.
func Start(ctx context.Context, r *baserobot.BaseRobot, m Mission) error {
	if err := r.Speaker().Beep(m.StartupNote(), 0.2); err != nil {
		return errors.Wrap(err, "startup beep")
	}
	return m.Run(ctx, r)
}

// step is one line of a mission script.
type step struct {
	desc string
	run  func(ctx context.Context, r *baserobot.BaseRobot) error
}

func runSteps(ctx context.Context, logger *zap.SugaredLogger, r *baserobot.BaseRobot, steps []step) error {
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Infof("step %d: %s", i+1, s.desc)
		if err := s.run(ctx, r); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, s.desc)
		}
	}
	return nil
}
