package gyrodrive

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrManeuverTimeout = errors.New("maneuver timed out")

// InvalidHeadingDirectionError is returned in validation mode when a
// turn-and-drive is asked to reach a heading on the wrong side of the current
// one.
type InvalidHeadingDirectionError struct {
	Method         string
	TargetHeading  float64
	CurrentHeading float64
	Suggestion     string
}

func (e *InvalidHeadingDirectionError) Error() string {
	return fmt.Sprintf("%s Error: Invalid Heading %.1f from current heading %.1f, try using %s Method",
		e.Method, e.TargetHeading, e.CurrentHeading, e.Suggestion)
}

// InvalidTurnAngleError is returned in validation mode for turns of more than
// half a revolution.
type InvalidTurnAngleError struct {
	Angle float64
}

func (e *InvalidTurnAngleError) Error() string {
	return fmt.Sprintf("turn of %.1f degrees is more than 180 degrees either way", e.Angle)
}
