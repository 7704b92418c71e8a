package baserobot

import (
	"sync"

	"github.com/fllteam24277/basebot/pkg/hardware"
)

// headingFrame sits between the controllers and the heading sensor.  Every
// maneuver zeroes the sensor; the frame folds the reading from before each
// reset into an offset so the absolute heading survives.
type headingFrame struct {
	sensor hardware.HeadingSensor

	lock   sync.Mutex
	offset float64
}

var _ hardware.HeadingSensor = (*headingFrame)(nil)

func (f *headingFrame) ResetYaw() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	yaw, err := f.sensor.Yaw()
	if err != nil {
		return err
	}
	if err := f.sensor.ResetYaw(); err != nil {
		return err
	}
	f.offset += yaw
	return nil
}

func (f *headingFrame) Yaw() (float64, error) {
	return f.sensor.Yaw()
}

func (f *headingFrame) Heading() (float64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	yaw, err := f.sensor.Yaw()
	return f.offset + yaw, err
}

// Reset makes the current direction heading 0.
func (f *headingFrame) Reset() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.sensor.ResetYaw(); err != nil {
		return err
	}
	f.offset = 0
	return nil
}
