package sim

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/lightmatrix"
)

var _ hardware.Interface = (*World)(nil)

func (w *World) MotionSensor() hardware.HeadingSensor { return motionSensor{w} }
func (w *World) DriveMotors() hardware.MotorPair      { return motorPair{w} }
func (w *World) Motor(port hardware.Port) hardware.Motor {
	return motor{w: w, port: port}
}
func (w *World) LightMatrix() hardware.LightMatrix { return lightMatrix{w} }
func (w *World) Speaker() hardware.Speaker         { return speaker{w} }

func (w *World) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.leftSpeed, w.rightSpeed = 0, 0
	return nil
}

type motionSensor struct{ w *World }

func (m motionSensor) ResetYaw() error {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.w.record(Event{Kind: EventResetYaw})
	m.w.yawZero = m.w.heading
	return nil
}

func (m motionSensor) Yaw() (float64, error) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.w.heading - m.w.yawZero, nil
}

type motorPair struct{ w *World }

func (p motorPair) StartTank(left, right float64) error {
	p.w.lock.Lock()
	defer p.w.lock.Unlock()
	p.w.command(Event{Kind: EventTank, Left: left, Right: right}, left, right)
	return nil
}

func (p motorPair) StartSteered(steering, speed float64) error {
	p.w.lock.Lock()
	defer p.w.lock.Unlock()
	left, right := SteeredSpeeds(steering, speed)
	p.w.command(Event{Kind: EventSteered, Steering: steering, Speed: speed, Left: left, Right: right}, left, right)
	return nil
}

func (p motorPair) Stop() error {
	p.w.lock.Lock()
	defer p.w.lock.Unlock()
	p.w.command(Event{Kind: EventStop}, 0, 0)
	return nil
}

func (p motorPair) MoveTank(amount float64, unit hardware.Unit, left, right float64) error {
	p.w.lock.Lock()
	defer p.w.lock.Unlock()
	return p.w.moveFor(Event{Kind: EventMove, Amount: amount, Unit: unit, Left: left, Right: right}, left, right)
}

func (p motorPair) Move(amount float64, unit hardware.Unit, steering, speed float64) error {
	p.w.lock.Lock()
	defer p.w.lock.Unlock()
	left, right := SteeredSpeeds(steering, speed)
	e := Event{Kind: EventMove, Amount: amount, Unit: unit, Steering: steering, Speed: speed, Left: left, Right: right}
	return p.w.moveFor(e, left, right)
}

// moveFor runs both drive wheels until the faster one has covered amount,
// then stops.  A negative amount reverses.  Caller holds the lock.
func (w *World) moveFor(e Event, left, right float64) error {
	if err := e.Unit.Validate(); err != nil {
		return err
	}
	if e.Amount < 0 {
		left, right = -left, -right
	}
	fastest := math.Max(math.Abs(clampSpeed(left)), math.Abs(clampSpeed(right)))
	d, err := w.durationFor(math.Abs(e.Amount), e.Unit, fastest)
	if err != nil {
		return err
	}
	e.Duration = d
	w.command(e, left, right)
	w.advance(d)
	w.leftSpeed, w.rightSpeed = 0, 0
	return nil
}

// durationFor works out how long a motor at speed takes to cover amount.
func (w *World) durationFor(amount float64, unit hardware.Unit, speed float64) (time.Duration, error) {
	var degrees float64
	switch unit {
	case hardware.UnitSeconds:
		return time.Duration(amount * float64(time.Second)), nil
	case hardware.UnitCM:
		degrees = w.opts.Geometry.DegreesForDistance(amount)
	case hardware.UnitInches:
		degrees = w.opts.Geometry.DegreesForDistance(amount * 2.54)
	case hardware.UnitDegrees:
		degrees = amount
	case hardware.UnitRotations:
		degrees = amount * 360
	default:
		return 0, errors.Errorf("invalid unit %q", string(unit))
	}
	if speed == 0 {
		return 0, errors.Errorf("cannot move %v %s at speed 0", amount, unit)
	}
	secs := degrees / (speed / 100 * w.opts.MotorDegreesPerSecond)
	return time.Duration(secs * float64(time.Second)), nil
}

type motor struct {
	w    *World
	port hardware.Port
}

func (m motor) ResetDegrees() error {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.w.record(Event{Kind: EventResetCounter, Port: m.port})
	m.w.encoderZeros[m.port] = m.w.encoders[m.port]
	return nil
}

func (m motor) Degrees() (float64, error) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.w.encoders[m.port] - m.w.encoderZeros[m.port], nil
}

func (m motor) RunForSeconds(seconds, speed float64) error {
	return m.run(seconds, hardware.UnitSeconds, speed)
}

func (m motor) RunForDegrees(degrees, speed float64) error {
	return m.run(degrees, hardware.UnitDegrees, speed)
}

func (m motor) RunForRotations(rotations, speed float64) error {
	return m.run(rotations, hardware.UnitRotations, speed)
}

func (m motor) run(amount float64, unit hardware.Unit, speed float64) error {
	if err := m.port.Validate(); err != nil {
		return err
	}
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	speed = clampSpeed(speed)
	if amount < 0 {
		amount, speed = -amount, -speed
	}
	d, err := m.w.durationFor(amount, unit, math.Abs(speed))
	if err != nil {
		return err
	}
	m.w.record(Event{Kind: EventMotorRun, Port: m.port, Amount: amount, Unit: unit, Speed: speed, Duration: d})
	m.w.advance(d)
	if !m.w.opts.Stalled {
		m.w.encoders[m.port] += speed / 100 * m.w.opts.MotorDegreesPerSecond * d.Seconds()
	}
	return nil
}

func (m motor) SetStopAction(action hardware.StopAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.w.record(Event{Kind: EventStopAction, Port: m.port, Text: string(action)})
	m.w.stopActions[m.port] = action
	return nil
}

func (m motor) Stop() error {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.w.record(Event{Kind: EventStop, Port: m.port})
	return nil
}

type lightMatrix struct{ w *World }

func (l lightMatrix) ShowImage(name string) error {
	frame, err := lightmatrix.Lookup(name)
	if err != nil {
		return err
	}
	l.w.lock.Lock()
	l.w.record(Event{Kind: EventImage, Text: name})
	l.w.image = name
	l.w.imagesShown++
	n := l.w.imagesShown
	dir := l.w.opts.RenderDir
	l.w.lock.Unlock()

	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, fmt.Sprintf("lightmatrix-%03d-%s.png", n, name))
	l.w.logger.Debugf("rendering %s to %s", name, path)
	return lightmatrix.SavePNG(frame, 20, path)
}

type speaker struct{ w *World }

func (s speaker) Beep(note int, seconds float64) error {
	if note < 44 || note > 123 {
		return errors.Errorf("note %d out of range 44-123", note)
	}
	d := time.Duration(seconds * float64(time.Second))
	s.w.lock.Lock()
	s.w.record(Event{Kind: EventBeep, Amount: float64(note), Duration: d})
	s.w.advance(d)
	audio := s.w.opts.Audio
	s.w.lock.Unlock()

	if audio == nil {
		s.w.logger.Infof("beep note %d for %v", note, d)
		return nil
	}
	audio <- hardware.Beep{Note: note, Duration: d}
	return nil
}
