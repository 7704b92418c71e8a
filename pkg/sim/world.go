// Package sim is a hardware-free hub: a two-wheel kinematic model driven by
// the same calls as the real robot, with its own simulated clock and a log of
// every command issued.
package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/chassis"
	"github.com/fllteam24277/basebot/pkg/hardware"
)

type Options struct {
	Geometry chassis.Geometry

	LeftDrivePort  hardware.Port
	RightDrivePort hardware.Port

	// Wheel speed at 100% power.
	MotorDegreesPerSecond float64

	// Simulated time each motor command takes to reach the hub.
	CommandLatency time.Duration

	// Wheels don't turn, whatever they are told.
	Stalled bool

	// Directory for PNGs of light matrix images; empty disables.
	RenderDir string

	// Host audio for speaker beeps; nil just logs them.
	Audio chan<- hardware.Beep
}

func DefaultOptions() Options {
	return Options{
		Geometry:              chassis.Default(),
		LeftDrivePort:         "E",
		RightDrivePort:        "A",
		MotorDegreesPerSecond: 900,
		CommandLatency:        10 * time.Millisecond,
	}
}

type EventKind string

const (
	EventTank         EventKind = "tank"
	EventSteered      EventKind = "steered"
	EventStop         EventKind = "stop"
	EventWait         EventKind = "wait"
	EventResetYaw     EventKind = "reset-yaw"
	EventResetCounter EventKind = "reset-counter"
	EventMove         EventKind = "move"
	EventMotorRun     EventKind = "motor-run"
	EventStopAction   EventKind = "stop-action"
	EventImage        EventKind = "image"
	EventBeep         EventKind = "beep"
)

// Event is one command received by the simulated hub.  Yaw is the sensor
// reading at the moment the command arrived.
type Event struct {
	At   time.Duration
	Kind EventKind
	Port hardware.Port

	Left, Right     float64
	Steering, Speed float64
	Amount          float64
	Unit            hardware.Unit
	Duration        time.Duration
	Text            string

	Yaw float64
}

func (e Event) String() string {
	switch e.Kind {
	case EventTank:
		return fmt.Sprintf("%v tank %.0f/%.0f yaw %.1f", e.At, e.Left, e.Right, e.Yaw)
	case EventSteered:
		return fmt.Sprintf("%v steered %.1f@%.0f yaw %.1f", e.At, e.Steering, e.Speed, e.Yaw)
	case EventWait:
		return fmt.Sprintf("%v wait %v", e.At, e.Duration)
	}
	return fmt.Sprintf("%v %s %s %v %s", e.At, e.Kind, e.Port, e.Amount, e.Text)
}

type World struct {
	logger *zap.SugaredLogger
	opts   Options

	lock sync.Mutex

	elapsed time.Duration

	// Robot heading, clockwise positive, never wrapped.
	heading float64
	yawZero float64

	leftSpeed, rightSpeed float64

	// Accumulated encoder degrees, per port.
	encoders     map[hardware.Port]float64
	encoderZeros map[hardware.Port]float64
	stopActions  map[hardware.Port]hardware.StopAction
	image        string
	imagesShown  int
	events       []Event
}

func NewWorld(logger *zap.SugaredLogger, opts Options) *World {
	return &World{
		logger:       logger.Named("sim"),
		opts:         opts,
		encoders:     map[hardware.Port]float64{},
		encoderZeros: map[hardware.Port]float64{},
		stopActions:  map[hardware.Port]hardware.StopAction{},
	}
}

// Now reports simulated time, starting at the zero time.Time plus one day so
// that it is never IsZero.
func (w *World) Now() time.Time {
	w.lock.Lock()
	defer w.lock.Unlock()
	return epoch.Add(w.elapsed)
}

var epoch = time.Time{}.Add(24 * time.Hour)

// Sleep advances the simulation; it returns immediately in real time.
func (w *World) Sleep(d time.Duration) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.record(Event{Kind: EventWait, Duration: d})
	w.advance(d)
}

// Heading is the true robot heading since the start of the simulation.
func (w *World) Heading() float64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.heading
}

// SetHeading puts the robot at a heading without moving the sensor zero, as
// if it had been picked up and turned.
func (w *World) SetHeading(h float64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.heading = h
}

// Events returns a copy of the command log.
func (w *World) Events() []Event {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]Event(nil), w.events...)
}

func (w *World) ClearEvents() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.events = nil
}

func (w *World) Image() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.image
}

func (w *World) MotorDegrees(port hardware.Port) float64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.encoders[port]
}

// DistanceCM is how far the left wheel has rolled since the start.
func (w *World) DistanceCM() float64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.opts.Geometry.DistanceForDegrees(w.encoders[w.opts.LeftDrivePort])
}

func (w *World) record(e Event) {
	e.At = w.elapsed
	e.Yaw = w.heading - w.yawZero
	w.events = append(w.events, e)
}

// advance integrates the drive wheels over d.  Caller holds the lock.
func (w *World) advance(d time.Duration) {
	w.elapsed += d
	if w.opts.Stalled {
		return
	}
	secs := d.Seconds()
	dl := w.leftSpeed / 100 * w.opts.MotorDegreesPerSecond * secs
	dr := w.rightSpeed / 100 * w.opts.MotorDegreesPerSecond * secs
	w.encoders[w.opts.LeftDrivePort] += dl
	w.encoders[w.opts.RightDrivePort] += dr

	g := w.opts.Geometry
	dTheta := (g.DistanceForDegrees(dl) - g.DistanceForDegrees(dr)) / g.TrackWidthCM()
	w.heading += dTheta * 180 / math.Pi
}

// command records e, applies the new wheel speeds and lets CommandLatency
// pass.  Caller holds the lock.
func (w *World) command(e Event, left, right float64) {
	w.record(e)
	w.leftSpeed, w.rightSpeed = clampSpeed(left), clampSpeed(right)
	w.advance(w.opts.CommandLatency)
}

func clampSpeed(s float64) float64 {
	return math.Max(-100, math.Min(100, s))
}

// SteeredSpeeds converts a steering/speed command into wheel speeds the way
// the hub's motor pair does: the inside wheel slows linearly, stopping at
// steering 50 and reversing fully at 100.
func SteeredSpeeds(steering, speed float64) (left, right float64) {
	steering = math.Max(-100, math.Min(100, steering))
	if steering >= 0 {
		return speed, speed * (1 - steering/50)
	}
	return speed * (1 + steering/50), speed
}
