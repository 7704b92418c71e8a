// Package spike drives a LEGO SPIKE Prime hub through its MicroPython REPL
// on a serial port.
package spike

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/angle"
	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/lightmatrix"
)

const DefaultBaudRate = 115200

var (
	ErrReplyTimeout = errors.New("timed out waiting for hub reply")
	ErrClosed       = errors.New("hub connection closed")
)

type Config struct {
	Device       string        `yaml:"device"`
	BaudRate     int           `yaml:"baud_rate"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	LeftDrivePort  hardware.Port `yaml:"-"`
	RightDrivePort hardware.Port `yaml:"-"`

	// The left drive motor is mounted mirrored and counts backwards when
	// the robot drives forwards.
	InvertCounter bool `yaml:"invert_counter"`
}

func DefaultConfig() Config {
	return Config{
		Device:         "/dev/ttyACM0",
		BaudRate:       DefaultBaudRate,
		ReplyTimeout:   2 * time.Second,
		LeftDrivePort:  "E",
		RightDrivePort: "A",
	}
}

// HubError is a Python exception raised by a statement on the hub.
type HubError struct {
	Statement string
	Type      string
	Message   string
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub raised %s: %s (in %q)", e.Type, e.Message, e.Statement)
}

type Hub struct {
	logger *zap.SugaredLogger
	cfg    Config
	rw     io.ReadWriteCloser

	// lock serialises requests; seq and yaw are only touched while holding it.
	lock sync.Mutex
	seq  int
	yaw  angle.Unwrapper

	lines   chan string
	readErr error
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ hardware.Interface = (*Hub)(nil)

// Open connects to the hub on cfg.Device.
func Open(logger *zap.SugaredLogger, cfg Config) (*Hub, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", cfg.Device)
	}
	return NewHub(logger, port, cfg)
}

// NewHub takes ownership of rw, interrupts any running program and sets up
// the hub and motor pair objects.  rw is closed if that fails.
func NewHub(logger *zap.SugaredLogger, rw io.ReadWriteCloser, cfg Config) (*Hub, error) {
	if err := multierr.Combine(cfg.LeftDrivePort.Validate(), cfg.RightDrivePort.Validate()); err != nil {
		return nil, multierr.Append(err, rw.Close())
	}
	h := &Hub{
		logger: logger.Named("spike"),
		cfg:    cfg,
		rw:     rw,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
	}
	go h.loopReadingLines()

	if err := h.start(); err != nil {
		close(h.done)
		return nil, multierr.Append(err, rw.Close())
	}
	h.logger.Infof("connected, drive motors %s/%s", cfg.LeftDrivePort, cfg.RightDrivePort)
	return h, nil
}

func (h *Hub) start() error {
	if _, err := io.WriteString(h.rw, "\x03"); err != nil {
		return errors.Wrap(err, "failed to interrupt hub")
	}
	init := fmt.Sprintf("from spike import PrimeHub, Motor, MotorPair; hub = PrimeHub(); pair = MotorPair('%s', '%s')",
		h.cfg.LeftDrivePort, h.cfg.RightDrivePort)
	return errors.Wrap(h.Exec(init), "failed to initialise hub")
}

func (h *Hub) loopReadingLines() {
	defer close(h.lines)
	br := bufio.NewReader(h.rw)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			select {
			case h.lines <- line:
			case <-h.done:
				return
			}
		}
		if err != nil {
			h.readErr = err
			return
		}
	}
}

// Exec runs one Python statement on the hub.
func (h *Hub) Exec(stmt string) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	_, err := h.requestLocked(stmt, "")
	return err
}

// Eval evaluates a Python expression on the hub and returns its printed value.
func (h *Hub) Eval(expr string) (string, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.requestLocked("", expr)
}

var exceptionRE = regexp.MustCompile(`^(\w+(?:Error|Exception)): ?(.*)$`)

// requestLocked runs stmt, if any, then prints expr, if any.  The line is
// bracketed by "##" and "@@" markers carrying a sequence number; output from
// earlier requests that timed out arrives before our "##" and is dropped.
func (h *Hub) requestLocked(stmt, expr string) (string, error) {
	h.seq++
	seq := strconv.Itoa(h.seq)
	what := stmt
	line := "print('#'+'#', " + seq + "); "
	if stmt != "" {
		line += stmt + "; "
	}
	if expr != "" {
		what = expr
		line += "print('@'+'@', " + seq + ", " + expr + ")"
	} else {
		line += "print('@'+'@', " + seq + ")"
	}

	h.logger.Debugf("> %s", line)
	if _, err := io.WriteString(h.rw, line+"\r\n"); err != nil {
		return "", errors.Wrapf(err, "failed to send %q", what)
	}

	timer := time.NewTimer(h.cfg.ReplyTimeout)
	defer timer.Stop()
	started, traceback := false, false
	for {
		select {
		case l, ok := <-h.lines:
			if !ok {
				if h.readErr != nil && h.readErr != io.EOF {
					return "", errors.Wrap(h.readErr, "failed to read from hub")
				}
				return "", ErrClosed
			}
			l = strings.TrimSpace(strings.TrimPrefix(l, ">>> "))
			if !started {
				tag, _, ok := marked(l, "##")
				started = ok && tag == seq
				continue
			}
			if !traceback {
				if tag, reply, ok := marked(l, "@@"); ok {
					if tag != seq {
						h.logger.Warnf("dropping reply %q to request %s", l, tag)
						continue
					}
					h.logger.Debugf("< %s", reply)
					return reply, nil
				}
				traceback = strings.HasPrefix(l, "Traceback")
				continue
			}
			if m := exceptionRE.FindStringSubmatch(l); m != nil {
				return "", &HubError{Statement: what, Type: m[1], Message: m[2]}
			}
		case <-timer.C:
			return "", errors.Wrapf(ErrReplyTimeout, "after %v sending %q", h.cfg.ReplyTimeout, what)
		}
	}
}

// marked splits a "<marker> <seq> <value>" output line.
func marked(l, marker string) (seq, value string, ok bool) {
	i := strings.Index(l, marker)
	if i < 0 {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimSpace(l[i+len(marker):]), " ", 2)
	if len(fields) == 2 {
		value = strings.TrimSpace(fields[1])
	}
	return fields[0], value, true
}

func (h *Hub) evalFloat(expr string) (float64, error) {
	v, err := h.Eval(expr)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected reply %q to %s", v, expr)
	}
	return f, nil
}

// Close stops the drive motors and closes the connection.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		stopErr := h.Exec("pair.stop()")
		if errors.Is(stopErr, ErrClosed) {
			stopErr = nil
		}
		close(h.done)
		h.closeErr = multierr.Combine(stopErr, h.rw.Close())
	})
	return h.closeErr
}

func (h *Hub) MotionSensor() hardware.HeadingSensor { return motionSensor{h} }
func (h *Hub) DriveMotors() hardware.MotorPair      { return motorPair{h} }
func (h *Hub) Motor(port hardware.Port) hardware.Motor {
	return motor{h: h, port: port}
}
func (h *Hub) LightMatrix() hardware.LightMatrix { return lightMatrix{h} }
func (h *Hub) Speaker() hardware.Speaker         { return speaker{h} }

type motionSensor struct{ h *Hub }

func (m motionSensor) ResetYaw() error {
	m.h.lock.Lock()
	defer m.h.lock.Unlock()
	if _, err := m.h.requestLocked("hub.motion_sensor.reset_yaw_angle()", ""); err != nil {
		return err
	}
	m.h.yaw.Reset()
	return nil
}

// Yaw unwraps the hub's -179..180 reading by accumulating the change since
// the previous read.  Reads must be frequent enough that the robot turns
// less than half a revolution between them.
func (m motionSensor) Yaw() (float64, error) {
	m.h.lock.Lock()
	defer m.h.lock.Unlock()
	v, err := m.h.requestLocked("", "hub.motion_sensor.get_yaw_angle()")
	if err != nil {
		return 0, err
	}
	raw, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected yaw %q", v)
	}
	return m.h.yaw.Update(raw), nil
}

type motorPair struct{ h *Hub }

func speed(s float64) int {
	return int(math.Round(math.Max(-100, math.Min(100, s))))
}

func (p motorPair) StartTank(left, right float64) error {
	return p.h.Exec(fmt.Sprintf("pair.start_tank(%d, %d)", speed(left), speed(right)))
}

func (p motorPair) StartSteered(steering, spd float64) error {
	return p.h.Exec(fmt.Sprintf("pair.start(steering=%d, speed=%d)", speed(steering), speed(spd)))
}

func (p motorPair) Stop() error {
	return p.h.Exec("pair.stop()")
}

func (p motorPair) MoveTank(amount float64, unit hardware.Unit, left, right float64) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	return p.h.Exec(fmt.Sprintf("pair.move_tank(%s, '%s', %d, %d)", number(amount), unit, speed(left), speed(right)))
}

func (p motorPair) Move(amount float64, unit hardware.Unit, steering, spd float64) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	return p.h.Exec(fmt.Sprintf("pair.move(%s, '%s', %d, %d)", number(amount), unit, speed(steering), speed(spd)))
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type motor struct {
	h    *Hub
	port hardware.Port
}

func (m motor) call(method string, args ...string) error {
	if err := m.port.Validate(); err != nil {
		return err
	}
	return m.h.Exec(fmt.Sprintf("Motor('%s').%s(%s)", m.port, method, strings.Join(args, ", ")))
}

func (m motor) inverted() bool {
	return m.h.cfg.InvertCounter && m.port == m.h.cfg.LeftDrivePort
}

func (m motor) ResetDegrees() error {
	return m.call("set_degrees_counted", "0")
}

func (m motor) Degrees() (float64, error) {
	if err := m.port.Validate(); err != nil {
		return 0, err
	}
	d, err := m.h.evalFloat(fmt.Sprintf("Motor('%s').get_degrees_counted()", m.port))
	if m.inverted() {
		d = -d
	}
	return d, err
}

func (m motor) RunForSeconds(seconds, spd float64) error {
	return m.call("run_for_seconds", number(seconds), strconv.Itoa(speed(spd)))
}

func (m motor) RunForDegrees(degrees, spd float64) error {
	return m.call("run_for_degrees", strconv.Itoa(int(math.Round(degrees))), strconv.Itoa(speed(spd)))
}

func (m motor) RunForRotations(rotations, spd float64) error {
	return m.call("run_for_rotations", number(rotations), strconv.Itoa(speed(spd)))
}

func (m motor) SetStopAction(action hardware.StopAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	return m.call("set_stop_action", "'"+string(action)+"'")
}

func (m motor) Stop() error {
	return m.call("stop")
}

type lightMatrix struct{ h *Hub }

func (l lightMatrix) ShowImage(name string) error {
	if _, err := lightmatrix.Lookup(name); err != nil {
		return err
	}
	return l.h.Exec(fmt.Sprintf("hub.light_matrix.show_image('%s')", name))
}

type speaker struct{ h *Hub }

func (s speaker) Beep(note int, seconds float64) error {
	if note < 44 || note > 123 {
		return errors.Errorf("note %d out of range 44-123", note)
	}
	return s.h.Exec(fmt.Sprintf("hub.speaker.beep(%d, %s)", note, number(seconds)))
}
