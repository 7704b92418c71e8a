package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/angle"
	"github.com/fllteam24277/basebot/pkg/hardware"
)

// REPLServer answers the subset of the hub's MicroPython REPL that the spike
// package uses, backed by a World.  Yaw and encoder readings are wrapped and
// rounded the way the hub reports them.
type REPLServer struct {
	logger *zap.SugaredLogger
	world  *World
}

func NewREPLServer(logger *zap.SugaredLogger, w *World) *REPLServer {
	return &REPLServer{
		logger: logger.Named("repl"),
		world:  w,
	}
}

// pyError is reported as a traceback ending in "<Type>: <message>".
type pyError struct {
	Type, Message string
}

func (e *pyError) Error() string {
	return e.Type + ": " + e.Message
}

func valueError(format string, args ...interface{}) error {
	return &pyError{Type: "ValueError", Message: fmt.Sprintf(format, args...)}
}

const prompt = ">>> "

// Serve reads statements from rw until EOF or ctx is done.
func (s *REPLServer) Serve(ctx context.Context, rw io.ReadWriter) error {
	if _, err := io.WriteString(rw, "MicroPython simulated SPIKE hub\r\n"+prompt); err != nil {
		return err
	}
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Ctrl-C interrupts whatever is running; there never is anything.
		line := strings.TrimLeft(scanner.Text(), "\x03")
		line = strings.TrimSpace(strings.TrimPrefix(line, prompt))
		var out strings.Builder
		if line != "" {
			s.logger.Debugf("exec: %s", line)
			if err := s.exec(line, &out); err != nil {
				pyErr, ok := err.(*pyError)
				if !ok {
					pyErr = &pyError{Type: "RuntimeError", Message: err.Error()}
				}
				out.WriteString("Traceback (most recent call last):\r\n")
				out.WriteString("  File \"<stdin>\", line 1, in <module>\r\n")
				out.WriteString(pyErr.Error() + "\r\n")
			}
		}
		out.WriteString(prompt)
		if _, err := io.WriteString(rw, out.String()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

var (
	assignRE = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
	printRE  = regexp.MustCompile(`^print\((.*)\)$`)
	callRE   = regexp.MustCompile(`^(hub\.motion_sensor|hub\.light_matrix|hub\.speaker|pair|Motor\('([A-F])'\))\.(\w+)\((.*)\)$`)
	pairRE   = regexp.MustCompile(`^MotorPair\('([A-F])',\s*'([A-F])'\)$`)
)

const (
	marker      = `'@'+'@'`
	startMarker = `'#'+'#'`
)

func (s *REPLServer) exec(line string, out io.Writer) error {
	for _, stmt := range strings.Split(line, ";") {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "":
		case strings.HasPrefix(stmt, "from ") || strings.HasPrefix(stmt, "import "):
		case assignRE.MatchString(stmt) && !strings.Contains(stmt, "("+marker):
			if err := s.assign(assignRE.FindStringSubmatch(stmt)); err != nil {
				return err
			}
		case printRE.MatchString(stmt):
			args := splitArgs(printRE.FindStringSubmatch(stmt)[1])
			if len(args) == 0 || (args[0] != marker && args[0] != startMarker) {
				return valueError("unsupported print")
			}
			fields := []string{strings.Trim(strings.ReplaceAll(args[0], "'+'", ""), "'")}
			rest := args[1:]
			// An optional request number, then at most one expression.
			if len(rest) > 0 {
				if _, err := strconv.Atoi(rest[0]); err == nil {
					fields = append(fields, rest[0])
					rest = rest[1:]
				}
			}
			if len(rest) > 0 {
				v, err := s.eval(strings.Join(rest, ", "))
				if err != nil {
					return err
				}
				fields = append(fields, v)
			}
			fmt.Fprint(out, strings.Join(fields, " ")+"\r\n")
		default:
			if _, err := s.eval(stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *REPLServer) assign(m []string) error {
	rhs := strings.TrimSpace(m[2])
	switch {
	case rhs == "PrimeHub()":
		return nil
	case pairRE.MatchString(rhs):
		ports := pairRE.FindStringSubmatch(rhs)
		opts := s.world.opts
		if hardware.Port(ports[1]) != opts.LeftDrivePort || hardware.Port(ports[2]) != opts.RightDrivePort {
			return valueError("drive motors are on ports %s and %s", opts.LeftDrivePort, opts.RightDrivePort)
		}
		return nil
	}
	return &pyError{Type: "NameError", Message: fmt.Sprintf("name '%s' isn't defined", rhs)}
}

func (s *REPLServer) eval(expr string) (string, error) {
	m := callRE.FindStringSubmatch(expr)
	if m == nil {
		return "", &pyError{Type: "SyntaxError", Message: "invalid syntax"}
	}
	object, port, method := m[1], hardware.Port(m[2]), m[3]
	a, err := parseArgs(m[4])
	if err != nil {
		return "", err
	}
	w := s.world

	switch {
	case object == "hub.motion_sensor" && method == "reset_yaw_angle":
		return "None", w.MotionSensor().ResetYaw()
	case object == "hub.motion_sensor" && method == "get_yaw_angle":
		yaw, err := w.MotionSensor().Yaw()
		return strconv.Itoa(hubAngle(yaw)), err
	case object == "hub.light_matrix" && method == "show_image":
		name, err := a.str(0, "image")
		if err != nil {
			return "", err
		}
		if err := w.LightMatrix().ShowImage(name); err != nil {
			return "", valueError("%v", err)
		}
		return "None", nil
	case object == "hub.speaker" && method == "beep":
		note, seconds, err := a.num2(0, "note", 1, "seconds")
		if err != nil {
			return "", err
		}
		return "None", pyValue(w.Speaker().Beep(int(note), seconds))
	case object == "pair":
		return s.evalPair(method, a)
	case port != "":
		return s.evalMotor(w.Motor(port), method, a)
	}
	return "", &pyError{Type: "AttributeError", Message: fmt.Sprintf("'%s' object has no attribute '%s'", object, method)}
}

func (s *REPLServer) evalPair(method string, a args) (string, error) {
	pair := s.world.DriveMotors()
	switch method {
	case "start_tank":
		l, r, err := a.num2(0, "left_speed", 1, "right_speed")
		if err != nil {
			return "", err
		}
		return "None", pair.StartTank(l, r)
	case "start":
		steering, err := a.num(0, "steering")
		if err != nil {
			steering = 0
		}
		speed, err := a.num(1, "speed")
		if err != nil {
			return "", err
		}
		return "None", pair.StartSteered(steering, speed)
	case "stop":
		return "None", pair.Stop()
	case "move_tank":
		amount, unit, err := a.amountAndUnit()
		if err != nil {
			return "", err
		}
		l, r, err := a.num2(2, "left_speed", 3, "right_speed")
		if err != nil {
			return "", err
		}
		return "None", pyValue(pair.MoveTank(amount, unit, l, r))
	case "move":
		amount, unit, err := a.amountAndUnit()
		if err != nil {
			return "", err
		}
		steering, speed, err := a.num2(2, "steering", 3, "speed")
		if err != nil {
			return "", err
		}
		return "None", pyValue(pair.Move(amount, unit, steering, speed))
	}
	return "", &pyError{Type: "AttributeError", Message: fmt.Sprintf("'MotorPair' object has no attribute '%s'", method)}
}

func (s *REPLServer) evalMotor(m hardware.Motor, method string, a args) (string, error) {
	switch method {
	case "set_degrees_counted":
		n, err := a.num(0, "degrees_counted")
		if err != nil {
			return "", err
		}
		if n != 0 {
			return "", valueError("only resetting to 0 is simulated")
		}
		return "None", m.ResetDegrees()
	case "get_degrees_counted":
		d, err := m.Degrees()
		return strconv.Itoa(int(math.Round(d))), err
	case "run_for_seconds", "run_for_degrees", "run_for_rotations":
		amount, speed, err := a.num2(0, strings.TrimPrefix(method, "run_for_"), 1, "speed")
		if err != nil {
			return "", err
		}
		switch method {
		case "run_for_seconds":
			err = m.RunForSeconds(amount, speed)
		case "run_for_degrees":
			err = m.RunForDegrees(amount, speed)
		default:
			err = m.RunForRotations(amount, speed)
		}
		return "None", pyValue(err)
	case "set_stop_action":
		action, err := a.str(0, "action")
		if err != nil {
			return "", err
		}
		return "None", pyValue(m.SetStopAction(hardware.StopAction(action)))
	case "stop":
		return "None", m.Stop()
	}
	return "", &pyError{Type: "AttributeError", Message: fmt.Sprintf("'Motor' object has no attribute '%s'", method)}
}

// hubAngle wraps into (-180, 180] and rounds to whole degrees.
func hubAngle(yaw float64) int {
	return int(math.Round(angle.FromFloat(yaw).Float()))
}

func pyValue(err error) error {
	if err == nil {
		return nil
	}
	return valueError("%v", err)
}

type args struct {
	pos []string
	kw  map[string]string
}

func splitArgs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func parseArgs(s string) (args, error) {
	a := args{kw: map[string]string{}}
	for _, arg := range splitArgs(s) {
		if k, v, ok := strings.Cut(arg, "="); ok {
			a.kw[strings.TrimSpace(k)] = strings.TrimSpace(v)
			continue
		}
		if len(a.kw) > 0 {
			return a, &pyError{Type: "SyntaxError", Message: "positional argument follows keyword argument"}
		}
		a.pos = append(a.pos, arg)
	}
	return a, nil
}

func (a args) raw(i int, name string) (string, bool) {
	if v, ok := a.kw[name]; ok {
		return v, true
	}
	if i < len(a.pos) {
		return a.pos[i], true
	}
	return "", false
}

func (a args) num(i int, name string) (float64, error) {
	v, ok := a.raw(i, name)
	if !ok {
		return 0, &pyError{Type: "TypeError", Message: fmt.Sprintf("missing argument '%s'", name)}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &pyError{Type: "TypeError", Message: fmt.Sprintf("%s must be a number, got %s", name, v)}
	}
	return f, nil
}

func (a args) num2(i int, name string, j int, name2 string) (float64, float64, error) {
	x, err := a.num(i, name)
	if err != nil {
		return 0, 0, err
	}
	y, err := a.num(j, name2)
	return x, y, err
}

func (a args) str(i int, name string) (string, error) {
	v, ok := a.raw(i, name)
	if !ok {
		return "", &pyError{Type: "TypeError", Message: fmt.Sprintf("missing argument '%s'", name)}
	}
	if len(v) < 2 || v[0] != '\'' || v[len(v)-1] != '\'' {
		return "", &pyError{Type: "TypeError", Message: fmt.Sprintf("%s must be a string, got %s", name, v)}
	}
	return v[1 : len(v)-1], nil
}

func (a args) amountAndUnit() (float64, hardware.Unit, error) {
	amount, err := a.num(0, "amount")
	if err != nil {
		return 0, "", err
	}
	unit, err := a.str(1, "unit")
	if err != nil {
		return 0, "", err
	}
	return amount, hardware.Unit(unit), nil
}
