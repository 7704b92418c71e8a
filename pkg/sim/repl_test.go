package sim

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type replClient struct {
	t     *testing.T
	conn  net.Conn
	lines chan string
}

func startREPL(t *testing.T, w *World) *replClient {
	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewREPLServer(zap.NewNop().Sugar(), w).Serve(ctx, server)
	}()
	c := &replClient{t: t, conn: client, lines: make(chan string, 100)}
	go func() {
		r := bufio.NewReader(client)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(c.lines)
				return
			}
			c.lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		server.Close()
		if err := <-done; err != nil && err != io.EOF && !strings.Contains(err.Error(), "closed") {
			t.Errorf("Serve returned %v", err)
		}
	})
	return c
}

// send writes one line and returns the text after the "@@" marker or the
// final line of a traceback.
func (c *replClient) send(line string) (reply string, traceback bool) {
	c.t.Helper()
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		c.t.Fatal(err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case l, ok := <-c.lines:
			if !ok {
				c.t.Fatal("REPL closed")
			}
			if i := strings.Index(l, "@@"); i >= 0 {
				return strings.TrimSpace(l[i+2:]), false
			}
			if strings.Contains(l, "Traceback") {
				traceback = true
				continue
			}
			if traceback && !strings.HasPrefix(strings.TrimSpace(l), "File") {
				return l, true
			}
		case <-timeout:
			c.t.Fatalf("No reply to %q", line)
		}
	}
}

func (c *replClient) mustSend(line string) string {
	c.t.Helper()
	reply, tb := c.send(line)
	if tb {
		c.t.Fatalf("%q failed: %s", line, reply)
	}
	return reply
}

func TestREPLInitAndYaw(t *testing.T) {
	w := newTestWorld(DefaultOptions())
	c := startREPL(t, w)

	c.mustSend("from spike import PrimeHub, Motor, MotorPair; hub = PrimeHub(); pair = MotorPair('E', 'A'); print('@'+'@')")
	c.mustSend("hub.motion_sensor.reset_yaw_angle(); print('@'+'@')")

	w.SetHeading(190.4)
	if got := c.mustSend("print('@'+'@', hub.motion_sensor.get_yaw_angle())"); got != "-170" {
		t.Errorf("Expected yaw to be reported wrapped as -170, got %q", got)
	}
	w.SetHeading(-12.6)
	if got := c.mustSend("print('@'+'@', hub.motion_sensor.get_yaw_angle())"); got != "-13" {
		t.Errorf("Expected yaw -13, got %q", got)
	}
}

func TestREPLNumberedReplies(t *testing.T) {
	w := newTestWorld(DefaultOptions())
	c := startREPL(t, w)

	if got := c.mustSend("print('#'+'#', 7); hub.motion_sensor.reset_yaw_angle(); print('@'+'@', 7)"); got != "7" {
		t.Errorf("Expected reply tagged 7, got %q", got)
	}
	w.SetHeading(45)
	if got := c.mustSend("print('#'+'#', 8); print('@'+'@', 8, hub.motion_sensor.get_yaw_angle())"); got != "8 45" {
		t.Errorf("Expected \"8 45\", got %q", got)
	}
}

func TestREPLWrongDrivePorts(t *testing.T) {
	c := startREPL(t, newTestWorld(DefaultOptions()))
	reply, tb := c.send("pair = MotorPair('A', 'E'); print('@'+'@')")
	if !tb || !strings.HasPrefix(reply, "ValueError") {
		t.Errorf("Expected a ValueError traceback, got %q", reply)
	}
}

func TestREPLDriveCommands(t *testing.T) {
	w := newTestWorld(DefaultOptions())
	c := startREPL(t, w)

	c.mustSend("pair.start_tank(20, -20); print('@'+'@')")
	c.mustSend("pair.start(steering=-10, speed=30); print('@'+'@')")
	c.mustSend("pair.stop(); print('@'+'@')")
	c.mustSend("pair.move_tank(40, 'cm', 70, 70); print('@'+'@')")

	var kinds []EventKind
	for _, e := range w.Events() {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{EventTank, EventSteered, EventStop, EventMove}
	if len(kinds) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Event %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
	steered := w.Events()[1]
	if steered.Steering != -10 || steered.Speed != 30 {
		t.Errorf("Steered command parsed wrongly: %+v", steered)
	}
}

func TestREPLMotor(t *testing.T) {
	w := newTestWorld(DefaultOptions())
	c := startREPL(t, w)

	c.mustSend("Motor('B').run_for_degrees(90, 50); print('@'+'@')")
	if got := c.mustSend("print('@'+'@', Motor('B').get_degrees_counted())"); got != "90" {
		t.Errorf("Expected 90 degrees counted, got %q", got)
	}
	c.mustSend("Motor('B').set_degrees_counted(0); print('@'+'@')")
	if got := c.mustSend("print('@'+'@', Motor('B').get_degrees_counted())"); got != "0" {
		t.Errorf("Expected 0 after reset, got %q", got)
	}
	if reply, tb := c.send("Motor('B').set_stop_action('float'); print('@'+'@')"); !tb {
		t.Errorf("Expected bad stop action to fail, got %q", reply)
	}
}

func TestREPLDisplayAndSound(t *testing.T) {
	w := newTestWorld(DefaultOptions())
	c := startREPL(t, w)

	c.mustSend("hub.light_matrix.show_image('ARROW_S'); print('@'+'@')")
	if w.Image() != "ARROW_S" {
		t.Errorf("Expected ARROW_S shown, got %q", w.Image())
	}
	if _, tb := c.send("hub.light_matrix.show_image('NOPE'); print('@'+'@')"); !tb {
		t.Error("Expected unknown image to fail")
	}
	c.mustSend("hub.speaker.beep(60, 0.2); print('@'+'@')")
}

func TestREPLUnknownCall(t *testing.T) {
	c := startREPL(t, newTestWorld(DefaultOptions()))
	reply, tb := c.send("hub.motion_sensor.get_pitch_angle(); print('@'+'@')")
	if !tb || !strings.HasPrefix(reply, "AttributeError") {
		t.Errorf("Expected AttributeError, got %q (traceback %v)", reply, tb)
	}
}

func TestHubAngle(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want int
	}{
		{0, 0}, {180, 180}, {-180, 180}, {181, -179}, {-181, 179}, {720.4, 0}, {359.6, 0},
	} {
		if got := hubAngle(tc.in); got != tc.want {
			t.Errorf("hubAngle(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
