package spike

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/gyrodrive"
	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/lightmatrix"
	"github.com/fllteam24277/basebot/pkg/sim"
)

func connectToSim(t *testing.T, cfg Config) (*Hub, *sim.World) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	w := sim.NewWorld(logger, sim.DefaultOptions())
	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = sim.NewREPLServer(logger, w).Serve(ctx, server)
		server.Close()
	}()
	h, err := NewHub(logger, client, cfg)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		h.Close()
	})
	return h, w
}

func TestConnectAndStop(t *testing.T) {
	h, w := connectToSim(t, DefaultConfig())
	if err := h.DriveMotors().StartTank(20, 20.4); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	events := w.Events()
	if len(events) != 2 || events[0].Kind != sim.EventTank || events[1].Kind != sim.EventStop {
		t.Fatalf("Expected tank then stop on close, got %v", events)
	}
	if events[0].Left != 20 || events[0].Right != 20 {
		t.Errorf("Speeds should be sent rounded, got %v/%v", events[0].Left, events[0].Right)
	}
	if err := h.DriveMotors().Stop(); err == nil {
		t.Error("Expected commands after Close to fail")
	}
}

func TestYawUnwraps(t *testing.T) {
	h, w := connectToSim(t, DefaultConfig())
	sensor := h.MotionSensor()
	if err := sensor.ResetYaw(); err != nil {
		t.Fatal(err)
	}
	for _, heading := range []float64{90, 170, 250, 370, 200, 30, -100, -200} {
		w.SetHeading(heading)
		yaw, err := sensor.Yaw()
		if err != nil {
			t.Fatal(err)
		}
		if yaw != heading {
			t.Errorf("Expected unwrapped yaw %v, got %v", heading, yaw)
		}
	}
	if err := sensor.ResetYaw(); err != nil {
		t.Fatal(err)
	}
	if yaw, _ := sensor.Yaw(); yaw != 0 {
		t.Errorf("Expected 0 after reset, got %v", yaw)
	}
}

func TestTurnOverREPL(t *testing.T) {
	h, w := connectToSim(t, DefaultConfig())
	dev := gyrodrive.Devices{
		Sensor:  h.MotionSensor(),
		Counter: h.Motor("E"),
		Drive:   h.DriveMotors(),
	}
	tc := gyrodrive.NewTurnController(zap.NewNop().Sugar(), w, dev, gyrodrive.DefaultConfig())
	if err := tc.Turn(context.Background(), 90); err != nil {
		t.Fatal(err)
	}
	// The hub rounds yaw to whole degrees.
	if hd := w.Heading(); hd < 89.5 || hd > 91 {
		t.Errorf("Expected to stop near 90, heading %v", hd)
	}
	events := w.Events()
	if last := events[len(events)-1]; last.Kind != sim.EventStop {
		t.Errorf("Expected last command to be a stop, got %v", last)
	}
}

func TestInvertCounter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InvertCounter = true
	h, _ := connectToSim(t, cfg)

	for _, port := range []hardware.Port{"E", "A"} {
		if err := h.Motor(port).RunForDegrees(90, 50); err != nil {
			t.Fatal(err)
		}
	}
	left, err := h.Motor("E").Degrees()
	if err != nil {
		t.Fatal(err)
	}
	right, err := h.Motor("A").Degrees()
	if err != nil {
		t.Fatal(err)
	}
	if left != -90 || right != 90 {
		t.Errorf("Expected only the left drive counter inverted, got %v/%v", left, right)
	}
}

func TestHubError(t *testing.T) {
	h, _ := connectToSim(t, DefaultConfig())
	err := h.Exec("hub.motion_sensor.get_pitch_angle()")
	var hubErr *HubError
	if !errors.As(err, &hubErr) {
		t.Fatalf("Expected a HubError, got %v", err)
	}
	if hubErr.Type != "AttributeError" {
		t.Errorf("Expected AttributeError, got %q", hubErr.Type)
	}
	// The connection is still usable afterwards.
	if err := h.DriveMotors().Stop(); err != nil {
		t.Errorf("Stop after error failed: %v", err)
	}
}

func TestLocalValidation(t *testing.T) {
	h, w := connectToSim(t, DefaultConfig())
	if err := h.LightMatrix().ShowImage("UNICORN"); !errors.Is(err, lightmatrix.ErrUnknownImage) {
		t.Errorf("Expected unknown image, got %v", err)
	}
	if err := h.Motor("Z").Stop(); err == nil {
		t.Error("Expected invalid port to fail")
	}
	if err := h.DriveMotors().Move(10, "furlongs", 0, 50); err == nil {
		t.Error("Expected invalid unit to fail")
	}
	if err := h.Speaker().Beep(10, 1); err == nil {
		t.Error("Expected out of range note to fail")
	}
	if n := len(w.Events()); n != 0 {
		t.Errorf("Invalid commands should not reach the hub, %d events", n)
	}
}

func TestReplyTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	go func() {
		_, _ = io.Copy(io.Discard, server)
	}()
	cfg := DefaultConfig()
	cfg.ReplyTimeout = 50 * time.Millisecond
	_, err := NewHub(zap.NewNop().Sugar(), client, cfg)
	if !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("Expected reply timeout, got %v", err)
	}
}

func TestSpeedRounding(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want int
	}{
		{0, 0}, {4.5, 5}, {-4.5, -5}, {120, 100}, {-101, -100}, {math.Copysign(0, -1), 0},
	} {
		if got := speed(tc.in); got != tc.want {
			t.Errorf("speed(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

var requestNumberRE = regexp.MustCompile(`print\('#'\+'#', (\d+)\)`)

// slowYawHub answers requests in order like the real REPL, but takes delay
// to read the yaw.  Encoder reads return 999.
func slowYawHub(t *testing.T, conn net.Conn, delay time.Duration) {
	t.Helper()
	go func() {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			m := requestNumberRE.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			reply := "@@ " + m[1]
			switch {
			case strings.Contains(line, "get_yaw_angle"):
				time.Sleep(delay)
				reply += " 90"
			case strings.Contains(line, "get_degrees_counted"):
				reply += " 999"
			}
			if _, err := fmt.Fprintf(conn, "## %s\r\n%s\r\n>>> ", m[1], reply); err != nil {
				return
			}
		}
	}()
}

func TestLateReplyIsNotTakenForTheNext(t *testing.T) {
	server, client := net.Pipe()
	slowYawHub(t, server, 120*time.Millisecond)
	cfg := DefaultConfig()
	cfg.ReplyTimeout = 50 * time.Millisecond
	h, err := NewHub(zap.NewNop().Sugar(), client, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.MotionSensor().Yaw(); !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("Expected the yaw read to time out, got %v", err)
	}
	d, err := h.Motor("B").Degrees()
	if err != nil {
		t.Fatal(err)
	}
	if d != 999 {
		t.Errorf("Expected the encoder reading 999, got %v", d)
	}
}

func TestLateTracebackIsNotTakenForTheNext(t *testing.T) {
	h, _ := connectToSim(t, DefaultConfig())
	// Output of a request that has already been given up on.
	h.lines <- "Traceback (most recent call last):"
	h.lines <- "AttributeError: stale"
	h.lines <- "@@ 1"
	if err := h.DriveMotors().Stop(); err != nil {
		t.Errorf("Expected stale output to be skipped, got %v", err)
	}
}
