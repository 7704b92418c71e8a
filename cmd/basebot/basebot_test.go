package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/fllteam24277/basebot/pkg/gyrodrive"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cfgPath := filepath.Join(t.TempDir(), "basebot.yaml")
	full := append([]string{"basebot", "--config", cfgPath, "--log-level", "error"}, args...)
	err := newApp(&out).RunContext(context.Background(), full)
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	dirErr := &gyrodrive.InvalidHeadingDirectionError{Method: "TurnRightAndDriveOnHeading"}
	if code := exitCode(errors.Wrap(dirErr, "step 3")); code != 2 {
		t.Errorf("Expected exit code 2 for a wrong direction, got %d", code)
	}
	if code := exitCode(errors.New("boom")); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestMissionsCommand(t *testing.T) {
	out, err := runApp(t, "missions")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "mission1") || !strings.Contains(out, "testprogram") {
		t.Errorf("Missing missions in:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "1.2 8/4/2022" {
		t.Errorf("Unexpected version %q", out)
	}
}

func TestRunOnSimulator(t *testing.T) {
	if _, err := runApp(t, "--backend", "sim", "--debug", "run", "testprogram"); err != nil {
		t.Fatal(err)
	}
	if _, err := runApp(t, "--backend", "sim", "run", "mission9"); err == nil {
		t.Error("Expected an unknown mission to fail")
	}
	if _, err := runApp(t, "--backend", "ev3", "run", "testprogram"); err == nil {
		t.Error("Expected an unknown backend to fail")
	}
}

func TestCalibrateTurnOnSimulator(t *testing.T) {
	out, err := runApp(t, "--backend", "sim", "calibrate-turn", "--angle", "-90")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "turn_compensation.left") {
		t.Errorf("Expected a left compensation suggestion, got:\n%s", out)
	}
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	args := []string{"basebot", "--config", filepath.Join(dir, "robot.yaml"), "--log-level", "error",
		"--write-config", "--backend", "sim", "run", "testprogram"}
	if err := newApp(&out).RunContext(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(filepath.Join(dir, "robot-in-use.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "backend: sim") {
		t.Errorf("Unexpected config written:\n%s", data)
	}
}
