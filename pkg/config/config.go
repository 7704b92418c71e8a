// Package config loads the robot configuration: defaults in code, overridden
// by a YAML file and then by the environment.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"github.com/fllteam24277/basebot/pkg/bno08x"
	"github.com/fllteam24277/basebot/pkg/chassis"
	"github.com/fllteam24277/basebot/pkg/gyrodrive"
	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/spike"
)

const (
	BackendSim   = "sim"
	BackendSpike = "spike"

	HeadingFromHub    = "hub"
	HeadingFromIMU    = "imu"
	HeadingFromBNO08X = "bno08x"
)

type Config struct {
	Backend string `yaml:"backend"`

	// Validation mode: reject turn-and-drive headings on the wrong side and
	// turns of more than 180 degrees.
	Debug bool `yaml:"debug"`

	HeadingSource string `yaml:"heading_source"`

	Ports    Ports            `yaml:"ports"`
	Geometry Geometry         `yaml:"geometry"`
	Drive    gyrodrive.Config `yaml:"drive"`

	// Degrees taken off each turn to allow for overshoot.  Measure with
	// "basebot calibrate-turn".
	TurnCompensation TurnCompensation `yaml:"turn_compensation"`

	Spike  spike.Config `yaml:"spike"`
	IMU    IMU          `yaml:"imu"`
	BNO08X BNO08X       `yaml:"bno08x"`
	Sim    Sim          `yaml:"sim"`
}

type Ports struct {
	LeftDrive       hardware.Port `yaml:"left_drive"`
	RightDrive      hardware.Port `yaml:"right_drive"`
	LeftAttachment  hardware.Port `yaml:"left_attachment"`
	RightAttachment hardware.Port `yaml:"right_attachment"`
	ColorSensor     hardware.Port `yaml:"color_sensor"`
}

type Geometry struct {
	WheelDiameterCM float64 `yaml:"wheel_diameter_cm"`
	TrackWidthCM    float64 `yaml:"track_width_cm"`
}

type TurnCompensation struct {
	Right float64 `yaml:"right"`
	Left  float64 `yaml:"left"`
}

type IMU struct {
	// "spi" or "i2c".
	Bus          string        `yaml:"bus"`
	Device       string        `yaml:"device"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type BNO08X struct {
	Device string `yaml:"device"`
}

type Sim struct {
	MotorDegreesPerSecond float64       `yaml:"motor_degrees_per_second"`
	CommandLatency        time.Duration `yaml:"command_latency"`
	Stalled               bool          `yaml:"stalled"`
	RenderDir             string        `yaml:"render_dir"`
	Audio                 bool          `yaml:"audio"`
}

func Default() Config {
	g := chassis.Default()
	return Config{
		Backend:       BackendSim,
		HeadingSource: HeadingFromHub,
		Ports: Ports{
			LeftDrive:       "E",
			RightDrive:      "A",
			LeftAttachment:  "B",
			RightAttachment: "D",
			ColorSensor:     "F",
		},
		Geometry: Geometry{
			WheelDiameterCM: g.WheelDiameterCM(),
			TrackWidthCM:    g.TrackWidthCM(),
		},
		Drive: gyrodrive.DefaultConfig(),
		Spike: spike.DefaultConfig(),
		IMU: IMU{
			Bus:          "spi",
			Device:       "SPI0.0",
			PollInterval: 20 * time.Millisecond,
		},
		BNO08X: BNO08X{
			Device: bno08x.DefaultDevice,
		},
		Sim: Sim{
			MotorDegreesPerSecond: 900,
			CommandLatency:        10 * time.Millisecond,
		},
	}
}

// Load returns the defaults overlaid with the file at path, if there is one.
// A missing file is not an error.
func Load(logger *zap.SugaredLogger, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Infof("no config file at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides the serial device from BASEBOT_PORT and validation mode
// from BASEBOT_DEBUG.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if port := getenv("BASEBOT_PORT"); port != "" {
		c.Spike.Device = port
	}
	if debug := getenv("BASEBOT_DEBUG"); debug != "" {
		b, err := strconv.ParseBool(debug)
		if err != nil {
			return errors.Wrapf(err, "bad BASEBOT_DEBUG %q", debug)
		}
		c.Debug = b
	}
	return nil
}

// Resolved copies the settings that several sections share into those
// sections.
func (c Config) Resolved() Config {
	c.Spike.LeftDrivePort = c.Ports.LeftDrive
	c.Spike.RightDrivePort = c.Ports.RightDrive
	c.Drive.ValidateTurns = c.Drive.ValidateTurns || c.Debug
	return c
}

func (c Config) ChassisGeometry() (chassis.Geometry, error) {
	return chassis.NewGeometry(c.Geometry.WheelDiameterCM, c.Geometry.TrackWidthCM)
}

func (c Config) Validate() error {
	var err error
	switch c.Backend {
	case BackendSim, BackendSpike:
	default:
		err = multierr.Append(err, errors.Errorf("unknown backend %q", c.Backend))
	}
	switch c.HeadingSource {
	case HeadingFromHub, HeadingFromIMU, HeadingFromBNO08X:
	default:
		err = multierr.Append(err, errors.Errorf("unknown heading source %q", c.HeadingSource))
	}
	for _, p := range []struct {
		name string
		port hardware.Port
	}{
		{"left drive", c.Ports.LeftDrive},
		{"right drive", c.Ports.RightDrive},
		{"left attachment", c.Ports.LeftAttachment},
		{"right attachment", c.Ports.RightAttachment},
		{"color sensor", c.Ports.ColorSensor},
	} {
		if pErr := p.port.Validate(); pErr != nil {
			err = multierr.Append(err, errors.Wrap(pErr, p.name))
		}
	}
	if c.Ports.LeftDrive == c.Ports.RightDrive {
		err = multierr.Append(err, errors.New("drive motors must be on different ports"))
	}
	if _, gErr := c.ChassisGeometry(); gErr != nil {
		err = multierr.Append(err, gErr)
	}
	if dErr := c.Drive.Validate(); dErr != nil {
		err = multierr.Append(err, dErr)
	}
	if c.TurnCompensation.Left < 0 || c.TurnCompensation.Right < 0 {
		err = multierr.Append(err, errors.New("turn compensation must not be negative"))
	}
	if c.Backend == BackendSpike && c.Spike.ReplyTimeout <= 0 {
		err = multierr.Append(err, errors.New("spike reply timeout must be positive"))
	}
	if c.HeadingSource == HeadingFromIMU && c.IMU.Bus != "spi" && c.IMU.Bus != "i2c" {
		err = multierr.Append(err, errors.Errorf("unknown IMU bus %q", c.IMU.Bus))
	}
	return err
}

// InUsePath is where WriteInUse puts the effective config for path:
// "robot.yaml" becomes "robot-in-use.yaml".
func InUsePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-in-use" + ext
}

// WriteInUse records the configuration actually being used next to path.
func (c Config) WriteInUse(path string) error {
	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(InUsePath(path), data, 0666)
}
