package main

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/kr/pty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/baserobot"
	"github.com/fllteam24277/basebot/pkg/bno08x"
	"github.com/fllteam24277/basebot/pkg/chassis"
	"github.com/fllteam24277/basebot/pkg/config"
	"github.com/fllteam24277/basebot/pkg/gyrodrive"
	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/imu"
	"github.com/fllteam24277/basebot/pkg/sim"
	"github.com/fllteam24277/basebot/pkg/sound/player"
	"github.com/fllteam24277/basebot/pkg/spike"
)

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "bad log level")
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// loadConfig layers defaults, the config file, the environment and then the
// command line flags.
func loadConfig(c *cli.Context, logger *zap.SugaredLogger) (config.Config, error) {
	path := c.String(flagConfig)
	cfg, err := config.Load(logger, path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if c.IsSet(flagBackend) {
		cfg.Backend = c.String(flagBackend)
	}
	if c.IsSet(flagPort) {
		cfg.Spike.Device = c.String(flagPort)
	}
	if c.IsSet(flagDebug) {
		cfg.Debug = c.Bool(flagDebug)
	}
	cfg = cfg.Resolved()
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	if c.Bool(flagWriteConfig) {
		if err := cfg.WriteInUse(path); err != nil {
			logger.Warnf("failed to write config in use: %v", err)
		}
	}
	return cfg, nil
}

type session struct {
	logger *zap.SugaredLogger
	cfg    config.Config
	hub    hardware.Interface
	robot  *baserobot.BaseRobot
	cancel context.CancelFunc
}

func openSession(c *cli.Context) (*session, error) {
	logger, err := newLogger(c.String(flagLogLevel))
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return nil, err
	}
	// Tag every line from this session.
	logger = logger.With("run", uuid.New().String())
	opts, err := baserobot.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(c.Context)
	s := &session{logger: logger, cfg: cfg, cancel: cancel}

	var clk gyrodrive.Clock
	switch cfg.Backend {
	case config.BackendSim:
		w := sim.NewWorld(logger, simOptions(logger, cfg, opts.Geometry))
		s.hub, clk = w, w
	case config.BackendSpike:
		h, err := spike.Open(logger, cfg.Spike)
		if err != nil {
			cancel()
			return nil, err
		}
		s.hub, clk = h, clock.New()
	}

	switch cfg.HeadingSource {
	case config.HeadingFromIMU:
		sensor, err := openIMU(ctx, logger, cfg.IMU)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts.HeadingSensor = sensor
	case config.HeadingFromBNO08X:
		b := bno08x.New(logger)
		go b.LoopReadingReports(ctx, cfg.BNO08X.Device)
		if err := waitForHeading(ctx, b); err != nil {
			s.Close()
			return nil, err
		}
		opts.HeadingSensor = b
	}

	s.robot, err = baserobot.New(logger, s.hub, clk, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func simOptions(logger *zap.SugaredLogger, cfg config.Config, g chassis.Geometry) sim.Options {
	opts := sim.DefaultOptions()
	opts.Geometry = g
	opts.LeftDrivePort = cfg.Ports.LeftDrive
	opts.RightDrivePort = cfg.Ports.RightDrive
	opts.MotorDegreesPerSecond = cfg.Sim.MotorDegreesPerSecond
	opts.CommandLatency = cfg.Sim.CommandLatency
	opts.Stalled = cfg.Sim.Stalled
	opts.RenderDir = cfg.Sim.RenderDir
	if cfg.Sim.Audio {
		opts.Audio = player.InitSound(logger)
	}
	return opts
}

func openIMU(ctx context.Context, logger *zap.SugaredLogger, cfg config.IMU) (hardware.HeadingSensor, error) {
	var m *imu.IMU
	var err error
	if cfg.Bus == "i2c" {
		m, err = imu.NewI2C(logger, cfg.Device)
	} else {
		m, err = imu.NewSPI(logger, cfg.Device)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Configure(); err != nil {
		return nil, errors.Wrap(err, "failed to configure IMU")
	}
	if err := m.Calibrate(); err != nil {
		return nil, errors.Wrap(err, "failed to calibrate IMU")
	}
	y := imu.NewYawIntegrator(logger, m)
	go y.LoopReadingFIFO(ctx, cfg.PollInterval)
	return y, nil
}

// waitForHeading gives a streaming sensor a couple of seconds to produce its
// first reading.
func waitForHeading(ctx context.Context, sensor hardware.HeadingSensor) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := sensor.Yaw()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return errors.Wrap(err, "heading sensor not ready")
		}
		time.Sleep(bno08x.ReportInterval)
	}
}

func (s *session) Close() error {
	s.cancel()
	if s.hub == nil {
		return nil
	}
	s.logger.Info("stopping motors for shut down")
	return multierr.Combine(s.hub.DriveMotors().Stop(), s.hub.Close())
}

func simHubAction(c *cli.Context) error {
	logger, err := newLogger(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	g, err := cfg.ChassisGeometry()
	if err != nil {
		return err
	}
	w := sim.NewWorld(logger, simOptions(logger, cfg, g))

	master, slave, err := pty.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open pseudo-terminal")
	}
	defer slave.Close()
	go func() {
		<-c.Context.Done()
		master.Close()
	}()

	logger.Infof("simulated hub listening on %s", slave.Name())
	logger.Infof("connect with: basebot --backend spike --port %s run <mission>", slave.Name())
	err = sim.NewREPLServer(logger, w).Serve(c.Context, master)
	if c.Context.Err() != nil {
		return nil
	}
	return err
}
