package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fllteam24277/basebot/pkg/baserobot"
	"github.com/fllteam24277/basebot/pkg/gyrodrive"
	"github.com/fllteam24277/basebot/pkg/mission"
)

const (
	flagConfig      = "config"
	flagBackend     = "backend"
	flagPort        = "port"
	flagDebug       = "debug"
	flagLogLevel    = "log-level"
	flagWriteConfig = "write-config"
	flagAngle       = "angle"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel)

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "basebot:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a turn-and-drive asked to go the wrong way in debug
// mode, 1 for anything else.
func exitCode(err error) int {
	var dirErr *gyrodrive.InvalidHeadingDirectionError
	if errors.As(err, &dirErr) {
		return 2
	}
	return 1
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:            "basebot",
		Usage:           "drive the FLL base robot",
		Version:         baserobot.Version,
		Writer:          out,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "basebot.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "hub backend, sim or spike",
			},
			&cli.StringFlag{
				Name:  flagPort,
				Usage: "serial `DEVICE` of the SPIKE hub",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "validation mode: reject turns in the wrong direction",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  flagWriteConfig,
				Usage: "write the effective configuration next to the config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a mission",
				ArgsUsage: "<mission>",
				Action:    runAction,
			},
			{
				Name:   "missions",
				Usage:  "list the missions",
				Action: missionsAction,
			},
			{
				Name:  "calibrate-turn",
				Usage: "turn and report the overshoot, for turn_compensation",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  flagAngle,
						Value: 90,
						Usage: "turn `DEGREES`, clockwise positive",
					},
				},
				Action: calibrateTurnAction,
			},
			{
				Name:   "simhub",
				Usage:  "serve a simulated hub on a pseudo-terminal",
				Action: simHubAction,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, baserobot.Version)
					return nil
				},
			},
		},
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: basebot run <mission>")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := mission.Lookup(s.logger, c.Args().First())
	if err != nil {
		return err
	}
	s.logger.Infof("----- %s -----", m.Name())
	start := time.Now()
	if err := mission.Start(c.Context, s.robot, m); err != nil {
		return err
	}
	s.logger.Infof("%s done in %v", m.Name(), time.Since(start).Round(time.Millisecond))
	return nil
}

func missionsAction(c *cli.Context) error {
	logger, err := newLogger(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	for _, m := range mission.All(logger) {
		fmt.Fprintf(c.App.Writer, "%-12s %s\n", m.Name(), m.Description())
	}
	return nil
}

func calibrateTurnAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	angle := c.Float64(flagAngle)
	if err := s.robot.ResetHeading(); err != nil {
		return err
	}
	if err := s.robot.GyroTurn(c.Context, angle); err != nil {
		return err
	}
	// Let the robot come to rest before reading.
	s.robot.Wait(500 * time.Millisecond)
	h, err := s.robot.Heading()
	if err != nil {
		return err
	}
	overshoot := h - angle
	if angle < 0 {
		overshoot = angle - h
	}
	side := "right"
	if angle < 0 {
		side = "left"
	}
	fmt.Fprintf(c.App.Writer, "asked for %.1f, turned %.1f: overshoot %.1f\n", angle, h, overshoot)
	fmt.Fprintf(c.App.Writer, "suggested turn_compensation.%s: %.1f\n", side, overshoot)
	return nil
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}()
}
