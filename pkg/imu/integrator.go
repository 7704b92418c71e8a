package imu

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/hardware"
)

// SamplePeriod is the FIFO sample spacing with the DLPF enabled.
const SamplePeriod = time.Millisecond * (SampleRateDiv + 1)

// Gyro is the part of the IMU that the integrator reads.
type Gyro interface {
	ReadFIFO() ([]int16, error)
	ResetFIFO() error
	DegreesPerLSB() float64
}

// YawIntegrator integrates the gyro FIFO into a heading.  Positive yaw is
// clockwise seen from above, which is negative rotation about the board's
// Z axis.
type YawIntegrator struct {
	logger *zap.SugaredLogger
	gyro   Gyro

	lock sync.Mutex
	yaw  float64
	// Slowly tracked zero-rate drift, only updated while nearly still.
	drift float64
	err   error
}

var _ hardware.HeadingSensor = (*YawIntegrator)(nil)

func NewYawIntegrator(logger *zap.SugaredLogger, gyro Gyro) *YawIntegrator {
	return &YawIntegrator{
		logger: logger.Named("yaw"),
		gyro:   gyro,
	}
}

// LoopReadingFIFO polls the FIFO every interval until ctx is done.  Read
// errors are reported by the next call to Yaw.
func (y *YawIntegrator) LoopReadingFIFO(ctx context.Context, interval time.Duration) {
	if err := y.gyro.ResetFIFO(); err != nil {
		y.setErr(err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := y.Poll(); err != nil {
			y.logger.Warnf("gyro read failed: %v", err)
		}
	}
}

// Poll integrates whatever samples are waiting.
func (y *YawIntegrator) Poll() error {
	samples, err := y.gyro.ReadFIFO()
	if err != nil {
		y.setErr(err)
		return err
	}
	scale := y.gyro.DegreesPerLSB()
	y.lock.Lock()
	defer y.lock.Unlock()
	y.err = nil
	for _, s := range samples {
		rate := float64(s) * scale
		if math.Abs(rate) < 0.1 {
			y.drift = y.drift*0.999 + 0.001*rate
		}
		y.yaw -= SamplePeriod.Seconds() * (rate - y.drift)
	}
	return nil
}

func (y *YawIntegrator) setErr(err error) {
	y.lock.Lock()
	defer y.lock.Unlock()
	y.err = err
}

func (y *YawIntegrator) ResetYaw() error {
	y.lock.Lock()
	defer y.lock.Unlock()
	y.yaw = 0
	return nil
}

func (y *YawIntegrator) Yaw() (float64, error) {
	y.lock.Lock()
	defer y.lock.Unlock()
	if y.err != nil {
		return 0, errors.Wrap(y.err, "gyro")
	}
	return y.yaw, nil
}
