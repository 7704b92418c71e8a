// Package bno08x reads a BNO08x IMU in UART-RVC mode, where it streams yaw,
// pitch and roll over serial at 100Hz.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/angle"
	"github.com/fllteam24277/basebot/pkg/hardware"
)

const DefaultDevice = "/dev/ttyAMA0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

// A report older than this means the IMU has stopped talking.
const staleAfter = time.Second

var ErrNoReport = errors.New("no recent report from BNO08X")

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

// YawDegrees is the reported yaw, anticlockwise positive.
func (i IMUReport) YawDegrees() float64 {
	return float64(i.Yaw) / 100.0
}

type BNO08X struct {
	logger *zap.SugaredLogger
	now    func() time.Time

	lock       sync.Mutex
	lastReport IMUReport
	heading    angle.Unwrapper
	yaw        float64
	yawZero    float64
}

var _ hardware.HeadingSensor = (*BNO08X)(nil)

func New(logger *zap.SugaredLogger) *BNO08X {
	return &BNO08X{
		logger: logger.Named("bno08x"),
		now:    time.Now,
	}
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

func (b *BNO08X) ResetYaw() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.yawZero = b.yaw
	return nil
}

// Yaw is clockwise positive and accumulates past +/-180.
func (b *BNO08X) Yaw() (float64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.lastReport.Time.IsZero() || b.now().Sub(b.lastReport.Time) > staleAfter {
		return 0, ErrNoReport
	}
	return b.yaw - b.yawZero, nil
}

// LoopReadingReports reads from the serial device until ctx is done,
// reopening it after errors.
func (b *BNO08X) LoopReadingReports(ctx context.Context, device string) {
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx, device)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warnf("loop stopped; will retry: %v", err)
		time.Sleep(100 * time.Millisecond)
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context, device string) error {
	s, err := serial.Open(device, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", device)
	}
	defer s.Close()
	return b.ReadReports(ctx, s)
}

const packetLen = 19

var header = []byte{0xaa, 0xaa}

// ReadReports parses the RVC packet stream from r until it fails or ctx is
// done, resynchronising on the header after any corrupt packet.
func (b *BNO08X) ReadReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]byte, packetLen)
	synced := false
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !synced {
			peek, err := br.Peek(2)
			if err != nil {
				return errors.Wrap(err, "failed to read from serial")
			}
			if !bytes.Equal(peek, header) {
				if _, err := br.Discard(1); err != nil {
					return errors.Wrap(err, "failed to read from serial")
				}
				continue
			}
			synced = true
			b.logger.Debug("in sync with packet stream")
		}

		if _, err := io.ReadFull(br, buf); err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if !bytes.Equal(buf[:2], header) {
			b.logger.Warn("lost sync")
			synced = false
			continue
		}
		var checksum uint8
		for _, c := range buf[2 : packetLen-1] {
			checksum += c
		}
		if buf[packetLen-1] != checksum {
			b.logger.Warnf("bad checksum %x != %x", buf[packetLen-1], checksum)
			synced = false
			continue
		}
		b.setReport(decode(buf, b.now()))
	}
}

func decode(buf []byte, t time.Time) IMUReport {
	return IMUReport{
		Time:   t,
		Index:  buf[2],
		Yaw:    int16(binary.LittleEndian.Uint16(buf[3:5])),
		Pitch:  int16(binary.LittleEndian.Uint16(buf[5:7])),
		Roll:   int16(binary.LittleEndian.Uint16(buf[7:9])),
		XAccel: int16(binary.LittleEndian.Uint16(buf[9:11])),
		YAccel: int16(binary.LittleEndian.Uint16(buf[11:13])),
		ZAccel: int16(binary.LittleEndian.Uint16(buf[13:15])),
	}
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastReport = report
	b.yaw = -b.heading.Update(report.YawDegrees())
}
