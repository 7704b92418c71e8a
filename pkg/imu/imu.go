// Package imu reads yaw rate from an MPU-6000 family gyro on SPI or I2C.
package imu

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const (
	IMUAddr = 0x68

	RegSampleRateDiv = 25
	RegConfig        = 26
	RegGyroConf      = 27
	RegGyroZOffset   = 23
	RegFIFOEnable    = 35
	RegGyroZ         = 71 // 16 bits
	RegUserCtl       = 106
	RegFIFOCount     = 114 // 16 bits
	RegFIFORW        = 116 // n-bytes

	GyroRange = 2 // 1000 dps

	// DLPF on gives a 1kHz gyro rate, divided by SampleRateDiv+1.
	SampleRateDiv = 9
)

type Interface interface {
	Configure() error
	Calibrate() error
	ReadGyroZ() (int16, error)
	ReadFIFO() ([]int16, error)
	ResetFIFO() error
	DegreesPerLSB() float64
}

type port interface {
	// Read reads len(buf) bytes from the device.
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
}

type IMU struct {
	logger     *zap.SugaredLogger
	dev        port
	disableI2C bool
}

func NewI2C(logger *zap.SugaredLogger, deviceFile string) (*IMU, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, IMUAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open IMU on %s", deviceFile)
	}
	return &IMU{
		logger: logger.Named("imu"),
		dev:    dev,
	}, nil
}

func NewSPI(logger *zap.SugaredLogger, deviceFile string) (*IMU, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %s", deviceFile)
	}

	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		return nil, err
	}

	return &IMU{
		logger:     logger.Named("imu"),
		dev:        &SPIAdapter{c: c},
		disableI2C: true,
	}, nil
}

type SPIAdapter struct {
	c spi.Conn

	r, w []byte
}

const W = 0x00
const R = 0x80

func (s *SPIAdapter) ReadReg(reg byte, buf []byte) error {
	// The read and write buffers need to be as long as the whole transaction.
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = R | reg
	if err := s.c.Tx(s.w[:bufLen], s.r[:bufLen]); err != nil {
		return err
	}
	// The response only starts after the address byte.
	copy(buf, s.r[1:bufLen])
	return nil
}

func (s *SPIAdapter) WriteReg(reg byte, buf []byte) error {
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = W | reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:bufLen], s.r[:bufLen])
}

func (s *SPIAdapter) ensureBuf(l int) {
	if len(s.r) < l {
		s.w = make([]byte, l)
		s.r = make([]byte, l)
		return
	}
	for i := 0; i < l; i++ {
		s.w[i] = 0
		s.r[i] = 0
	}
}

func (m *IMU) writeRegs(writes ...[2]byte) error {
	for _, w := range writes {
		if err := m.dev.WriteReg(w[0], []byte{w[1]}); err != nil {
			return errors.Wrapf(err, "failed to write IMU register %d", w[0])
		}
	}
	return nil
}

func (m *IMU) Configure() error {
	if m.disableI2C {
		if err := m.writeRegs([2]byte{RegUserCtl, 0x10}); err != nil {
			return err
		}
	}
	return m.writeRegs(
		[2]byte{RegGyroConf, GyroRange << 3},
		[2]byte{RegConfig, 1},
		[2]byte{RegSampleRateDiv, SampleRateDiv},
		// Gyro Z only into the FIFO.
		[2]byte{RegFIFOEnable, 1 << 4},
	)
}

func (m *IMU) DegreesPerLSB() float64 {
	return 1000.0 / math.MaxInt16
}

// Calibrate averages the gyro at rest and writes the result to the offset
// register.  The robot must be still.
func (m *IMU) Calibrate() error {
	m.logger.Info("calibrating gyro")
	if err := m.dev.WriteReg(RegGyroZOffset, []byte{0, 0}); err != nil {
		return err
	}

	for i := 0; i < 100; i++ {
		if _, err := m.ReadGyroZ(); err != nil {
			return err
		}
	}

	var sum float64
	const n = 1000
	for i := 0; i < n; i++ {
		z, err := m.ReadGyroZ()
		if err != nil {
			return err
		}
		sum -= float64(z)
	}
	offset := sum / n
	scaledOffset := int16(offset / 4 * math.Pow(2, GyroRange))
	m.logger.Infof("gyro offset %.2f, scaled %d", offset, scaledOffset)
	return m.dev.WriteReg(RegGyroZOffset, []byte{byte(scaledOffset >> 8), byte(scaledOffset)})
}

func (m *IMU) ReadGyroZ() (int16, error) {
	return m.read16(RegGyroZ)
}

func (m *IMU) ResetFIFO() error {
	return m.dev.WriteReg(RegUserCtl, []byte{1<<6 | 1<<2})
}

// ReadFIFO drains whole samples from the FIFO; it returns an empty slice if
// none are waiting.
func (m *IMU) ReadFIFO() ([]int16, error) {
	count, err := m.read16(RegFIFOCount)
	if err != nil {
		return nil, err
	}
	var buf [512]byte
	n := int(count) & 0xfff
	if n > len(buf) {
		n = len(buf)
	}
	n &^= 1
	if n == 0 {
		return nil, nil
	}
	if err := m.dev.ReadReg(RegFIFORW, buf[:n]); err != nil {
		return nil, errors.Wrap(err, "failed to read IMU FIFO")
	}
	result := make([]int16, n/2)
	for i := range result {
		result[i] = int16(buf[i*2])<<8 | int16(buf[i*2+1])
	}
	return result, nil
}

func (m *IMU) read16(reg byte) (int16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "failed to read IMU register %d", reg)
	}
	return int16(buf[0])<<8 | int16(buf[1]), nil
}
