package imu

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type fakeRegs struct {
	regs   map[byte][]byte
	writes [][]byte
	fail   error
}

func (f *fakeRegs) ReadReg(reg byte, buf []byte) error {
	if f.fail != nil {
		return f.fail
	}
	copy(buf, f.regs[reg])
	return nil
}

func (f *fakeRegs) WriteReg(reg byte, buf []byte) error {
	f.writes = append(f.writes, append([]byte{reg}, buf...))
	return f.fail
}

func TestConfigureSPI(t *testing.T) {
	regs := &fakeRegs{}
	m := &IMU{logger: zap.NewNop().Sugar(), dev: regs, disableI2C: true}
	if err := m.Configure(); err != nil {
		t.Fatal(err)
	}
	expected := [][]byte{
		{RegUserCtl, 0x10},
		{RegGyroConf, GyroRange << 3},
		{RegConfig, 1},
		{RegSampleRateDiv, SampleRateDiv},
		{RegFIFOEnable, 0x10},
	}
	if diff := cmp.Diff(expected, regs.writes); diff != "" {
		t.Errorf("Unexpected register writes (-want +got):\n%s", diff)
	}
}

func TestReadFIFO(t *testing.T) {
	regs := &fakeRegs{regs: map[byte][]byte{
		// Five bytes waiting; the odd one is left for next time.
		RegFIFOCount: {0x00, 0x05},
		RegFIFORW:    {0x00, 0x10, 0xff, 0xfe, 0x7f},
	}}
	m := &IMU{logger: zap.NewNop().Sugar(), dev: regs}
	samples, err := m.ReadFIFO()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int16{16, -2}, samples); diff != "" {
		t.Errorf("Unexpected samples (-want +got):\n%s", diff)
	}

	regs.regs[RegFIFOCount] = []byte{0, 0}
	samples, err = m.ReadFIFO()
	if err != nil || len(samples) != 0 {
		t.Errorf("Expected no samples from an empty FIFO, got %v, %v", samples, err)
	}
}

func TestReadErrors(t *testing.T) {
	regs := &fakeRegs{fail: errors.New("bus fault")}
	m := &IMU{logger: zap.NewNop().Sugar(), dev: regs}
	if _, err := m.ReadFIFO(); err == nil {
		t.Error("Expected FIFO read to fail")
	}
	if err := m.Configure(); err == nil {
		t.Error("Expected Configure to fail")
	}
}

type fakeGyro struct {
	batches [][]int16
	err     error
}

func (g *fakeGyro) ReadFIFO() ([]int16, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.batches) == 0 {
		return nil, nil
	}
	b := g.batches[0]
	g.batches = g.batches[1:]
	return b, nil
}

func (g *fakeGyro) ResetFIFO() error { return nil }

// One LSB per degree per second keeps the arithmetic readable.
func (g *fakeGyro) DegreesPerLSB() float64 { return 1 }

func TestYawIntegrates(t *testing.T) {
	// 100 samples at -90 deg/s around Z is one second of clockwise turn.
	batch := make([]int16, 100)
	for i := range batch {
		batch[i] = -90
	}
	g := &fakeGyro{batches: [][]int16{batch}}
	y := NewYawIntegrator(zap.NewNop().Sugar(), g)

	if err := y.Poll(); err != nil {
		t.Fatal(err)
	}
	yaw, err := y.Yaw()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(yaw-90) > 1e-9 {
		t.Errorf("Expected yaw 90 after one second at 90 deg/s, got %v", yaw)
	}

	if err := y.ResetYaw(); err != nil {
		t.Fatal(err)
	}
	if yaw, _ := y.Yaw(); yaw != 0 {
		t.Errorf("Expected 0 after reset, got %v", yaw)
	}
}

func TestYawReportsReadErrors(t *testing.T) {
	g := &fakeGyro{err: errors.New("bus fault")}
	y := NewYawIntegrator(zap.NewNop().Sugar(), g)
	if err := y.Poll(); err == nil {
		t.Fatal("Expected Poll to fail")
	}
	if _, err := y.Yaw(); err == nil {
		t.Error("Expected Yaw to report the read error")
	}

	g.err = nil
	if err := y.Poll(); err != nil {
		t.Fatal(err)
	}
	if _, err := y.Yaw(); err != nil {
		t.Errorf("Expected the error to clear after a good read, got %v", err)
	}
}
