package modbusctrl

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/testutil"
)

func findFreeTCPAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	a := l.Addr().String()
	_ = l.Close()
	return a
}

const startupDelay = 50 * time.Millisecond

func startTestController(t *testing.T) (*Controller, *testutil.FakeTrajectoryService, modbus.Client) {
	t.Helper()
	fs := testutil.NewFakeTrajectoryService()
	ctrl, client := startController(t, fs)
	return ctrl, fs, client
}

func startController(t *testing.T, fs *testutil.FakeTrajectoryService) (*Controller, modbus.Client) {
	t.Helper()
	addr := findFreeTCPAddr(t)

	ctrl, err := New(fs, Config{Addr: addr, UnitID: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := t.Context()
	go func() {
		_ = ctrl.Run(ctx)
	}()

	time.Sleep(startupDelay)

	handler := modbus.NewTCPClientHandler(addr)
	if err := handler.Connect(); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = handler.Close() })
	return ctrl, modbus.NewClient(handler)
}

func registers(res []byte) []uint16 {
	out := make([]uint16, len(res)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(res[i*2 : i*2+2])
	}
	return out
}

func TestNewValidation(t *testing.T) {
	fs := testutil.NewFakeTrajectoryService()
	if _, err := New(fs, Config{}); err == nil {
		t.Fatal("expected error when UnitID missing")
	}
	c, err := New(fs, Config{UnitID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.Addr != "127.0.0.1:1502" {
		t.Fatalf("expected default addr, got %q", c.cfg.Addr)
	}
	if c.Selected() != 2 {
		t.Fatalf("expected last step selected by default, got %d", c.Selected())
	}
}

func TestModbusControllerReads(t *testing.T) {
	_, fs, client := startTestController(t)

	res, err := client.ReadHoldingRegisters(0, 4)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	hr := registers(res)
	if hr[0] != 0 || hr[1] != 2 || hr[2] != 0 || hr[3] != 3 {
		t.Fatalf("expected selected=2 steps=3, got %v", hr)
	}
	if _, err := client.ReadHoldingRegisters(0, 5); err == nil {
		t.Fatal("expected illegal address past the holding registers")
	}

	res, err = client.ReadInputRegisters(0, 6)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	ir := registers(res)
	last := fs.Snapshots[2]
	if decodeTemp(ir[0]) != last.Temperatures[0] || decodeTemp(ir[1]) != last.Temperatures[1] {
		t.Fatalf("zone temperatures mismatch: %v", ir)
	}
	if decodeTemp(ir[2]) != last.Exterior || decodeTemp(ir[3]) != last.Ground {
		t.Fatalf("boundary temperatures mismatch: %v", ir)
	}
	if ir[4] != 300 || ir[5] != 0 {
		t.Fatalf("expected cooldowns 300s and 0s, got %d %d", ir[4], ir[5])
	}

	if _, err := client.ReadInputRegisters(0, 7); err == nil {
		t.Fatal("expected illegal address past the register map")
	}
}

func TestModbusControllerSelectStep(t *testing.T) {
	ctrl, fs, client := startTestController(t)

	if _, err := client.WriteSingleRegister(1, 1); err != nil {
		t.Fatalf("write register: %v", err)
	}
	if ctrl.Selected() != 1 {
		t.Fatalf("expected step 1 selected, got %d", ctrl.Selected())
	}

	res, err := client.ReadInputRegisters(0, 1)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if decodeTemp(registers(res)[0]) != fs.Snapshots[1].Temperatures[0] {
		t.Fatalf("expected zone 1 temperature of step 1, got %v", registers(res))
	}

	coils, err := client.ReadCoils(0, 2)
	if err != nil {
		t.Fatalf("read coils: %v", err)
	}
	if len(coils) != 1 || coils[0] != 0x01 {
		t.Fatalf("expected heater 1 on only, got %08b", coils)
	}

	if _, err := client.WriteMultipleRegisters(0, 2, []byte{0x00, 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("write multiple: %v", err)
	}
	if ctrl.Selected() != 0 {
		t.Fatalf("expected step 0 selected, got %d", ctrl.Selected())
	}
}

func TestModbusControllerRejectsWrites(t *testing.T) {
	ctrl, _, client := startTestController(t)

	if _, err := client.WriteSingleRegister(1, 99); err == nil {
		t.Fatal("expected illegal value for an unknown step")
	}
	if _, err := client.WriteSingleRegister(0, 0); err == nil {
		t.Fatal("expected the high word to be writable through FC16 only")
	}
	if _, err := client.WriteSingleRegister(3, 0); err == nil {
		t.Fatal("expected step count register to be read-only")
	}
	if _, err := client.WriteMultipleRegisters(0, 1, []byte{0x00, 0x00}); err == nil {
		t.Fatal("expected the selector to be written as a register pair")
	}
	if _, err := client.WriteSingleCoil(0, 0xFF00); err == nil {
		t.Fatal("expected heater coils to be read-only")
	}
	if ctrl.Selected() != 2 {
		t.Fatalf("rejected writes must not change the selection, got %d", ctrl.Selected())
	}
}

func TestModbusControllerLongRun(t *testing.T) {
	fs := testutil.NewFakeTrajectoryService()
	last := fs.Snapshots[len(fs.Snapshots)-1]
	for len(fs.Snapshots) < 70001 {
		fs.Snapshots = append(fs.Snapshots, last)
	}
	ctrl, client := startController(t, fs)

	res, err := client.ReadHoldingRegisters(0, 4)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	// 70000 = 0x00011170, 70001 = 0x00011171
	if hr := registers(res); hr[0] != 1 || hr[1] != 0x1170 || hr[2] != 1 || hr[3] != 0x1171 {
		t.Fatalf("expected selected=70000 steps=70001, got %v", hr)
	}

	if _, err := client.WriteMultipleRegisters(0, 2, []byte{0x00, 0x01, 0x00, 0x00}); err != nil {
		t.Fatalf("write multiple: %v", err)
	}
	if ctrl.Selected() != 65536 {
		t.Fatalf("expected step 65536 selected, got %d", ctrl.Selected())
	}
}

func TestSplitUint32(t *testing.T) {
	tests := []struct {
		in   int
		want [2]uint16
	}{
		{0, [2]uint16{0, 0}},
		{65535, [2]uint16{0, 0xFFFF}},
		{172801, [2]uint16{2, 0xA301}},
		{-1, [2]uint16{0, 0}},
	}
	for _, tt := range tests {
		got := splitUint32(tt.in)
		if got[0] != tt.want[0] || got[1] != tt.want[1] {
			t.Errorf("splitUint32(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeTemp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{21.25, 21.25},
		{-5.5, -5.5},
		{1000, 327.67},
		{-1000, -327.68},
	}
	for _, tt := range tests {
		if got := decodeTemp(encodeTemp(tt.in)); got != tt.want {
			t.Errorf("decodeTemp(encodeTemp(%v)) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInputRegistersLayout(t *testing.T) {
	regs := inputRegisters(enclosure.Snapshot{
		Temperatures: []float64{1, 2, 3},
		Exterior:     -1,
		Ground:       5,
		Cooldowns:    []float64{0, 1.0 / 60.0, 0},
	})
	if len(regs) != 8 {
		t.Fatalf("expected 2N+2 registers, got %d", len(regs))
	}
	if regs[6] != 60 {
		t.Fatalf("expected 60 s cooldown for zone 2, got %d", regs[6])
	}
}
