package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/ports"
)

// Register map, for N zones and the selected step:
//
//	HR 0, 1         selected step, uint32 high word first (read/write)
//	HR 2, 3         number of recorded steps, uint32 high word first
//	IR 0..N-1       zone temperatures, °C x100
//	IR N, N+1       exterior and ground temperatures, °C x100
//	IR N+2..2N+1    heater cooldown remaining, seconds
//	coils 0..N-1    heater on
type Config struct {
	Addr   string
	UnitID byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.TrajectoryService
	cfg Config

	mu       sync.Mutex
	selected int // -1 follows the last recorded step

	serv *mbserver.Server
}

func New(svc ports.TrajectoryService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{svc: svc, cfg: cfg, selected: -1}, nil
}

// Run starts the Modbus server. Reads are served from the selected step of
// the trajectory; the only writable registers are the step selector: FC16
// on HR 0..1 sets the full value, FC6 on HR 1 selects steps below 65536. It
// blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHoldingRegisters)
	serv.RegisterFunctionHandler(4, c.readInputRegisters)
	serv.RegisterFunctionHandler(5, readOnly)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(15, readOnly)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

// Selected returns the step currently exposed.
func (c *Controller) Selected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected < 0 {
		return c.svc.Len() - 1
	}
	return c.selected
}

func (c *Controller) selectStep(step int) error {
	if step < 0 || step >= c.svc.Len() {
		return fmt.Errorf("step %d outside 0..%d", step, c.svc.Len()-1)
	}
	c.mu.Lock()
	c.selected = step
	c.mu.Unlock()
	return nil
}

func (c *Controller) snapshot() (enclosure.Snapshot, *mbserver.Exception) {
	s, err := c.svc.Step(c.Selected())
	if err != nil {
		return enclosure.Snapshot{}, &mbserver.SlaveDeviceFailure
	}
	return s, nil
}

func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), 2000)
	if exc != nil {
		return []byte{}, exc
	}
	snap, exc := c.snapshot()
	if exc != nil {
		return []byte{}, exc
	}
	if start+qty > len(snap.HeatersOn) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	byteCount := (qty + 7) / 8
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i := 0; i < qty; i++ {
		if snap.HeatersOn[start+i] {
			resp[1+i/8] |= 1 << (i % 8)
		}
	}
	return resp, &mbserver.Success
}

func (c *Controller) readHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), 125)
	if exc != nil {
		return []byte{}, exc
	}
	all := append(splitUint32(c.Selected()), splitUint32(c.svc.Len())...)
	if start+qty > len(all) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	return encodeRegisters(all[start : start+qty]), &mbserver.Success
}

func (c *Controller) readInputRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), 125)
	if exc != nil {
		return []byte{}, exc
	}
	snap, exc := c.snapshot()
	if exc != nil {
		return []byte{}, exc
	}
	all := inputRegisters(snap)
	if start+qty > len(all) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	return encodeRegisters(all[start : start+qty]), &mbserver.Success
}

func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])
	if addr != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if err := c.selectStep(int(value)); err != nil {
		return []byte{}, &mbserver.IllegalDataValue
	}
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start != 0 || quantity != 2 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if err := c.selectStep(int(binary.BigEndian.Uint32(d[5:9]))); err != nil {
		return []byte{}, &mbserver.IllegalDataValue
	}
	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

// splitUint32 encodes v as two registers, high word first. Values outside
// the uint32 range are clamped.
func splitUint32(v int) []uint16 {
	u := uint32(min(max(v, 0), math.MaxUint32))
	return []uint16{uint16(u >> 16), uint16(u)}
}

func readOnly(_ *mbserver.Server, _ mbserver.Framer) ([]byte, *mbserver.Exception) {
	return []byte{}, &mbserver.IllegalFunction
}

func inputRegisters(s enclosure.Snapshot) []uint16 {
	n := len(s.Temperatures)
	regs := make([]uint16, 0, 2*n+2)
	for _, t := range s.Temperatures {
		regs = append(regs, encodeTemp(t))
	}
	regs = append(regs, encodeTemp(s.Exterior), encodeTemp(s.Ground))
	for _, cd := range s.Cooldowns {
		regs = append(regs, encodeSeconds(cd))
	}
	return regs
}

func readRange(data []byte, limit int) (int, int, *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start := int(binary.BigEndian.Uint16(data[0:2]))
	qty := int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > limit {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

func encodeRegisters(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

const TemperatureScale int = 100

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}

// encodeSeconds converts a duration in hours to whole seconds.
func encodeSeconds(hours float64) uint16 {
	return uint16(min(max(int(math.Round(hours*3600)), 0), math.MaxUint16))
}
