package modbus

import (
	"fmt"
	"sync"
	"time"

	vetter "github.com/simonvetter/modbus"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
)

// Client owns one Connection per remote Modbus server it polls (spec.md
// §4.5.2).
type Client struct {
	mu          sync.Mutex
	connections map[string]*Connection
}

// NewClient returns an empty Modbus Client.
func NewClient() *Client {
	return &Client{connections: make(map[string]*Connection)}
}

// Connection is a Modbus Client's connection to one remote server: a
// common.Connection plus the holding-register scale table the transport
// needs to convert writes back to raw 16-bit values.
type Connection struct {
	*common.Connection
	transport *modbusTransport
}

// AddCoil registers tag as a read/write coil at addr.
func (c *Connection) AddCoil(tag string, addr uint16) {
	c.AddBinary(tag, common.RegisterDescriptor{Address: addr, SBOCapable: false})
}

// AddHoldingRegister registers tag as a read/write holding register at addr,
// scaled by scale on both read and write.
func (c *Connection) AddHoldingRegister(tag string, addr uint16, scale common.Scale) {
	c.transport.holdingScale[addr] = scale
	c.AddAnalog(tag, common.RegisterDescriptor{Address: addr, Scale: scale})
}

// AddInputRegister registers tag as a read-only, unscaled input register at
// addr.
func (c *Connection) AddInputRegister(tag string, addr uint16) {
	c.AddAnalog(tag, common.RegisterDescriptor{Address: addr})
}

// Connect dials endpoint ("tcp://host:port" or "rtu:///dev/ttyX?baud=9600")
// and returns the new Connection. The rate at which Poll should be driven is
// the caller's concern (the scan loop registers it as a periodic job).
func (c *Client) Connect(endpoint string, timeout time.Duration) (*Connection, error) {
	lib, err := vetter.NewClient(&vetter.ClientConfiguration{
		URL:     endpoint,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus: configuring client for %s: %w", endpoint, err)
	}
	if err := lib.Open(); err != nil {
		return nil, fmt.Errorf("modbus: connecting to %s: %w", endpoint, err)
	}

	t := &modbusTransport{lib: lib, holdingScale: make(map[uint16]common.Scale)}
	conn := &Connection{
		Connection: common.NewConnection("modbus", t),
		transport:  t,
	}

	c.mu.Lock()
	c.connections[endpoint] = conn
	c.mu.Unlock()
	return conn, nil
}

// PollAll drives every connection's poll cycle once.
func (c *Client) PollAll() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.connections))
	for _, conn := range c.connections {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Poll()
	}
}

// Close closes every underlying transport connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for endpoint, conn := range c.connections {
		if err := conn.transport.lib.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("modbus: closing %s: %w", endpoint, err)
		}
	}
	return firstErr
}

// modbusTransport implements common.Transport against a real
// simonvetter/modbus client. Per-address reads/writes are issued
// individually rather than batched into ranges, trading efficiency for
// straightforward address-map-driven polling (spec.md §4.5.2's poll()).
type modbusTransport struct {
	mu           sync.Mutex
	lib          *vetter.Client
	holdingScale map[uint16]common.Scale
}

func (t *modbusTransport) WriteBinary(addr uint16, v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lib.WriteCoil(addr, v)
}

func (t *modbusTransport) WriteAnalog(addr uint16, v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	scale, scaled := t.holdingScale[addr]
	raw := uint16(v)
	if scaled {
		raw = scale.FromEngineering(v)
	}
	return t.lib.WriteRegister(addr, raw)
}

// SelectBinary is not meaningful for Modbus (no Select-Before-Operate
// concept); every write is a direct operate.
func (t *modbusTransport) SelectBinary(addr uint16, v bool) error {
	return common.ErrSBONotSupported
}

// SelectAnalog is not meaningful for Modbus.
func (t *modbusTransport) SelectAnalog(addr uint16, v float64) error {
	return common.ErrSBONotSupported
}

func (t *modbusTransport) PollBinary(addrs []uint16) (map[uint16]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint16]bool, len(addrs))
	for _, addr := range addrs {
		vals, err := t.lib.ReadCoils(addr, 1)
		if err != nil {
			return nil, fmt.Errorf("reading coil %d: %w", addr, err)
		}
		if len(vals) > 0 {
			out[addr] = vals[0]
		}
	}
	return out, nil
}

func (t *modbusTransport) PollAnalog(addrs []uint16) (map[uint16]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint16]float64, len(addrs))
	for _, addr := range addrs {
		vals, err := t.lib.ReadRegisters(addr, 1, vetter.HOLDING_REGISTER)
		if err != nil {
			return nil, fmt.Errorf("reading holding register %d: %w", addr, err)
		}
		if len(vals) == 0 {
			continue
		}
		if scale, ok := t.holdingScale[addr]; ok {
			out[addr] = scale.ToEngineering(vals[0])
		} else {
			out[addr] = float64(vals[0])
		}
	}
	return out, nil
}
