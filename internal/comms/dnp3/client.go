package dnp3

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
)

// Client owns one Connection per remote outstation it polls (spec.md
// §4.5.2/§4.5.3).
type Client struct {
	mu          sync.Mutex
	connections map[string]*Connection
}

// NewClient returns an empty DNP3 Client.
func NewClient() *Client {
	return &Client{connections: make(map[string]*Connection)}
}

// Connection is a DNP3 Client's connection to one outstation: a
// common.Connection plus the per-point SBO-capability the transport needs
// to choose Direct-Operate vs. Select-then-Operate.
type Connection struct {
	*common.Connection
	transport *dnp3Transport
}

// AddBinary registers tag as a binary point at addr, optionally requiring
// Select-Before-Operate for writes.
func (c *Connection) AddBinary(tag string, addr uint16, sbo bool) {
	c.transport.mu.Lock()
	c.transport.sboAddrs[addr] = sbo
	c.transport.mu.Unlock()
	c.Connection.AddBinary(tag, common.RegisterDescriptor{Address: addr, SBOCapable: sbo})
}

// AddAnalog registers tag as an analog (setpoint) point at addr, optionally
// requiring Select-Before-Operate for writes.
func (c *Connection) AddAnalog(tag string, addr uint16, sbo bool) {
	c.transport.mu.Lock()
	c.transport.sboAddrs[addr] = sbo
	c.transport.mu.Unlock()
	c.Connection.AddAnalog(tag, common.RegisterDescriptor{Address: addr, SBOCapable: sbo})
}

// Connect dials endpoint ("tcp://host:port") and returns the new
// Connection. The scan rate is the caller's concern: the caller schedules
// IntegrityScan as a periodic job. The Client has no per-class scan; every
// scan reads every mapped point whatever its class.
func (c *Client) Connect(endpoint string, timeout time.Duration) (*Connection, error) {
	addr, err := common.TCPAddr(endpoint)
	if err != nil {
		return nil, fmt.Errorf("dnp3: %w", err)
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dnp3: connecting to %s: %w", endpoint, err)
	}

	t := &dnp3Transport{conn: conn, sboAddrs: make(map[uint16]bool)}
	cc := &Connection{
		Connection: common.NewConnection("dnp3", t),
		transport:  t,
	}

	c.mu.Lock()
	c.connections[endpoint] = cc
	c.mu.Unlock()
	return cc, nil
}

// IntegrityScan issues a Class 0 read across every mapped point on every
// connection (spec.md §4.5.3's "integrity scans per configured class").
func (c *Client) IntegrityScan() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.connections))
	for _, cc := range c.connections {
		conns = append(conns, cc)
	}
	c.mu.Unlock()
	for _, cc := range conns {
		cc.Poll()
	}
}

// Close closes every underlying transport connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for endpoint, cc := range c.connections {
		if err := cc.transport.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dnp3: closing %s: %w", endpoint, err)
		}
	}
	return firstErr
}

// dnp3Transport implements common.Transport over the hand-rolled fragment
// framing in frame.go. Each read/write issues one fragment round-trip.
type dnp3Transport struct {
	mu       sync.Mutex
	conn     net.Conn
	sboAddrs map[uint16]bool // addr -> SBO required
}

func (t *dnp3Transport) roundTrip(fc functionCode, addr uint16, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := writeFragment(t.conn, fc, addr, payload); err != nil {
		return nil, err
	}
	_, _, resp, err := readFragment(t.conn)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *dnp3Transport) operate(addr uint16, binaryPayload []byte) error {
	if t.sboAddrs[addr] {
		if _, err := t.roundTrip(fcSelect, addr, binaryPayload); err != nil {
			return err
		}
		resp, err := t.roundTrip(fcOperate, addr, binaryPayload)
		if err != nil {
			return err
		}
		return checkResult(resp)
	}
	resp, err := t.roundTrip(fcDirectOperate, addr, binaryPayload)
	if err != nil {
		return err
	}
	return checkResult(resp)
}

func checkResult(resp []byte) error {
	if len(resp) != 1 {
		return fmt.Errorf("dnp3: malformed command response")
	}
	if commandResult(resp[0]) != resultSuccess {
		return fmt.Errorf("dnp3: command failed: %s", commandResult(resp[0]))
	}
	return nil
}

func (t *dnp3Transport) WriteBinary(addr uint16, v bool) error {
	return t.operate(addr, encodeBinary(v))
}

func (t *dnp3Transport) WriteAnalog(addr uint16, v float64) error {
	return t.operate(addr, encodeAnalog(v))
}

// SelectBinary issues the Select half of a Select-Before-Operate sequence
// without following up with Operate; used by command-interface callers
// that explicitly want SBO's two-phase confirmation.
func (t *dnp3Transport) SelectBinary(addr uint16, v bool) error {
	_, err := t.roundTrip(fcSelect, addr, encodeBinary(v))
	return err
}

// SelectAnalog is the analog counterpart of SelectBinary.
func (t *dnp3Transport) SelectAnalog(addr uint16, v float64) error {
	_, err := t.roundTrip(fcSelect, addr, encodeAnalog(v))
	return err
}

func (t *dnp3Transport) PollBinary(addrs []uint16) (map[uint16]bool, error) {
	out := make(map[uint16]bool, len(addrs))
	for _, addr := range addrs {
		resp, err := t.roundTrip(fcRead, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dnp3: read binary %d: %w", addr, err)
		}
		if len(resp) == 1 {
			out[addr] = resp[0] != 0
		}
	}
	return out, nil
}

func (t *dnp3Transport) PollAnalog(addrs []uint16) (map[uint16]float64, error) {
	out := make(map[uint16]float64, len(addrs))
	for _, addr := range addrs {
		resp, err := t.roundTrip(fcRead, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dnp3: read analog %d: %w", addr, err)
		}
		if len(resp) == 8 {
			out[addr] = decodeAnalogResponse(resp)
		}
	}
	return out, nil
}
