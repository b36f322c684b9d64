package iec104

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
)

// Client owns one Connection per remote outstation it interrogates (spec.md
// §4.5.3).
type Client struct {
	mu          sync.Mutex
	connections map[string]*Connection
}

// NewClient returns an empty IEC 60870-5-104 Client.
func NewClient() *Client {
	return &Client{connections: make(map[string]*Connection)}
}

// Connection is an IEC 60870-5-104 Client's connection to one outstation.
// Unlike Modbus/DNP3's request/response polling, IEC 104 is report-driven:
// a background reader goroutine continuously folds spontaneous and
// periodic M_DP_NA_1/M_ME_NC_1 reports into the cached registers, and
// Poll (via common.Connection) only harvests what that goroutine has
// already cached.
type Connection struct {
	*common.Connection
	transport *iec104Transport
}

// AddBinary registers tag at numeric address addr, mapped to information
// object address ioa.
func (c *Connection) AddBinary(tag string, addr uint16, ioa uint32) {
	c.transport.mu.Lock()
	c.transport.binaryIOA[addr] = ioa
	c.transport.ioaToBinaryAddr[ioAddress(ioa)] = addr
	c.transport.mu.Unlock()
	c.Connection.AddBinary(tag, common.RegisterDescriptor{Address: addr})
}

// AddAnalog registers tag at numeric address addr, mapped to information
// object address ioa.
func (c *Connection) AddAnalog(tag string, addr uint16, ioa uint32) {
	c.transport.mu.Lock()
	c.transport.analogIOA[addr] = ioa
	c.transport.ioaToAnalogAddr[ioAddress(ioa)] = addr
	c.transport.mu.Unlock()
	c.Connection.AddAnalog(tag, common.RegisterDescriptor{Address: addr})
}

// Connect dials endpoint ("tcp://host:port"), performs the STARTDT
// handshake, and starts the background report-reading goroutine.
func (c *Client) Connect(endpoint string, commonAddr uint16, timeout time.Duration) (*Connection, error) {
	addr, err := common.TCPAddr(endpoint)
	if err != nil {
		return nil, fmt.Errorf("iec104: %w", err)
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("iec104: connecting to %s: %w", endpoint, err)
	}

	t := &iec104Transport{
		conn:            conn,
		r:               bufio.NewReader(conn),
		commonAddr:      commonAddr,
		binaryIOA:       make(map[uint16]uint32),
		analogIOA:       make(map[uint16]uint32),
		ioaToBinaryAddr: make(map[ioAddress]uint16),
		ioaToAnalogAddr: make(map[ioAddress]uint16),
		binaryCache:     make(map[uint16]bool),
		analogCache:     make(map[uint16]float64),
	}

	if err := writeUFrame(conn, uStartDtActive); err != nil {
		conn.Close()
		return nil, fmt.Errorf("iec104: STARTDT to %s: %w", endpoint, err)
	}
	frame, err := readAPDU(t.r)
	if err != nil || frame.kind != uFrame || frame.function != uStartDtConfirm {
		conn.Close()
		return nil, fmt.Errorf("iec104: %s did not confirm STARTDT", endpoint)
	}

	cc := &Connection{
		Connection: common.NewConnection("iec104", t),
		transport:  t,
	}
	t.wg.Add(1)
	go t.readLoop()

	c.mu.Lock()
	c.connections[endpoint] = cc
	c.mu.Unlock()
	return cc, nil
}

// IntegrityScan issues a station interrogation (qualifier 20, "station
// interrogation (global)") on every connection (spec.md §4.5.3's "startup
// interrogation").
func (c *Client) IntegrityScan() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.connections))
	for _, cc := range c.connections {
		conns = append(conns, cc)
	}
	c.mu.Unlock()
	for _, cc := range conns {
		cc.transport.interrogate()
	}
}

// Close stops every connection's background reader and closes its socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.connections {
		cc.transport.close()
	}
	return nil
}

// iec104Transport implements common.Transport over the APCI/ASDU layer in
// apci.go/asdu.go.
type iec104Transport struct {
	mu         sync.Mutex
	conn       net.Conn
	r          *bufio.Reader
	commonAddr uint16
	sendSN     uint16
	rcvSN      uint16

	binaryIOA       map[uint16]uint32
	analogIOA       map[uint16]uint32
	ioaToBinaryAddr map[ioAddress]uint16
	ioaToAnalogAddr map[ioAddress]uint16

	cacheMu     sync.RWMutex
	binaryCache map[uint16]bool
	analogCache map[uint16]float64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (t *iec104Transport) sendI(asduBytes []byte) error {
	t.mu.Lock()
	sendSN, rcvSN := t.sendSN, t.rcvSN
	t.sendSN++
	t.mu.Unlock()
	return writeIFrame(t.conn, sendSN, rcvSN, asduBytes)
}

func (t *iec104Transport) interrogate() {
	asduBytes := encodeASDU(asdu{
		typeID:     typeIDInterrogate,
		numObjects: 1,
		cot:        cotActivation,
		commonAddr: t.commonAddr,
		objects:    []byte{0, 0, 0, 20},
	})
	_ = t.sendI(asduBytes)
}

func (t *iec104Transport) readLoop() {
	defer t.wg.Done()
	if t.stopCh == nil {
		t.stopCh = make(chan struct{})
	}
	for {
		frame, err := readAPDU(t.r)
		if err != nil {
			return
		}
		switch frame.kind {
		case uFrame:
			if frame.function == uTestFrActive {
				_ = writeUFrame(t.conn, uTestFrConfirm)
			}
		case iFrame:
			t.mu.Lock()
			t.rcvSN = frame.sendSN + 1
			rcvSN := t.rcvSN
			t.mu.Unlock()
			_ = writeSFrame(t.conn, rcvSN)
			t.applyReport(decodeASDU(frame.asdu))
		}
	}
}

func (t *iec104Transport) applyReport(a asdu) {
	switch a.typeID {
	case typeIDDoublePoint:
		objs := a.objects
		for len(objs) >= 4 {
			ioa, dp := decodeDoublePointObject(objs[:4])
			objs = objs[4:]
			t.mu.Lock()
			addr, ok := t.ioaToBinaryAddr[ioa]
			t.mu.Unlock()
			if ok {
				t.cacheMu.Lock()
				t.binaryCache[addr] = boolFromDoublePoint(dp)
				t.cacheMu.Unlock()
			}
		}
	case typeIDShortFloat:
		objs := a.objects
		for len(objs) >= 8 {
			ioa, v := decodeShortFloatObject(objs[:8])
			objs = objs[8:]
			t.mu.Lock()
			addr, ok := t.ioaToAnalogAddr[ioa]
			t.mu.Unlock()
			if ok {
				t.cacheMu.Lock()
				t.analogCache[addr] = v
				t.cacheMu.Unlock()
			}
		}
	}
}

func (t *iec104Transport) close() {
	t.stopOnce.Do(func() {
		if t.stopCh != nil {
			close(t.stopCh)
		}
	})
	t.conn.Close()
	t.wg.Wait()
}

func (t *iec104Transport) WriteBinary(addr uint16, v bool) error {
	t.mu.Lock()
	ioa, ok := t.binaryIOA[addr]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("iec104: unmapped binary address %d", addr)
	}
	asduBytes := encodeASDU(asdu{
		typeID:     typeIDDoubleCmd,
		numObjects: 1,
		cot:        cotActivation,
		commonAddr: t.commonAddr,
		objects:    encodeDoublePointObject(ioAddress(ioa), doublePointFromBool(v)),
	})
	return t.sendI(asduBytes)
}

func (t *iec104Transport) WriteAnalog(addr uint16, v float64) error {
	t.mu.Lock()
	ioa, ok := t.analogIOA[addr]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("iec104: unmapped analog address %d", addr)
	}
	asduBytes := encodeASDU(asdu{
		typeID:     typeIDShortSet,
		numObjects: 1,
		cot:        cotActivation,
		commonAddr: t.commonAddr,
		objects:    encodeShortFloatObject(ioAddress(ioa), v),
	})
	return t.sendI(asduBytes)
}

// SelectBinary/SelectAnalog: IEC 104 has no Select-Before-Operate concept
// (spec.md §4.5.3 only requires it for DNP3); direct command activation is
// the only write path.
func (t *iec104Transport) SelectBinary(addr uint16, v bool) error {
	return common.ErrSBONotSupported
}

func (t *iec104Transport) SelectAnalog(addr uint16, v float64) error {
	return common.ErrSBONotSupported
}

func (t *iec104Transport) PollBinary(addrs []uint16) (map[uint16]bool, error) {
	out := make(map[uint16]bool, len(addrs))
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	for _, addr := range addrs {
		if v, ok := t.binaryCache[addr]; ok {
			out[addr] = v
		}
	}
	return out, nil
}

func (t *iec104Transport) PollAnalog(addrs []uint16) (map[uint16]float64, error) {
	out := make(map[uint16]float64, len(addrs))
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	for _, addr := range addrs {
		if v, ok := t.analogCache[addr]; ok {
			out[addr] = v
		}
	}
	return out, nil
}
