package common

import (
	"errors"
	"sync"

	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// ErrSBONotSupported is returned by a Transport's Select methods when the
// underlying protocol has no Select-Before-Operate concept (e.g. Modbus).
var ErrSBONotSupported = errors.New("select-before-operate not supported by this protocol")

// Transport is what a protocol-specific Client Connection must implement so
// common.Connection can drive it generically. Each method issues one
// protocol PDU; Connection owns the tag<->address bookkeeping and optimistic
// local mirroring described in spec.md §4.5.2.
type Transport interface {
	WriteBinary(addr uint16, v bool) error
	WriteAnalog(addr uint16, v float64) error
	SelectBinary(addr uint16, v bool) error
	SelectAnalog(addr uint16, v float64) error
	PollBinary(addrs []uint16) (map[uint16]bool, error)
	PollAnalog(addrs []uint16) (map[uint16]float64, error)
}

// Connection is the protocol-independent shape of a Client's single
// connection to a remote server (spec.md §4.5.2): a register table, two
// address indexes, and a Transport that turns writes/polls into wire PDUs.
type Connection struct {
	transport Transport
	protocol  string

	mu         sync.RWMutex
	registers  map[string]*RegisterDescriptor
	binaryAddr *AddressIndex
	analogAddr *AddressIndex
}

// NewConnection returns a Connection driving transport, labelled protocol
// for logging/metrics (e.g. "modbus", "dnp3").
func NewConnection(protocol string, transport Transport) *Connection {
	return &Connection{
		transport:  transport,
		protocol:   protocol,
		registers:  make(map[string]*RegisterDescriptor),
		binaryAddr: NewAddressIndex(),
		analogAddr: NewAddressIndex(),
	}
}

// AddBinary registers a binary tag at its descriptor's address, in both the
// register table and the binary address index.
func (c *Connection) AddBinary(tag string, rd RegisterDescriptor) {
	rd.Tag = tag
	rd.Binary = true
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registers[tag] = &rd
	c.binaryAddr.Add(rd.Address, tag)
}

// AddAnalog registers an analog tag at its descriptor's address, in both the
// register table and the analog address index.
func (c *Connection) AddAnalog(tag string, rd RegisterDescriptor) {
	rd.Tag = tag
	rd.Binary = false
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registers[tag] = &rd
	c.analogAddr.Add(rd.Address, tag)
}

// UpdateBinary is called by the codec on inbound data: locate the mirrored
// register via the binary address index and overwrite its cached status.
func (c *Connection) UpdateBinary(addr uint16, status bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag, ok := c.binaryAddr.TagFor(addr)
	if !ok {
		log.Warnf("%s: update_binary for unmapped address %d", c.protocol, addr)
		return
	}
	if rd, ok := c.registers[tag]; ok {
		rd.Status = status
	}
}

// UpdateAnalog is called by the codec on inbound data: locate the mirrored
// register via the analog address index and overwrite its cached value.
func (c *Connection) UpdateAnalog(addr uint16, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag, ok := c.analogAddr.TagFor(addr)
	if !ok {
		log.Warnf("%s: update_analog for unmapped address %d", c.protocol, addr)
		return
	}
	if rd, ok := c.registers[tag]; ok {
		rd.Value = value
	}
}

// ReadRegisterByTag returns the cached descriptor for tag.
func (c *Connection) ReadRegisterByTag(tag string) StatusMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rd, ok := c.registers[tag]
	if !ok {
		return Errf("Unable to find tag -- %s", tag)
	}
	return Ok(*rd)
}

// WriteBinary resolves tag to a descriptor, issues the write PDU, and on
// success optimistically mirrors the written value locally.
func (c *Connection) WriteBinary(tag string, v bool) StatusMessage {
	c.mu.RLock()
	rd, ok := c.registers[tag]
	c.mu.RUnlock()
	if !ok {
		return Errf("Unable to find tag -- %s", tag)
	}
	if err := c.transport.WriteBinary(rd.Address, v); err != nil {
		return Errf("%s write failed for tag %s: %v", c.protocol, tag, err)
	}
	c.mu.Lock()
	rd.Status = v
	c.mu.Unlock()
	return Ok(*rd)
}

// WriteAnalog resolves tag to a descriptor, issues the write PDU, and on
// success optimistically mirrors the written value locally.
func (c *Connection) WriteAnalog(tag string, v float64) StatusMessage {
	c.mu.RLock()
	rd, ok := c.registers[tag]
	c.mu.RUnlock()
	if !ok {
		return Errf("Unable to find tag -- %s", tag)
	}
	if err := c.transport.WriteAnalog(rd.Address, v); err != nil {
		return Errf("%s write failed for tag %s: %v", c.protocol, tag, err)
	}
	c.mu.Lock()
	rd.Value = v
	c.mu.Unlock()
	return Ok(*rd)
}

// SelectBinary issues a Select-Before-Operate select for tag, where
// supported. Protocols without SBO (Modbus) return Fail with
// ErrSBONotSupported's text.
func (c *Connection) SelectBinary(tag string, v bool) StatusMessage {
	c.mu.RLock()
	rd, ok := c.registers[tag]
	c.mu.RUnlock()
	if !ok {
		return Errf("Unable to find tag -- %s", tag)
	}
	if err := c.transport.SelectBinary(rd.Address, v); err != nil {
		return Errf("%s select failed for tag %s: %v", c.protocol, tag, err)
	}
	return Ok(*rd)
}

// SelectAnalog issues a Select-Before-Operate select for tag, where
// supported.
func (c *Connection) SelectAnalog(tag string, v float64) StatusMessage {
	c.mu.RLock()
	rd, ok := c.registers[tag]
	c.mu.RUnlock()
	if !ok {
		return Errf("Unable to find tag -- %s", tag)
	}
	if err := c.transport.SelectAnalog(rd.Address, v); err != nil {
		return Errf("%s select failed for tag %s: %v", c.protocol, tag, err)
	}
	return Ok(*rd)
}

// Poll iterates over both address maps and issues read requests; decoded
// responses flow back through Update{Binary,Analog}. Transport read errors
// are logged and swallowed per spec.md §4.5's "log and continue" failure
// semantics; the next poll retries.
func (c *Connection) Poll() {
	c.mu.RLock()
	binaryAddrs := c.binaryAddr.Addresses()
	analogAddrs := c.analogAddr.Addresses()
	c.mu.RUnlock()

	if len(binaryAddrs) > 0 {
		results, err := c.transport.PollBinary(binaryAddrs)
		if err != nil {
			log.Warnf("%s: poll binary failed: %v", c.protocol, err)
		} else {
			for addr, v := range results {
				c.UpdateBinary(addr, v)
			}
		}
	}
	if len(analogAddrs) > 0 {
		results, err := c.transport.PollAnalog(analogAddrs)
		if err != nil {
			log.Warnf("%s: poll analog failed: %v", c.protocol, err)
		} else {
			for addr, v := range results {
				c.UpdateAnalog(addr, v)
			}
		}
	}
}

// Tags returns every tag currently registered on this connection.
func (c *Connection) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.registers))
	for t := range c.registers {
		out = append(out, t)
	}
	return out
}
