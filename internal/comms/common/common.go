// Package common holds the contracts shared by every protocol adapter
// (spec.md §4.5.1/§4.5.2): the Server side's addressed point maps and the
// Client side's per-tag register descriptors, plus the StatusMessage result
// type returned by tag reads/writes across the command interface and every
// protocol Connection.
package common

import (
	"fmt"
	"strings"
)

// PointDirection says whether an addressed protocol point is read from the
// Tag Manager into the wire protocol (Input) or written from the wire
// protocol into the Tag Manager (Output).
type PointDirection int

const (
	Input PointDirection = iota
	Output
)

func (d PointDirection) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Point binds one addressed protocol point to a tag and its direction.
type Point struct {
	Tag       string
	Direction PointDirection
}

// Scale describes a Modbus-style linear engineering-range mapping between a
// wire integer range and a tag's engineering value range.
type Scale struct {
	Min, Max float64 // engineering-unit range
}

// ToEngineering maps a raw 16-bit register value (0..65535) to this scale's
// engineering range.
func (s Scale) ToEngineering(raw uint16) float64 {
	if s.Max == s.Min {
		return s.Min
	}
	frac := float64(raw) / 65535.0
	return s.Min + frac*(s.Max-s.Min)
}

// FromEngineering maps an engineering value back to a raw 16-bit register
// value, clamped to [0, 65535].
func (s Scale) FromEngineering(v float64) uint16 {
	if s.Max == s.Min {
		return 0
	}
	frac := (v - s.Min) / (s.Max - s.Min)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return uint16(frac*65535.0 + 0.5)
}

// RegisterDescriptor is a Client Connection's cached mirror of one remote
// point (spec.md §4.5.2): the point's address, its current cached value, and
// enough metadata to re-issue a write.
type RegisterDescriptor struct {
	Tag        string
	Address    uint16
	Binary     bool
	Status     bool    // valid when Binary
	Value      float64 // valid when !Binary
	Scale      Scale   // analog engineering range, if any
	SBOCapable bool    // supports Select-Before-Operate
}

// StatusKind distinguishes a StatusMessage's payload shape for formatting
// in command-interface responses (spec.md §4.6).
type StatusKind int

const (
	Success StatusKind = iota
	Fail
)

// StatusMessage is the uniform result of a tag read/write across every
// protocol Connection and the command interface.
type StatusMessage struct {
	Kind       StatusKind
	Descriptor RegisterDescriptor
	Diagnostic string
}

// Ok builds a Success StatusMessage carrying rd.
func Ok(rd RegisterDescriptor) StatusMessage {
	return StatusMessage{Kind: Success, Descriptor: rd}
}

// Errf builds a Fail StatusMessage with a formatted diagnostic.
func Errf(format string, args ...interface{}) StatusMessage {
	return StatusMessage{Kind: Fail, Diagnostic: fmt.Sprintf(format, args...)}
}

// IsOK reports whether m represents success.
func (m StatusMessage) IsOK() bool { return m.Kind == Success }

// PointMap is the Server's addressed-point table for one point class
// (binary or analog), keyed by protocol address (spec.md §4.5.1).
type PointMap struct {
	points map[uint16]Point
}

// NewPointMap returns an empty PointMap.
func NewPointMap() *PointMap {
	return &PointMap{points: make(map[uint16]Point)}
}

// Add registers addr -> (tag, dir). Callers are expected to have already
// verified tag exists in the Tag Manager per spec.md §4.5.1's
// add_binary_input/output contract ("returns true iff tag exists").
func (p *PointMap) Add(addr uint16, tag string, dir PointDirection) {
	p.points[addr] = Point{Tag: tag, Direction: dir}
}

// Lookup returns the point at addr, if mapped.
func (p *PointMap) Lookup(addr uint16) (Point, bool) {
	pt, ok := p.points[addr]
	return pt, ok
}

// Addresses returns every mapped address.
func (p *PointMap) Addresses() []uint16 {
	out := make([]uint16, 0, len(p.points))
	for a := range p.points {
		out = append(out, a)
	}
	return out
}

// Len reports the number of mapped addresses.
func (p *PointMap) Len() int { return len(p.points) }

// AddressIndex is the Client Connection's address->tag lookup for one point
// class, the mirror-image of PointMap (spec.md §4.5.2).
type AddressIndex struct {
	byAddr map[uint16]string
}

// NewAddressIndex returns an empty AddressIndex.
func NewAddressIndex() *AddressIndex {
	return &AddressIndex{byAddr: make(map[uint16]string)}
}

// Add records addr -> tag.
func (a *AddressIndex) Add(addr uint16, tag string) { a.byAddr[addr] = tag }

// TagFor returns the tag mirrored at addr, if any.
func (a *AddressIndex) TagFor(addr uint16) (string, bool) {
	t, ok := a.byAddr[addr]
	return t, ok
}

// Addresses returns every address registered in this index.
func (a *AddressIndex) Addresses() []uint16 {
	out := make([]uint16, 0, len(a.byAddr))
	for addr := range a.byAddr {
		out = append(out, addr)
	}
	return out
}

// TCPAddr strips endpoint's "tcp://" scheme, if any, for adapters (DNP3,
// IEC 60870-5-104) whose transport is always bare TCP and that hand the
// result straight to net.Dial/net.Listen. Config endpoint strings are
// uniformly schemed (spec.md §6: "tcp://host:port, udp://host:port, or a
// serial device path"); any other scheme is rejected since these adapters
// have no UDP or serial mode.
func TCPAddr(endpoint string) (string, error) {
	if rest, ok := strings.CutPrefix(endpoint, "tcp://"); ok {
		return rest, nil
	}
	if strings.Contains(endpoint, "://") {
		return "", fmt.Errorf("common: endpoint %q is not a tcp:// address", endpoint)
	}
	return endpoint, nil
}
