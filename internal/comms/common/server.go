package common

import (
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// ManagerTagSource adapts *tagmanager.Manager to whatever a protocol server
// needs without requiring every protocol package to import tagvalue.
type ManagerTagSource struct {
	Mgr *tagmanager.Manager
}

// ReadBinary returns the current bool value of tag.
func (a ManagerTagSource) ReadBinary(tag string) bool {
	return a.Mgr.GetByTag(tag).AsBool()
}

// ReadAnalog returns the current float64 value of tag.
func (a ManagerTagSource) ReadAnalog(tag string) float64 {
	return a.Mgr.GetByTag(tag).AsFloat64()
}

// EnqueueBinary pushes an incoming binary write into the Tag Manager's
// pending-update map.
func (a ManagerTagSource) EnqueueBinary(tag string, v bool) {
	a.Mgr.AddUpdatedBinary(tag, v)
}

// EnqueueAnalog pushes an incoming analog write into the Tag Manager's
// pending-update map.
func (a ManagerTagSource) EnqueueAnalog(tag string, v float64) {
	a.Mgr.AddUpdatedAnalog(tag, v)
}

// Server is the protocol-independent half of spec.md §4.5.1: the addressed
// binary/analog point maps and the generic add/write-handler bookkeeping
// that every protocol Server shares. Protocol packages embed Server and add
// their own wire-format-specific start/poll/publish logic around it.
type Server struct {
	Tags     ManagerTagSource
	protocol string

	binaryPoints *PointMap
	analogPoints *PointMap
}

// NewServer returns an empty Server bound to mgr, labelled protocol for
// logging (e.g. "modbus", "bacnet").
func NewServer(protocol string, mgr *tagmanager.Manager) *Server {
	return &Server{
		Tags:         ManagerTagSource{Mgr: mgr},
		protocol:     protocol,
		binaryPoints: NewPointMap(),
		analogPoints: NewPointMap(),
	}
}

// AddBinaryPoint maps addr to tag with the given direction. Returns false
// (and maps nothing) if tag is not known to the Tag Manager, matching
// spec.md §4.5.1's "returns true iff tag exists in the Tag Manager".
func (s *Server) AddBinaryPoint(addr uint16, tag string, dir PointDirection) bool {
	if _, known := s.tagKnown(tag); !known {
		return false
	}
	s.binaryPoints.Add(addr, tag, dir)
	return true
}

// AddAnalogPoint maps addr to tag with the given direction.
func (s *Server) AddAnalogPoint(addr uint16, tag string, dir PointDirection) bool {
	if _, known := s.tagKnown(tag); !known {
		return false
	}
	s.analogPoints.Add(addr, tag, dir)
	return true
}

func (s *Server) tagKnown(tag string) (tagmanager.Class, bool) {
	return s.Tags.Mgr.ClassOf(tag)
}

// BinaryPoints returns the server's binary point map.
func (s *Server) BinaryPoints() *PointMap { return s.binaryPoints }

// AnalogPoints returns the server's analog point map.
func (s *Server) AnalogPoints() *PointMap { return s.analogPoints }

// WriteBinary handles an incoming write PDU for addr: looks up the mapped
// tag and enqueues the pending update, or logs and drops if addr is
// unmapped (spec.md §4.5.1).
func (s *Server) WriteBinary(addr uint16, v bool) bool {
	pt, ok := s.binaryPoints.Lookup(addr)
	if !ok {
		log.Warnf("%s: write to unmapped binary address %d", s.protocol, addr)
		s.Tags.Mgr.Metrics().IncProtocolError(s.protocol, "unknown-address")
		return false
	}
	s.Tags.EnqueueBinary(pt.Tag, v)
	s.Tags.Mgr.Metrics().IncProtocolPDU(s.protocol, "in")
	return true
}

// WriteAnalog handles an incoming write PDU for addr, already converted to
// engineering units by the caller (scaling, if any, is protocol-specific
// and inverted before reaching here per spec.md §4.5.1).
func (s *Server) WriteAnalog(addr uint16, v float64) bool {
	pt, ok := s.analogPoints.Lookup(addr)
	if !ok {
		log.Warnf("%s: write to unmapped analog address %d", s.protocol, addr)
		s.Tags.Mgr.Metrics().IncProtocolError(s.protocol, "unknown-address")
		return false
	}
	s.Tags.EnqueueAnalog(pt.Tag, v)
	s.Tags.Mgr.Metrics().IncProtocolPDU(s.protocol, "in")
	return true
}

// RefreshDatastore is the periodic update thread's body (spec.md §4.5.1):
// for every mapped Input point whose tag exists, read its current Tag
// Manager value and hand it to push, so the protocol's local datastore (and
// any event-driven subscribers) stay current between polls.
func (s *Server) RefreshDatastore(push func(addr uint16, binary bool, status bool, value float64)) {
	for _, addr := range s.binaryPoints.Addresses() {
		pt, _ := s.binaryPoints.Lookup(addr)
		if pt.Direction != Input {
			continue
		}
		push(addr, true, s.Tags.ReadBinary(pt.Tag), 0)
	}
	for _, addr := range s.analogPoints.Addresses() {
		pt, _ := s.analogPoints.Lookup(addr)
		if pt.Direction != Input {
			continue
		}
		push(addr, false, false, s.Tags.ReadAnalog(pt.Tag))
	}
}
