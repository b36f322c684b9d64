// Package dnp3 implements the DNP3 Server (outstation) and Client (master)
// adapters (spec.md §4.5.3). spec.md §6 treats wire codecs as contract-level
// only ("enough to ensure an implementation can plug in existing codec
// libraries"); no pure-Go DNP3 master/outstation stack exists in the
// retrieved example pack or is a commonly known ecosystem package, so the
// fragment/ASDU framing here is hand-rolled with encoding/binary in the
// identifier+payload structuring style of rob-gra/go-iecp5's asdu package
// (see DESIGN.md for the stdlib justification) rather than fabricating a
// dependency that was never in the corpus.
package dnp3

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// functionCode identifies an outstation-bound application-layer request.
type functionCode uint8

const (
	fcRead          functionCode = 1
	fcWrite         functionCode = 2
	fcDirectOperate functionCode = 3
	fcSelect        functionCode = 4
	fcOperate       functionCode = 5
)

// Server is the DNP3 outstation: an addressed binary/analog point table
// (with per-point class and SBO-capability) plus the Select-Before-Operate
// state machine on its controllable outputs (spec.md §4.5.3).
type Server struct {
	*common.Server
	localAddress uint16

	mu      sync.Mutex
	points  map[uint16]pointConfig // binary+analog addresses share one DNP3 address space
	sboCtrl map[uint16]*sboControl

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer returns an empty outstation bound to mgr at localAddress.
func NewServer(mgr *tagmanager.Manager, localAddress uint16) *Server {
	return &Server{
		Server:       common.NewServer("dnp3", mgr),
		localAddress: localAddress,
		points:       make(map[uint16]pointConfig),
		sboCtrl:      make(map[uint16]*sboControl),
	}
}

// AddBinaryInput maps addr to tag as a Class-scanned, read-only binary
// point.
func (s *Server) AddBinaryInput(addr uint16, tag string, class Class) bool {
	if !s.AddBinaryPoint(addr, tag, common.Input) {
		return false
	}
	s.mu.Lock()
	s.points[addr] = pointConfig{Class: class}
	s.mu.Unlock()
	return true
}

// AddBinaryOutput maps addr to tag as a controllable binary point, with or
// without SBO required.
func (s *Server) AddBinaryOutput(addr uint16, tag string, sbo bool) bool {
	if !s.AddBinaryPoint(addr, tag, common.Output) {
		return false
	}
	s.mu.Lock()
	s.points[addr] = pointConfig{SBOCapable: sbo}
	if sbo {
		s.sboCtrl[addr] = &sboControl{}
	}
	s.mu.Unlock()
	return true
}

// AddAnalogInput maps addr to tag as a Class-scanned, read-only analog
// point.
func (s *Server) AddAnalogInput(addr uint16, tag string, class Class) bool {
	if !s.AddAnalogPoint(addr, tag, common.Input) {
		return false
	}
	s.mu.Lock()
	s.points[addr] = pointConfig{Class: class}
	s.mu.Unlock()
	return true
}

// AddAnalogOutput maps addr to tag as a controllable analog (setpoint)
// point.
func (s *Server) AddAnalogOutput(addr uint16, tag string, sbo bool) bool {
	if !s.AddAnalogPoint(addr, tag, common.Output) {
		return false
	}
	s.mu.Lock()
	s.points[addr] = pointConfig{SBOCapable: sbo}
	if sbo {
		s.sboCtrl[addr] = &sboControl{}
	}
	s.mu.Unlock()
	return true
}

// ClassOf reports the event class a mapped input point was registered
// with, for a master that wants to prioritize its scanning by class.
func (s *Server) ClassOf(addr uint16) (Class, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.points[addr]
	return pc.Class, ok
}

// Start binds endpoint ("tcp://host:port") and begins accepting master
// connections.
func (s *Server) Start(endpoint string) error {
	addr, err := common.TCPAddr(endpoint)
	if err != nil {
		return fmt.Errorf("dnp3: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dnp3: bind %s: %w", endpoint, err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every accepted connection.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	for {
		fc, addr, payload, err := readFragment(conn)
		if err != nil {
			return
		}
		resp := s.dispatch(fc, addr, payload)
		if err := writeFragment(conn, resp.fc, addr, resp.payload); err != nil {
			log.Warnf("dnp3: write to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

type fragment struct {
	fc      functionCode
	payload []byte
}

// pointKnown reports whether addr is mapped in either point space.
func (s *Server) pointKnown(addr uint16, binary bool) bool {
	if binary {
		_, ok := s.BinaryPoints().Lookup(addr)
		return ok
	}
	_, ok := s.AnalogPoints().Lookup(addr)
	return ok
}

// Select arms the Select-Before-Operate control for addr, the select half
// of the spec.md §4.5.3 two-phase write. OUT_OF_RANGE for an unmapped
// address; points with no SBO requirement still accept (and ignore) a
// Select, matching a real outstation's tolerance of a harmless Select on a
// direct-operate-only point.
func (s *Server) Select(addr uint16, binary bool) commandResult {
	if !s.pointKnown(addr, binary) {
		return resultOutOfRange
	}
	s.mu.Lock()
	ctrl, ok := s.sboCtrl[addr]
	s.mu.Unlock()
	if ok {
		ctrl.Select()
	}
	return resultSuccess
}

// Operate applies a command to a binary or analog output, enforcing the SBO
// state machine: OUT_OF_RANGE for an unmapped address, NO_SELECT when SBO
// is required but opType != SelectBeforeOperate or no prior Select is
// outstanding (spec.md §4.5.3).
func (s *Server) Operate(addr uint16, binary bool, bval bool, fval float64, opType OperateType) commandResult {
	if !s.pointKnown(addr, binary) {
		return resultOutOfRange
	}

	s.mu.Lock()
	ctrl, sboRequired := s.sboCtrl[addr]
	s.mu.Unlock()

	if sboRequired {
		if res := ctrl.Operate(opType); res != resultSuccess {
			return res
		}
	}

	if binary {
		s.WriteBinary(addr, bval)
	} else {
		s.WriteAnalog(addr, fval)
	}
	return resultSuccess
}

func (s *Server) dispatch(fc functionCode, addr uint16, payload []byte) fragment {
	switch fc {
	case fcRead:
		if pt, ok := s.BinaryPoints().Lookup(addr); ok {
			v := s.Tags.ReadBinary(pt.Tag)
			return fragment{fc: fcRead, payload: encodeBinary(v)}
		}
		if pt, ok := s.AnalogPoints().Lookup(addr); ok {
			v := s.Tags.ReadAnalog(pt.Tag)
			return fragment{fc: fcRead, payload: encodeAnalog(v)}
		}
		return fragment{fc: fcRead, payload: []byte{byte(resultOutOfRange)}}
	case fcSelect:
		binaryKind, _, _ := decodeCommand(payload)
		res := s.Select(addr, binaryKind)
		return fragment{fc: fc, payload: []byte{byte(res)}}
	case fcDirectOperate, fcOperate:
		opType := DirectOperate
		if fc == fcOperate {
			opType = SelectBeforeOperate
		}
		binaryKind, bval, fval := decodeCommand(payload)
		res := s.Operate(addr, binaryKind, bval, fval, opType)
		return fragment{fc: fc, payload: []byte{byte(res)}}
	default:
		return fragment{fc: fc, payload: []byte{byte(resultOutOfRange)}}
	}
}

func encodeBinary(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func encodeAnalog(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func decodeCommand(payload []byte) (binaryKind bool, bval bool, fval float64) {
	if len(payload) == 1 {
		return true, payload[0] != 0, 0
	}
	if len(payload) == 8 {
		return false, false, math.Float64frombits(binary.BigEndian.Uint64(payload))
	}
	return true, false, 0
}
