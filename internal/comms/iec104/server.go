package iec104

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pascaldekloe/part5/info"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// Server is the CS104 outstation: a point table addressed by information
// object address (IOA) plus a reverse-poll thread that periodically reports
// every mapped point to a connected master (spec.md §4.5.3).
type Server struct {
	*common.Server
	commonAddr uint16
	cfg        Config

	mu        sync.Mutex
	binaryIOA map[uint16]uint32 // DNP3-style numeric address -> IOA, binary side
	analogIOA map[uint16]uint32 // numeric address -> IOA, analog side

	ln       net.Listener
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer returns an empty outstation for common address commonAddr.
func NewServer(mgr *tagmanager.Manager, commonAddr uint16) *Server {
	return &Server{
		Server:     common.NewServer("iec104", mgr),
		commonAddr: commonAddr,
		cfg:        DefaultConfig(),
		binaryIOA:  make(map[uint16]uint32),
		analogIOA:  make(map[uint16]uint32),
		stopCh:     make(chan struct{}),
	}
}

// AddBinaryInput maps addr/ioa to tag as a double-point (M_DP_NA_1) monitor
// object.
func (s *Server) AddBinaryInput(addr uint16, ioa uint32, tag string) bool {
	if !s.AddBinaryPoint(addr, tag, common.Input) {
		return false
	}
	s.mu.Lock()
	s.binaryIOA[addr] = ioa
	s.mu.Unlock()
	return true
}

// AddBinaryOutput maps addr/ioa to tag as a double-command (C_DC_NA_1)
// controllable object.
func (s *Server) AddBinaryOutput(addr uint16, ioa uint32, tag string) bool {
	if !s.AddBinaryPoint(addr, tag, common.Output) {
		return false
	}
	s.mu.Lock()
	s.binaryIOA[addr] = ioa
	s.mu.Unlock()
	return true
}

// AddAnalogInput maps addr/ioa to tag as a short-float (M_ME_NC_1) monitor
// object.
func (s *Server) AddAnalogInput(addr uint16, ioa uint32, tag string) bool {
	if !s.AddAnalogPoint(addr, tag, common.Input) {
		return false
	}
	s.mu.Lock()
	s.analogIOA[addr] = ioa
	s.mu.Unlock()
	return true
}

// AddAnalogOutput maps addr/ioa to tag as a short-setpoint (C_SE_NC_1)
// controllable object.
func (s *Server) AddAnalogOutput(addr uint16, ioa uint32, tag string) bool {
	if !s.AddAnalogPoint(addr, tag, common.Output) {
		return false
	}
	s.mu.Lock()
	s.analogIOA[addr] = ioa
	s.mu.Unlock()
	return true
}

func (s *Server) ioaForBinary(addr uint16) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ioa, ok := s.binaryIOA[addr]
	return ioa, ok
}

func (s *Server) ioaForAnalog(addr uint16) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ioa, ok := s.analogIOA[addr]
	return ioa, ok
}

func (s *Server) binaryAddrForIOA(ioa ioAddress) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, v := range s.binaryIOA {
		if uint32(ioa) == v {
			return addr, true
		}
	}
	return 0, false
}

func (s *Server) analogAddrForIOA(ioa ioAddress) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, v := range s.analogIOA {
		if uint32(ioa) == v {
			return addr, true
		}
	}
	return 0, false
}

// Start binds endpoint ("tcp://host:port") and begins accepting master
// connections; each accepted connection gets its own reverse-poll reporting
// thread.
func (s *Server) Start(endpoint string) error {
	addr, err := common.TCPAddr(endpoint)
	if err != nil {
		return fmt.Errorf("iec104: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("iec104: bind %s: %w", endpoint, err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and stops the reporting thread.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
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

// sessionState tracks whether the master has activated data transfer
// (STARTDT) on this connection.
type sessionState struct {
	mu     sync.Mutex
	active bool
	sendSN uint16
	rcvSN  uint16
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sess := &sessionState{}
	r := bufio.NewReader(conn)

	reportStop := make(chan struct{})
	defer close(reportStop)
	go s.reportLoop(conn, sess, reportStop)

	for {
		frame, err := readAPDU(r)
		if err != nil {
			return
		}
		switch frame.kind {
		case uFrame:
			switch frame.function {
			case uStartDtActive:
				sess.mu.Lock()
				sess.active = true
				sess.mu.Unlock()
				if err := writeUFrame(conn, uStartDtConfirm); err != nil {
					return
				}
			case uStopDtActive:
				sess.mu.Lock()
				sess.active = false
				sess.mu.Unlock()
				if err := writeUFrame(conn, uStopDtConfirm); err != nil {
					return
				}
			case uTestFrActive:
				if err := writeUFrame(conn, uTestFrConfirm); err != nil {
					return
				}
			}
		case sFrame:
			// acknowledgment only; nothing to act on here.
		case iFrame:
			sess.mu.Lock()
			sess.rcvSN = frame.sendSN + 1
			sess.mu.Unlock()
			if err := writeSFrame(conn, sess.rcvSN); err != nil {
				return
			}
			s.handleASDU(conn, sess, decodeASDU(frame.asdu))
		}
	}
}

func (s *Server) handleASDU(conn net.Conn, sess *sessionState, a asdu) {
	switch a.typeID {
	case typeIDInterrogate:
		s.sendInterrogationResponse(conn, sess, a.cot)
	case typeIDDoubleCmd:
		ioa, dp := decodeDoublePointObject(a.objects)
		addr, ok := s.binaryAddrForIOA(ioa)
		if !ok {
			log.Warnf("iec104: double command for unmapped IOA %d", ioa)
			return
		}
		s.WriteBinary(addr, boolFromDoublePoint(dp))
	case typeIDShortSet:
		ioa, v := decodeShortFloatObject(a.objects)
		addr, ok := s.analogAddrForIOA(ioa)
		if !ok {
			log.Warnf("iec104: short setpoint for unmapped IOA %d", ioa)
			return
		}
		s.WriteAnalog(addr, v)
	default:
		log.Warnf("iec104: unhandled ASDU type %d", a.typeID)
	}
}

func (s *Server) sendAll(conn net.Conn, sess *sessionState, cot byte) {
	var binObjs, anaObjs [][]byte
	for addr := range s.binaryIOA {
		pt, ok := s.BinaryPoints().Lookup(addr)
		if !ok {
			continue
		}
		ioa, _ := s.ioaForBinary(addr)
		v := s.Tags.ReadBinary(pt.Tag)
		binObjs = append(binObjs, encodeDoublePointObject(ioAddress(ioa), doublePointFromBool(v)))
	}
	for addr := range s.analogIOA {
		pt, ok := s.AnalogPoints().Lookup(addr)
		if !ok {
			continue
		}
		ioa, _ := s.ioaForAnalog(addr)
		v := s.Tags.ReadAnalog(pt.Tag)
		anaObjs = append(anaObjs, encodeShortFloatObject(ioAddress(ioa), v))
	}

	for _, raw := range chunkObjects(info.TypeID(typeIDDoublePoint), cot, s.commonAddr, 4, binObjs) {
		s.sendI(conn, sess, raw)
	}
	for _, raw := range chunkObjects(info.TypeID(typeIDShortFloat), cot, s.commonAddr, 8, anaObjs) {
		s.sendI(conn, sess, raw)
	}
}

func (s *Server) sendInterrogationResponse(conn net.Conn, sess *sessionState, cot byte) {
	sess.mu.Lock()
	confirm := encodeASDU(asdu{typeID: typeIDInterrogate, numObjects: 1, cot: cotActivConf, commonAddr: s.commonAddr, objects: []byte{0, 0, 0, 20}})
	sess.mu.Unlock()
	s.sendI(conn, sess, confirm)

	s.sendAll(conn, sess, cotInrogen)

	term := encodeASDU(asdu{typeID: typeIDInterrogate, numObjects: 1, cot: cotActTerm, commonAddr: s.commonAddr, objects: []byte{0, 0, 0, 20}})
	s.sendI(conn, sess, term)
}

func (s *Server) sendI(conn net.Conn, sess *sessionState, asduBytes []byte) {
	sess.mu.Lock()
	sendSN, rcvSN := sess.sendSN, sess.rcvSN
	sess.sendSN++
	sess.mu.Unlock()
	if err := writeIFrame(conn, sendSN, rcvSN, asduBytes); err != nil {
		log.Warnf("iec104: write to %s failed: %v", conn.RemoteAddr(), err)
	}
}

// reportLoop is the reverse-poll thread: while the session is STARTDT-active
// it reports every mapped point once per cfg.RecvUnAckT2 interval with cause
// of transmission "periodic" (spec.md §4.5.3).
func (s *Server) reportLoop(conn net.Conn, sess *sessionState, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.RecvUnAckT2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sess.mu.Lock()
			active := sess.active
			sess.mu.Unlock()
			if active {
				s.sendAll(conn, sess, cotPeriodic)
			}
		}
	}
}
