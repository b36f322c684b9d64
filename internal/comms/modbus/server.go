package modbus

import (
	"errors"
	"fmt"
	"time"

	vetter "github.com/simonvetter/modbus"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
)

// Server exposes coils, discrete inputs, holding registers (with per-address
// engineering-range scaling) and input registers over TCP or serial RTU
// (spec.md §4.5.3), backed by simonvetter/modbus.
//
// Modbus has four independently addressed register spaces, unlike the
// single binary/analog split common.Server models for simpler protocols, so
// this server keeps its own four common.PointMaps rather than embedding
// common.Server.
type Server struct {
	tags common.ManagerTagSource

	coils     *common.PointMap
	discretes *common.PointMap
	holdings  *common.PointMap
	inputRegs *common.PointMap

	holdingScale map[uint16]common.Scale

	lib *vetter.ModbusServer
}

// NewServer returns an empty Modbus Server bound to mgr.
func NewServer(mgr *tagmanager.Manager) *Server {
	return &Server{
		tags:         common.ManagerTagSource{Mgr: mgr},
		coils:        common.NewPointMap(),
		discretes:    common.NewPointMap(),
		holdings:     common.NewPointMap(),
		inputRegs:    common.NewPointMap(),
		holdingScale: make(map[uint16]common.Scale),
	}
}

// AddCoil maps addr to tag in the coil (read/write binary) address space.
// Returns false if tag is unknown to the Tag Manager.
func (s *Server) AddCoil(addr uint16, tag string) bool {
	if !s.tagKnown(tag) {
		return false
	}
	s.coils.Add(addr, tag, common.Output)
	return true
}

// AddDiscreteInput maps addr to tag in the discrete-input (read-only binary)
// address space.
func (s *Server) AddDiscreteInput(addr uint16, tag string) bool {
	if !s.tagKnown(tag) {
		return false
	}
	s.discretes.Add(addr, tag, common.Input)
	return true
}

// AddHoldingRegister maps addr to tag in the holding-register (read/write
// analog) address space, with the engineering-range scale used to convert
// between the wire's 16-bit integer and the tag's engineering value.
func (s *Server) AddHoldingRegister(addr uint16, tag string, scale common.Scale) bool {
	if !s.tagKnown(tag) {
		return false
	}
	s.holdings.Add(addr, tag, common.Output)
	s.holdingScale[addr] = scale
	return true
}

// AddInputRegister maps addr to tag in the input-register (read-only analog)
// address space. Input registers carry raw, unscaled 16-bit values.
func (s *Server) AddInputRegister(addr uint16, tag string) bool {
	if !s.tagKnown(tag) {
		return false
	}
	s.inputRegs.Add(addr, tag, common.Input)
	return true
}

func (s *Server) tagKnown(tag string) bool {
	_, ok := s.tags.Mgr.ClassOf(tag)
	return ok
}

// Start binds endpoint ("tcp://host:port" or "rtu:///dev/ttyX?baud=9600")
// and begins serving requests.
func (s *Server) Start(endpoint string) error {
	lib, err := vetter.NewServer(&vetter.ServerConfiguration{
		URL:        endpoint,
		Timeout:    30 * time.Second,
		MaxClients: 10,
	}, s)
	if err != nil {
		return fmt.Errorf("modbus: configuring server on %s: %w", endpoint, err)
	}
	if err := lib.Start(); err != nil {
		return fmt.Errorf("modbus: starting server on %s: %w", endpoint, err)
	}
	s.lib = lib
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.lib == nil {
		return nil
	}
	return s.lib.Stop()
}

// rangeMapped reports whether every address in [addr, addr+quantity) has a
// mapped point.
func rangeMapped(pm *common.PointMap, addr, quantity uint16) bool {
	for i := uint16(0); i < quantity; i++ {
		if _, ok := pm.Lookup(addr + i); !ok {
			return false
		}
	}
	return true
}

// HandleCoils implements vetter.RequestHandler for the read/write coil
// address space. A requested range with even one unmapped address fails the
// whole request with ILLEGAL_DATA_VALUE before any data is gathered or
// written (spec.md §9's corrected "whole range fails" behavior, not a
// partial result).
func (s *Server) HandleCoils(req *vetter.CoilsRequest) ([]bool, error) {
	if err := validateReadQuantity(Coil, req.Addr, req.Quantity); err != nil {
		return nil, toLibErr(err)
	}
	if !rangeMapped(s.coils, req.Addr, req.Quantity) {
		s.tags.Mgr.Metrics().IncProtocolError("modbus", "unknown-address")
		return nil, vetter.ErrIllegalDataValue
	}
	if req.IsWrite {
		if len(req.Args) > 1 {
			if err := validateMultiWriteQuantity(Coil, req.Addr, uint16(len(req.Args))); err != nil {
				return nil, toLibErr(err)
			}
		}
		for i, v := range req.Args {
			pt, _ := s.coils.Lookup(req.Addr + uint16(i))
			s.tags.EnqueueBinary(pt.Tag, v)
		}
		s.tags.Mgr.Metrics().IncProtocolPDU("modbus", "in")
		return nil, nil
	}
	out := make([]bool, req.Quantity)
	for i := range out {
		pt, _ := s.coils.Lookup(req.Addr + uint16(i))
		out[i] = s.tags.ReadBinary(pt.Tag)
	}
	return out, nil
}

// HandleDiscreteInputs implements vetter.RequestHandler for the read-only
// discrete-input address space.
func (s *Server) HandleDiscreteInputs(req *vetter.DiscreteInputsRequest) ([]bool, error) {
	if err := validateReadQuantity(DiscreteInput, req.Addr, req.Quantity); err != nil {
		return nil, toLibErr(err)
	}
	if !rangeMapped(s.discretes, req.Addr, req.Quantity) {
		s.tags.Mgr.Metrics().IncProtocolError("modbus", "unknown-address")
		return nil, vetter.ErrIllegalDataValue
	}
	out := make([]bool, req.Quantity)
	for i := range out {
		pt, _ := s.discretes.Lookup(req.Addr + uint16(i))
		out[i] = s.tags.ReadBinary(pt.Tag)
	}
	return out, nil
}

// HandleHoldingRegisters implements vetter.RequestHandler for the
// read/write holding-register address space, applying the configured
// engineering-range scale on both directions.
func (s *Server) HandleHoldingRegisters(req *vetter.HoldingRegistersRequest) ([]uint16, error) {
	if err := validateReadQuantity(HoldingRegister, req.Addr, req.Quantity); err != nil {
		return nil, toLibErr(err)
	}
	if !rangeMapped(s.holdings, req.Addr, req.Quantity) {
		s.tags.Mgr.Metrics().IncProtocolError("modbus", "unknown-address")
		return nil, vetter.ErrIllegalDataValue
	}
	if req.IsWrite {
		if len(req.Args) > 1 {
			if err := validateMultiWriteQuantity(HoldingRegister, req.Addr, uint16(len(req.Args))); err != nil {
				return nil, toLibErr(err)
			}
		}
		for i, raw := range req.Args {
			addr := req.Addr + uint16(i)
			pt, _ := s.holdings.Lookup(addr)
			scale := s.holdingScale[addr]
			s.tags.EnqueueAnalog(pt.Tag, scale.ToEngineering(raw))
		}
		s.tags.Mgr.Metrics().IncProtocolPDU("modbus", "in")
		return nil, nil
	}
	out := make([]uint16, req.Quantity)
	for i := range out {
		addr := req.Addr + uint16(i)
		pt, _ := s.holdings.Lookup(addr)
		scale := s.holdingScale[addr]
		out[i] = scale.FromEngineering(s.tags.ReadAnalog(pt.Tag))
	}
	return out, nil
}

// HandleInputRegisters implements vetter.RequestHandler for the read-only
// input-register address space. Input registers are unscaled.
func (s *Server) HandleInputRegisters(req *vetter.InputRegistersRequest) ([]uint16, error) {
	if err := validateReadQuantity(InputRegister, req.Addr, req.Quantity); err != nil {
		return nil, toLibErr(err)
	}
	if !rangeMapped(s.inputRegs, req.Addr, req.Quantity) {
		s.tags.Mgr.Metrics().IncProtocolError("modbus", "unknown-address")
		return nil, vetter.ErrIllegalDataValue
	}
	out := make([]uint16, req.Quantity)
	for i := range out {
		pt, _ := s.inputRegs.Lookup(req.Addr + uint16(i))
		out[i] = uint16(s.tags.ReadAnalog(pt.Tag))
	}
	return out, nil
}

// toLibErr maps our locally-testable sentinel errors onto the wire
// library's exception sentinels so the correct Modbus exception code is
// returned to the client.
func toLibErr(err error) error {
	switch {
	case errors.Is(err, ErrIllegalDataValue):
		return vetter.ErrIllegalDataValue
	case errors.Is(err, ErrIllegalDataAddress):
		return vetter.ErrIllegalDataAddress
	case errors.Is(err, ErrIllegalFunction):
		return vetter.ErrIllegalFunction
	default:
		return vetter.ErrServerDeviceFailure
	}
}
