// Package bacnet implements the BACnet/IP Server and Client adapters
// (spec.md §4.5.3), grounded on original_source's ClientConnection.cpp/
// Server.cpp (poll-loop and address-to-point bookkeeping shape) and on
// github.com/alexbeltran/gobacnet for the actual device/object/service
// layer: WhoIs/IAm discovery, ReadProperty/WriteProperty, and the Binary/
// Analog Input/Output object types.
package bacnet

import (
	"fmt"
	"sync"
	"time"

	gobacnet "github.com/alexbeltran/gobacnet"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// Server is the BACnet/IP device: an addressed Binary/Analog Input/Output
// point table plus a one-second update thread (original_source Server.cpp's
// `update` loop). The update thread only reads and logs the Input points'
// values; no BACnet objects are published, and nothing received on the wire
// is routed to WriteBinary/WriteAnalog.
type Server struct {
	*common.Server
	instance uint32

	mu        sync.Mutex
	client    *gobacnet.Client
	updateInt time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewServer returns an empty BACnet device for the given device instance
// number.
func NewServer(mgr *tagmanager.Manager, instance uint32) *Server {
	return &Server{
		Server:    common.NewServer("bacnet", mgr),
		instance:  instance,
		updateInt: time.Second,
		stopCh:    make(chan struct{}),
	}
}

// AddBinaryInput maps addr (the Binary Input object instance) to tag.
func (s *Server) AddBinaryInput(addr uint16, tag string) bool {
	return s.AddBinaryPoint(addr, tag, common.Input)
}

// AddBinaryOutput maps addr (the Binary Output object instance) to tag.
func (s *Server) AddBinaryOutput(addr uint16, tag string) bool {
	return s.AddBinaryPoint(addr, tag, common.Output)
}

// AddAnalogInput maps addr (the Analog Input object instance) to tag.
func (s *Server) AddAnalogInput(addr uint16, tag string) bool {
	return s.AddAnalogPoint(addr, tag, common.Input)
}

// AddAnalogOutput maps addr (the Analog Output object instance) to tag.
func (s *Server) AddAnalogOutput(addr uint16, tag string) bool {
	return s.AddAnalogPoint(addr, tag, common.Output)
}

// Start binds a gobacnet client to the device's BACnet/IP interface and
// begins the one-second update thread (original_source
// Server.cpp's `BacnetPrepareComm`+`run`).
func (s *Server) Start(iface string) error {
	c, err := gobacnet.NewClient(iface, gobacnet.DefaultPort)
	if err != nil {
		return fmt.Errorf("bacnet: starting device %d on %s: %w", s.instance, iface, err)
	}
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	s.wg.Add(1)
	go s.updateLoop()
	return nil
}

// Stop stops the update thread and closes the client.
func (s *Server) Stop() error {
	close(s.stopCh)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// updateLoop is original_source Server.cpp's `update`: every second, read
// every Input point's current Tag Manager value and log it at debug level.
// The values are not stored in any present-value cache or BACnet object.
func (s *Server) updateLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.updateInt)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RefreshDatastore(func(addr uint16, binary bool, status bool, value float64) {
				log.Debugf("bacnet: refreshed %v point %d (binary=%v status=%v value=%v)",
					s.instance, addr, binary, status, value)
			})
		}
	}
}

// WriteBinary handles an incoming BACnet WriteProperty to a Binary Output
// object instance (original_source Server.cpp's writeBinary).
func (s *Server) WriteBinary(addr uint16, v bool) bool {
	log.Infof("bacnet: binary point command at address %d with value %v", addr, v)
	return s.Server.WriteBinary(addr, v)
}

// WriteAnalog handles an incoming BACnet WriteProperty to an Analog Output
// object instance (original_source Server.cpp's writeAnalog).
func (s *Server) WriteAnalog(addr uint16, v float64) bool {
	log.Infof("bacnet: analog point command at address %d with value %v", addr, v)
	return s.Server.WriteAnalog(addr, v)
}
