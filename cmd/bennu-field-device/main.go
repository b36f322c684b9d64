// Command bennu-field-device runs one field device: it loads a
// configuration tree (spec.md §6), wires the Tag Manager, Logic Evaluator,
// every configured protocol Server/Client, and the Command Interface
// together, then drives the Scan Loop until terminated, following the
// teacher's cmd/cc-backend/main.go flag-parsing/signal-driven-shutdown
// idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/bacnet"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/dnp3"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/goose"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/iec104"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/modbus"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/commandiface"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/config"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/logic"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/metrics"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/scanloop"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// defaultGOOSEGroup is the multicast endpoint goose.UDPConn joins when no
// real layer-2 segment is available (see internal/comms/goose/udpconn.go).
const defaultGOOSEGroup = "239.192.0.1:10200"

func main() {
	var (
		configFile  = flag.String("file", "", "path to the field device's JSON configuration file")
		logLevel    = flag.String("loglevel", "info", "log level: crit, err, warn, notice, info, or debug")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	)
	flag.Parse()
	log.SetLogLevel(*logLevel)

	if *configFile == "" {
		log.Fatal("bennu-field-device: -file is required")
	}

	dev, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("bennu-field-device: %s", err.Error())
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mgr := tagmanager.New(m)
	seedTags(mgr, dev)

	lg := logic.New(mgr, m, dev.Logic)
	loop := scanloop.New(mgr, lg, m, dev.CycleTime)

	closers := wireComms(loop, mgr, dev)

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, reg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	wg.Add(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer wg.Done()
		<-sigs
		log.Print("bennu-field-device: shutting down")
		cancel()
	}()

	wg.Wait()
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warnf("bennu-field-device: shutdown: %v", err)
		}
	}
	log.Print("bennu-field-device: graceful shutdown complete")
}

// seedTags populates the Tag Manager from the configuration's tag
// declarations (spec.md §6 `tags` element) before any protocol adapter is
// wired, since every adapter's AddXxxPoint call validates its tag against
// the manager.
func seedTags(mgr *tagmanager.Manager, dev *config.Device) {
	for _, t := range dev.Tags.InternalTags {
		switch {
		case t.Status != nil:
			mgr.AddInternalTag(t.Name, tagvalue.Bool(*t.Status), tagmanager.Binary)
		case t.Value != nil:
			mgr.AddInternalTag(t.Name, tagvalue.Float64(*t.Value), tagmanager.Analog)
		}
	}
	for _, t := range dev.Tags.ExternalTags {
		class := tagmanager.Analog
		init := tagvalue.Float64(0)
		if t.Type == "binary" {
			class = tagmanager.Binary
			init = tagvalue.Bool(false)
		}
		mgr.AddExternalData(t.Name, t.IO, init)
		mgr.AddTagToPointMapping(t.Name, t.IO, class)
	}
}

// wireComms instantiates every configured protocol Server/Client, registers
// their periodic work with loop, and returns the shutdown functions to run
// once the scan loop stops.
func wireComms(loop *scanloop.Loop, mgr *tagmanager.Manager, dev *config.Device) []func() error {
	var closers []func() error
	namedClients := make(map[string]commandiface.TagClient)

	for _, sc := range dev.Comms.ModbusServers {
		srv := modbus.NewServer(mgr)
		for _, p := range sc.Coils {
			srv.AddCoil(p.Address, p.Tag)
		}
		for _, p := range sc.DiscreteInputs {
			srv.AddDiscreteInput(p.Address, p.Tag)
		}
		for _, p := range sc.HoldingRegisters {
			srv.AddHoldingRegister(p.Address, p.Tag, common.Scale{Min: p.MinValue, Max: p.MaxValue})
		}
		for _, p := range sc.InputRegisters {
			srv.AddInputRegister(p.Address, p.Tag)
		}
		if err := srv.Start(sc.Endpoint); err != nil {
			log.Errorf("bennu-field-device: modbus-server %s: %v", sc.Endpoint, err)
			continue
		}
		closers = append(closers, srv.Stop)
	}

	for _, cc := range dev.Comms.ModbusClients {
		cl := modbus.NewClient()
		for _, conn := range cc.Connections {
			c, err := cl.Connect(conn.Endpoint, 5*time.Second)
			if err != nil {
				log.Errorf("bennu-field-device: modbus-connection %s: %v", conn.Endpoint, err)
				continue
			}
			for _, p := range conn.Coils {
				c.AddCoil(p.Tag, p.Address)
			}
			for _, p := range conn.HoldingRegisters {
				c.AddHoldingRegister(p.Tag, p.Address, common.Scale{Min: p.MinValue, Max: p.MaxValue})
			}
			for _, p := range conn.InputRegisters {
				c.AddInputRegister(p.Tag, p.Address)
			}
			namedClients[connName("modbus", conn.Endpoint)] = c
		}
		rate := pollRate(cc.Connections)
		if err := loop.RegisterBackgroundJob("modbus-client-poll", rate, cl.PollAll); err != nil {
			log.Errorf("bennu-field-device: scheduling modbus poll: %v", err)
		}
		closers = append(closers, cl.Close)
	}

	for _, sc := range dev.Comms.DNP3Servers {
		srv := dnp3.NewServer(mgr, sc.LocalAddress)
		for _, p := range sc.BinaryInputs {
			srv.AddBinaryInput(p.Address, p.Tag, dnp3.Class(p.Class))
		}
		for _, p := range sc.BinaryOutputs {
			srv.AddBinaryOutput(p.Address, p.Tag, p.SBO)
		}
		for _, p := range sc.AnalogInputs {
			srv.AddAnalogInput(p.Address, p.Tag, dnp3.Class(p.Class))
		}
		for _, p := range sc.AnalogOutputs {
			srv.AddAnalogOutput(p.Address, p.Tag, p.SBO)
		}
		if err := srv.Start(sc.Endpoint); err != nil {
			log.Errorf("bennu-field-device: dnp3-server %s: %v", sc.Endpoint, err)
			continue
		}
		closers = append(closers, srv.Stop)
	}

	for _, cc := range dev.Comms.DNP3Clients {
		cl := dnp3.NewClient()
		for _, conn := range cc.Connections {
			c, err := cl.Connect(conn.Endpoint, 5*time.Second)
			if err != nil {
				log.Errorf("bennu-field-device: dnp3-connection %s: %v", conn.Endpoint, err)
				continue
			}
			for _, p := range conn.BinaryInputs {
				c.AddBinary(p.Tag, p.Address, p.SBO)
			}
			for _, p := range conn.AnalogInputs {
				c.AddAnalog(p.Tag, p.Address, p.SBO)
			}
			namedClients[connName("dnp3", conn.Endpoint)] = c
		}
		if err := loop.RegisterBackgroundJob("dnp3-client-integrity-scan", time.Minute, cl.IntegrityScan); err != nil {
			log.Errorf("bennu-field-device: scheduling dnp3 integrity scan: %v", err)
		}
		closers = append(closers, cl.Close)
	}

	for _, sc := range dev.Comms.IEC104Servers {
		srv := iec104.NewServer(mgr, 1)
		for i, p := range sc.BinaryInputs {
			srv.AddBinaryInput(p.Address, uint32(i+1), p.Tag)
		}
		for i, p := range sc.BinaryOutputs {
			srv.AddBinaryOutput(p.Address, uint32(i+1+len(sc.BinaryInputs)), p.Tag)
		}
		for i, p := range sc.AnalogInputs {
			srv.AddAnalogInput(p.Address, uint32(i+1), p.Tag)
		}
		for i, p := range sc.AnalogOutputs {
			srv.AddAnalogOutput(p.Address, uint32(i+1+len(sc.AnalogInputs)), p.Tag)
		}
		if err := srv.Start(sc.Endpoint); err != nil {
			log.Errorf("bennu-field-device: iec60870-5-104-server %s: %v", sc.Endpoint, err)
			continue
		}
		closers = append(closers, srv.Stop)
	}

	for _, cc := range dev.Comms.IEC104Clients {
		cl := iec104.NewClient()
		for _, conn := range cc.Connections {
			c, err := cl.Connect(conn.Endpoint, 1, 5*time.Second)
			if err != nil {
				log.Errorf("bennu-field-device: iec60870-5-104-connection %s: %v", conn.Endpoint, err)
				continue
			}
			for i, p := range conn.BinaryInputs {
				c.AddBinary(p.Tag, p.Address, uint32(i+1))
			}
			for i, p := range conn.AnalogInputs {
				c.AddAnalog(p.Tag, p.Address, uint32(i+1))
			}
			namedClients[connName("iec60870-5-104", conn.Endpoint)] = c
		}
		if err := loop.RegisterBackgroundJob("iec104-client-integrity-scan", time.Minute, cl.IntegrityScan); err != nil {
			log.Errorf("bennu-field-device: scheduling iec104 integrity scan: %v", err)
		}
		closers = append(closers, cl.Close)
	}

	for _, sc := range dev.Comms.BACnetServers {
		srv := bacnet.NewServer(mgr, sc.DeviceInstance)
		for _, p := range sc.BinaryInputs {
			srv.AddBinaryInput(p.Address, p.Tag)
		}
		for _, p := range sc.BinaryOutputs {
			srv.AddBinaryOutput(p.Address, p.Tag)
		}
		for _, p := range sc.AnalogInputs {
			srv.AddAnalogInput(p.Address, p.Tag)
		}
		for _, p := range sc.AnalogOutputs {
			srv.AddAnalogOutput(p.Address, p.Tag)
		}
		if err := srv.Start(sc.Endpoint); err != nil {
			log.Errorf("bennu-field-device: bacnet-server %s: %v", sc.Endpoint, err)
			continue
		}
		closers = append(closers, srv.Stop)
	}

	for _, cc := range dev.Comms.BACnetClients {
		cl := bacnet.NewClient()
		rate := time.Duration(cc.ScanRateSec) * time.Second
		if rate <= 0 {
			rate = 5 * time.Second
		}
		c, err := cl.Connect(cc.Endpoint, cc.RTUInstance, rate)
		if err != nil {
			log.Errorf("bennu-field-device: bacnet-client %s: %v", cc.Endpoint, err)
		} else {
			for _, p := range cc.BinaryInputs {
				c.AddBinary(p.Tag, p.Address)
			}
			for _, p := range cc.AnalogInputs {
				c.AddAnalog(p.Tag, p.Address)
			}
			namedClients[connName("bacnet", cc.Endpoint)] = c
			if err := loop.RegisterBackgroundJob("bacnet-client-poll", rate, cl.PollAll); err != nil {
				log.Errorf("bennu-field-device: scheduling bacnet poll: %v", err)
			}
		}
		closers = append(closers, cl.Close)
	}

	for _, gc := range dev.Comms.GOOSE {
		conn, err := goose.DialUDP(gc.Interface, defaultGOOSEGroup)
		if err != nil {
			log.Errorf("bennu-field-device: goose interface %s: %v", gc.Interface, err)
			continue
		}
		ttl := time.Duration(gc.TimeToLiveMs) * time.Millisecond
		if ttl <= 0 {
			ttl = 2 * time.Second
		}
		pollMs := gc.PublishMs
		if pollMs <= 0 {
			pollMs = 100
		}
		if gc.Publish {
			members := make([]goose.DataMember, 0, len(gc.BinaryPoints)+len(gc.AnalogPoints))
			for _, p := range gc.BinaryPoints {
				members = append(members, goose.DataMember{Tag: p.Tag, Binary: true})
			}
			for _, p := range gc.AnalogPoints {
				members = append(members, goose.DataMember{Tag: p.Tag, Binary: false})
			}
			pub := goose.NewPublisher(conn, mgr, gc.GoCBRef, gc.DatasetRef, gc.GoCBRef, members, ttl)
			go pub.Run(time.Duration(pollMs) * time.Millisecond)
			closers = append(closers, func() error { pub.Stop(); return nil })
		}
		if gc.Subscribe {
			members := make([]goose.SubscribedMember, 0, len(gc.BinaryPoints)+len(gc.AnalogPoints))
			for _, p := range gc.BinaryPoints {
				members = append(members, goose.SubscribedMember{Tag: p.Tag, Binary: true})
			}
			for _, p := range gc.AnalogPoints {
				members = append(members, goose.SubscribedMember{Tag: p.Tag, Binary: false})
			}
			sub := goose.NewSubscriber(conn, mgr)
			sub.Subscribe(gc.DatasetRef, members, nil)
			go sub.Run()
			closers = append(closers, func() error { sub.Stop(); return nil })
		}
		closers = append(closers, conn.Close)
	}

	for _, ci := range dev.Comms.CommandInterfaces {
		client, ok := namedClients[connName(ci.ClientProtocol, ci.ClientConnection)]
		if !ok {
			log.Errorf("bennu-field-device: command-interface %s: no %s connection %s", ci.Endpoint, ci.ClientProtocol, ci.ClientConnection)
			continue
		}
		srv := commandiface.New(client)
		if err := srv.Start(ci.Endpoint); err != nil {
			log.Errorf("bennu-field-device: command-interface %s: %v", ci.Endpoint, err)
			continue
		}
		closers = append(closers, srv.Close)
	}

	return closers
}

// serveMetrics starts a background HTTP server exposing reg's collectors at
// /metrics, the teacher's usual Prometheus wiring shape.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("bennu-field-device: metrics server: %v", err)
		}
	}()
}

func connName(protocol, endpoint string) string {
	return fmt.Sprintf("%s|%s", protocol, endpoint)
}

func pollRate(conns []config.ModbusConnectionConfig) time.Duration {
	for _, c := range conns {
		if c.ScanRateMs > 0 {
			return time.Duration(c.ScanRateMs) * time.Millisecond
		}
	}
	return time.Second
}
