package goose

import (
	"net"
	"sync"
	"time"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// dstAddress is the default GOOSE destination MAC address, grounded on
// original_source gocb.hpp's gocb() constructor (an all-broadcast
// 01:0C:CD:01:00:01-style multicast is typical in practice; the pack's
// default constructor leaves it FF:FF:FF:FF:FF:FF, reproduced here).
var dstAddress = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// DataMember maps one dataset entry to a Tag Manager tag.
type DataMember struct {
	Tag    string
	Binary bool
}

// Publisher is a GOOSE Control Block (original_source gocb.hpp) publishing
// one dataset: on every tag value change it increments stNum, resets sqNum
// to 0 and sends the dataset; independently of changes it resends the last
// dataset every TTL interval. The resend interval is fixed; there is no
// faster retransmission burst after a change.
type Publisher struct {
	conn    L2Conn
	mgr     *tagmanager.Manager
	members []DataMember

	goCBRef string
	goID    string
	datSet  string
	confRev uint32
	ttl     time.Duration

	mu      sync.Mutex
	stNum   uint32
	sqNum   uint32
	lastVal []Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPublisher returns a Publisher for goCBRef/datSet/goID sending dataset
// members over conn, with timeAllowedToLive as the steady-state resend
// interval.
func NewPublisher(conn L2Conn, mgr *tagmanager.Manager, goCBRef, datSet, goID string, members []DataMember, ttl time.Duration) *Publisher {
	return &Publisher{
		conn:    conn,
		mgr:     mgr,
		members: members,
		goCBRef: goCBRef,
		goID:    goID,
		datSet:  datSet,
		confRev: 1,
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
}

func (p *Publisher) readEntries() []Entry {
	out := make([]Entry, 0, len(p.members))
	for _, m := range p.members {
		if m.Binary {
			out = append(out, Entry{Binary: true, BVal: p.mgr.GetByTag(m.Tag).AsBool()})
		} else {
			out = append(out, Entry{Binary: false, FVal: p.mgr.GetByTag(m.Tag).AsFloat64()})
		}
	}
	return out
}

func entriesEqual(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// publishOnce builds and sends entries once with the current stNum and
// sqNum, then increments sqNum; Run uses it for both change-driven sends and
// steady-state resends.
func (p *Publisher) publishOnce(entries []Entry) error {
	p.mu.Lock()
	pdu := Encode(PDU{
		Header: Header{
			GoCBRef:             p.goCBRef,
			TimeAllowedToLiveMs: uint32(p.ttl.Milliseconds()),
			DatSet:              p.datSet,
			GoID:                p.goID,
			StNum:               p.stNum,
			SqNum:               p.sqNum,
			ConfRev:             p.confRev,
			NumDatSetEntries:    uint32(len(entries)),
		},
		Entries: entries,
	})
	p.sqNum++
	p.mu.Unlock()

	frame, err := buildFrame(p.conn.LocalMAC(), dstAddress, pdu)
	if err != nil {
		return err
	}
	return p.conn.WriteFrame(frame)
}

// Run drives the publish loop until stopped: polling for value changes at
// pollInterval, bumping stNum and resetting sqNum on a change, and
// otherwise resending at the steady-state ttl interval.
func (p *Publisher) Run(pollInterval time.Duration) {
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	resend := time.NewTicker(p.ttl)
	defer resend.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			entries := p.readEntries()
			p.mu.Lock()
			changed := !entriesEqual(entries, p.lastVal)
			if changed {
				p.stNum++
				p.sqNum = 0
				p.lastVal = entries
			}
			p.mu.Unlock()
			if changed {
				if err := p.publishOnce(entries); err != nil {
					log.Warnf("goose: publish %s failed: %v", p.goCBRef, err)
				}
			}
		case <-resend.C:
			p.mu.Lock()
			entries := p.lastVal
			p.mu.Unlock()
			if err := p.publishOnce(entries); err != nil {
				log.Warnf("goose: resend %s failed: %v", p.goCBRef, err)
			}
		}
	}
}

// Stop ends the publish loop started by Run.
func (p *Publisher) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}
