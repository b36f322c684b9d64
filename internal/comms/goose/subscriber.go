package goose

import (
	"sync"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// SubscribedMember maps one expected dataset entry position to a Tag
// Manager tag, so a Subscriber can validate the dataset's type layout
// before applying an update.
type SubscribedMember struct {
	Tag    string
	Binary bool
}

// Callback is invoked by a Subscriber whenever a matched dataset's stNum
// advances (a genuine state change, not a retransmission).
type Callback func(h Header)

// Subscriber listens for GOOSE frames on conn and, for every dataset
// reference it has been told to expect (spec.md §4.5.3's "Subscriber
// matching by dataset reference"), validates the incoming entry layout
// against its configured members and folds the values into mgr's
// pending-update maps.
type Subscriber struct {
	conn L2Conn
	mgr  *tagmanager.Manager

	mu        sync.Mutex
	datasets  map[string][]SubscribedMember // datSet reference -> expected layout
	lastStNum map[string]uint32
	callbacks map[string]Callback

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSubscriber returns an empty Subscriber listening on conn.
func NewSubscriber(conn L2Conn, mgr *tagmanager.Manager) *Subscriber {
	return &Subscriber{
		conn:      conn,
		mgr:       mgr,
		datasets:  make(map[string][]SubscribedMember),
		lastStNum: make(map[string]uint32),
		callbacks: make(map[string]Callback),
		stopCh:    make(chan struct{}),
	}
}

// Subscribe registers datSet's expected entry layout and tag bindings, with
// an optional callback fired on every genuine state change.
func (s *Subscriber) Subscribe(datSet string, members []SubscribedMember, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[datSet] = members
	if cb != nil {
		s.callbacks[datSet] = cb
	}
}

// Run reads frames from conn until stopped, applying every recognized
// GOOSE dataset update.
func (s *Subscriber) Run() {
	s.wg.Add(1)
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		frame, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		apdu, ok := parseFrame(frame)
		if !ok {
			continue
		}
		pdu, err := Decode(apdu)
		if err != nil {
			log.Warnf("goose: discarding malformed PDU: %v", err)
			continue
		}
		s.apply(pdu)
	}
}

// Stop ends the Run loop.
func (s *Subscriber) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Subscriber) apply(pdu PDU) {
	s.mu.Lock()
	members, known := s.datasets[pdu.Header.DatSet]
	last := s.lastStNum[pdu.Header.DatSet]
	cb := s.callbacks[pdu.Header.DatSet]
	s.mu.Unlock()
	if !known {
		return
	}
	if len(members) != len(pdu.Entries) {
		log.Warnf("goose: dataset %s layout mismatch: expected %d entries, got %d",
			pdu.Header.DatSet, len(members), len(pdu.Entries))
		return
	}
	for i, m := range members {
		e := pdu.Entries[i]
		if m.Binary != e.Binary {
			log.Warnf("goose: dataset %s entry %d type mismatch", pdu.Header.DatSet, i)
			return
		}
		if e.Binary {
			s.mgr.AddUpdatedBinary(m.Tag, e.BVal)
		} else {
			s.mgr.AddUpdatedAnalog(m.Tag, e.FVal)
		}
	}

	s.mu.Lock()
	changed := pdu.Header.StNum != last
	s.lastStNum[pdu.Header.DatSet] = pdu.Header.StNum
	s.mu.Unlock()
	if changed && cb != nil {
		cb(pdu.Header)
	}
}
