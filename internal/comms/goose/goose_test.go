package goose

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

// loopbackConn is an in-memory L2Conn connecting a Publisher directly to a
// Subscriber within one test process, standing in for a real AF_PACKET
// socket pair.
type loopbackConn struct {
	mac    net.HardwareAddr
	frames chan []byte
}

func newLoopback() *loopbackConn {
	return &loopbackConn{
		mac:    net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		frames: make(chan []byte, 16),
	}
}

func (c *loopbackConn) WriteFrame(frame []byte) error {
	c.frames <- frame
	return nil
}

func (c *loopbackConn) ReadFrame() ([]byte, error) {
	f, ok := <-c.frames
	if !ok {
		return nil, net.ErrClosed
	}
	return f, nil
}

func (c *loopbackConn) LocalMAC() net.HardwareAddr { return c.mac }

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		GoCBRef: "IED1/LLN0$GO$gcb01", TimeAllowedToLiveMs: 2000, DatSet: "IED1/LLN0$ds1",
		GoID: "gcb01", StNum: 3, SqNum: 7, ConfRev: 1, NumDatSetEntries: 2,
	}
	encoded := encodeHeader(h)
	decoded, dataset, err := decodeHeader(append(encoded, putTLV(nil, tagAllData, []byte{0x83, 1, 1})...))
	require.NoError(t, err)
	assert.Equal(t, h.GoCBRef, decoded.GoCBRef)
	assert.Equal(t, h.StNum, decoded.StNum)
	assert.Equal(t, h.SqNum, decoded.SqNum)
	assert.Equal(t, []byte{0x83, 1, 1}, dataset)
}

func TestDatasetRoundTrip(t *testing.T) {
	entries := []Entry{{Binary: true, BVal: true}, {Binary: false, FVal: 42.5}}
	pdu := PDU{Header: Header{DatSet: "ds1", NumDatSetEntries: 2}, Entries: entries}
	raw := Encode(pdu)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	assert.True(t, decoded.Entries[0].BVal)
	assert.InDelta(t, 42.5, decoded.Entries[1].FVal, 0.01)
}

func TestPublisherSubscriberStateChange(t *testing.T) {
	mgrPub := tagmanager.New(nil)
	mgrPub.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	mgrSub := tagmanager.New(nil)
	mgrSub.AddInternalTag("brkr_mirror", tagvalue.Bool(false), tagmanager.Binary)

	conn := newLoopback()
	pub := NewPublisher(conn, mgrPub, "IED1/LLN0$GO$gcb01", "ds1", "gcb01",
		[]DataMember{{Tag: "brkr", Binary: true}}, 500*time.Millisecond)

	sub := NewSubscriber(conn, mgrSub)
	var changes int
	sub.Subscribe("ds1", []SubscribedMember{{Tag: "brkr_mirror", Binary: true}}, func(Header) { changes++ })
	go sub.Run()
	defer sub.Stop()

	go pub.Run(20 * time.Millisecond)
	defer pub.Stop()

	mgrPub.SetByTag("brkr", tagvalue.Bool(true))

	require.Eventually(t, func() bool {
		mgrSub.UpdateInternalData()
		mgrSub.ClearUpdatedTags()
		return mgrSub.GetByTag("brkr_mirror").AsBool()
	}, 2*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, changes, 1)
}
