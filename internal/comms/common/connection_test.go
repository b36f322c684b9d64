package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory stand-in for a protocol codec, used only to
// exercise Connection's bookkeeping contract.
type fakeTransport struct {
	binaryWrites map[uint16]bool
	analogWrites map[uint16]float64
	selectErr    error
	pollBinary   map[uint16]bool
	pollAnalog   map[uint16]float64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		binaryWrites: make(map[uint16]bool),
		analogWrites: make(map[uint16]float64),
	}
}

func (f *fakeTransport) WriteBinary(addr uint16, v bool) error {
	f.binaryWrites[addr] = v
	return nil
}
func (f *fakeTransport) WriteAnalog(addr uint16, v float64) error {
	f.analogWrites[addr] = v
	return nil
}
func (f *fakeTransport) SelectBinary(addr uint16, v bool) error    { return f.selectErr }
func (f *fakeTransport) SelectAnalog(addr uint16, v float64) error { return f.selectErr }
func (f *fakeTransport) PollBinary(addrs []uint16) (map[uint16]bool, error) {
	return f.pollBinary, nil
}
func (f *fakeTransport) PollAnalog(addrs []uint16) (map[uint16]float64, error) {
	return f.pollAnalog, nil
}

func TestConnectionWriteOptimisticallyMirrors(t *testing.T) {
	tr := newFakeTransport()
	c := NewConnection("fake", tr)
	c.AddBinary("brkr", RegisterDescriptor{Address: 5})

	msg := c.WriteBinary("brkr", true)
	require.True(t, msg.IsOK())
	assert.True(t, tr.binaryWrites[5])

	// Read before any poll arrives must see the written value.
	read := c.ReadRegisterByTag("brkr")
	require.True(t, read.IsOK())
	assert.True(t, read.Descriptor.Status)
}

func TestConnectionReadUnknownTagFails(t *testing.T) {
	c := NewConnection("fake", newFakeTransport())
	msg := c.ReadRegisterByTag("nope")
	assert.False(t, msg.IsOK())
	assert.Contains(t, msg.Diagnostic, "nope")
}

func TestConnectionPollUpdatesCache(t *testing.T) {
	tr := newFakeTransport()
	tr.pollBinary = map[uint16]bool{5: true}
	tr.pollAnalog = map[uint16]float64{10: 42.5}

	c := NewConnection("fake", tr)
	c.AddBinary("brkr", RegisterDescriptor{Address: 5})
	c.AddAnalog("volts", RegisterDescriptor{Address: 10})

	c.Poll()

	assert.True(t, c.ReadRegisterByTag("brkr").Descriptor.Status)
	assert.Equal(t, 42.5, c.ReadRegisterByTag("volts").Descriptor.Value)
}

func TestConnectionUpdateUnmappedAddressIsNoop(t *testing.T) {
	c := NewConnection("fake", newFakeTransport())
	// Must not panic.
	c.UpdateBinary(999, true)
	c.UpdateAnalog(999, 1.0)
}

func TestConnectionTags(t *testing.T) {
	c := NewConnection("fake", newFakeTransport())
	c.AddBinary("a", RegisterDescriptor{Address: 1})
	c.AddAnalog("b", RegisterDescriptor{Address: 2})
	assert.ElementsMatch(t, []string{"a", "b"}, c.Tags())
}
