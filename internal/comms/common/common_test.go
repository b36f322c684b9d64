package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleRoundTrip(t *testing.T) {
	s := Scale{Min: 0, Max: 100}
	assert.InDelta(t, 50.0, s.ToEngineering(32768), 0.01)
	assert.InDelta(t, 65535, float64(s.FromEngineering(100)), 1)
	assert.Equal(t, uint16(0), s.FromEngineering(0))
}

func TestScaleDegenerateRange(t *testing.T) {
	s := Scale{Min: 5, Max: 5}
	assert.Equal(t, 5.0, s.ToEngineering(12345))
	assert.Equal(t, uint16(0), s.FromEngineering(5))
}

func TestPointMapAddLookup(t *testing.T) {
	pm := NewPointMap()
	pm.Add(5, "brkr", Output)
	pt, ok := pm.Lookup(5)
	assert.True(t, ok)
	assert.Equal(t, "brkr", pt.Tag)
	assert.Equal(t, Output, pt.Direction)

	_, ok = pm.Lookup(6)
	assert.False(t, ok)
	assert.Equal(t, 1, pm.Len())
}

func TestAddressIndex(t *testing.T) {
	idx := NewAddressIndex()
	idx.Add(10, "volts")
	tag, ok := idx.TagFor(10)
	assert.True(t, ok)
	assert.Equal(t, "volts", tag)

	_, ok = idx.TagFor(11)
	assert.False(t, ok)
}

func TestStatusMessageConstructors(t *testing.T) {
	ok := Ok(RegisterDescriptor{Tag: "x"})
	assert.True(t, ok.IsOK())

	bad := Errf("unable to find tag -- %s", "x")
	assert.False(t, bad.IsOK())
	assert.Equal(t, "unable to find tag -- x", bad.Diagnostic)
}

func TestTCPAddrStripsScheme(t *testing.T) {
	addr, err := TCPAddr("tcp://10.0.0.5:20000")
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.5:20000", addr)
}

func TestTCPAddrAcceptsBareAddress(t *testing.T) {
	addr, err := TCPAddr("127.0.0.1:0")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", addr)
}

func TestTCPAddrRejectsOtherSchemes(t *testing.T) {
	_, err := TCPAddr("udp://10.0.0.5:20000")
	assert.Error(t, err)
}
