package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestServerAddPointRequiresKnownTag(t *testing.T) {
	mgr := tagmanager.New(nil)
	s := NewServer("test", mgr)

	assert.False(t, s.AddBinaryPoint(1, "ghost", Output))

	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	assert.True(t, s.AddBinaryPoint(1, "brkr", Output))
}

func TestServerWriteBinaryEnqueuesPendingUpdate(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	s := NewServer("test", mgr)
	require.True(t, s.AddBinaryPoint(5, "brkr", Output))

	ok := s.WriteBinary(5, true)
	assert.True(t, ok)
	assert.True(t, mgr.HasPendingBinary("brkr"))
}

func TestServerWriteUnmappedAddressIsDropped(t *testing.T) {
	mgr := tagmanager.New(nil)
	s := NewServer("test", mgr)
	ok := s.WriteBinary(999, true)
	assert.False(t, ok)
}

func TestServerRefreshDatastorePushesInputsOnly(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("sensor", tagvalue.Float64(3.5), tagmanager.Analog)
	mgr.AddInternalTag("cmd", tagvalue.Float64(0), tagmanager.Analog)
	s := NewServer("test", mgr)
	require.True(t, s.AddAnalogPoint(1, "sensor", Input))
	require.True(t, s.AddAnalogPoint(2, "cmd", Output))

	pushed := map[uint16]float64{}
	s.RefreshDatastore(func(addr uint16, binary bool, status bool, value float64) {
		pushed[addr] = value
	})

	assert.Equal(t, 3.5, pushed[1])
	_, sawOutput := pushed[2]
	assert.False(t, sawOutput)
}
