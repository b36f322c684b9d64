package modbus

import (
	"testing"

	vetter "github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestCoilRoundTrip(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	s := NewServer(mgr)
	require.True(t, s.AddCoil(5, "brkr"))

	_, err := s.HandleCoils(&vetter.CoilsRequest{Addr: 5, Quantity: 1, IsWrite: true, Args: []bool{true}})
	require.NoError(t, err)

	res, err := s.HandleCoils(&vetter.CoilsRequest{Addr: 5, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, res)
}

func TestHoldingRegisterRangeScaling(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("volts", tagvalue.Float64(0), tagmanager.Analog)
	s := NewServer(mgr)
	require.True(t, s.AddHoldingRegister(10, "volts", common.Scale{Min: 0, Max: 100}))

	_, err := s.HandleHoldingRegisters(&vetter.HoldingRegistersRequest{
		Addr: 10, Quantity: 1, IsWrite: true, Args: []uint16{32768},
	})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, mgr.GetByTag("volts").AsFloat64(), 0.01)

	res, err := s.HandleHoldingRegisters(&vetter.HoldingRegistersRequest{Addr: 10, Quantity: 1})
	require.NoError(t, err)
	assert.InDelta(t, 32768, float64(res[0]), 1)
}

func TestReadQuantityOutOfBoundsReturnsIllegalDataValue(t *testing.T) {
	mgr := tagmanager.New(nil)
	s := NewServer(mgr)
	_, err := s.HandleCoils(&vetter.CoilsRequest{Addr: 0, Quantity: 2001})
	assert.ErrorIs(t, err, vetter.ErrIllegalDataValue)
}

func TestWriteToUnmappedAddressFailsWholeRange(t *testing.T) {
	mgr := tagmanager.New(nil)
	s := NewServer(mgr)
	_, err := s.HandleCoils(&vetter.CoilsRequest{Addr: 0, Quantity: 1, IsWrite: true, Args: []bool{true}})
	assert.ErrorIs(t, err, vetter.ErrIllegalDataValue)
}

func TestUnmappedAddressInRangeFailsWholeReadBeforeGathering(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("a", tagvalue.Bool(false), tagmanager.Binary)
	s := NewServer(mgr)
	require.True(t, s.AddCoil(0, "a"))
	// addr 1 is unmapped; the whole 2-wide range must fail, not just addr 1.
	_, err := s.HandleCoils(&vetter.CoilsRequest{Addr: 0, Quantity: 2})
	assert.ErrorIs(t, err, vetter.ErrIllegalDataValue)
}

func TestAddPointFailsForUnknownTag(t *testing.T) {
	mgr := tagmanager.New(nil)
	s := NewServer(mgr)
	assert.False(t, s.AddCoil(1, "ghost"))
	assert.False(t, s.AddHoldingRegister(1, "ghost", common.Scale{}))
}
