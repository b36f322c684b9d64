package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadQuantityCoilsBounds(t *testing.T) {
	assert.NoError(t, validateReadQuantity(Coil, 0, 1))
	assert.NoError(t, validateReadQuantity(Coil, 0, 2000))
	assert.ErrorIs(t, validateReadQuantity(Coil, 0, 0), ErrIllegalDataValue)
	assert.ErrorIs(t, validateReadQuantity(Coil, 0, 2001), ErrIllegalDataValue)
}

func TestValidateReadQuantityRegistersBounds(t *testing.T) {
	assert.NoError(t, validateReadQuantity(HoldingRegister, 0, 125))
	assert.ErrorIs(t, validateReadQuantity(HoldingRegister, 0, 126), ErrIllegalDataValue)
}

func TestValidateReadQuantityAddressOverflow(t *testing.T) {
	err := validateReadQuantity(HoldingRegister, 65500, 125)
	assert.ErrorIs(t, err, ErrIllegalDataValue)
}

func TestValidateMultiWriteQuantityBounds(t *testing.T) {
	assert.NoError(t, validateMultiWriteQuantity(Coil, 0, 1968))
	assert.ErrorIs(t, validateMultiWriteQuantity(Coil, 0, 1969), ErrIllegalDataValue)
	assert.NoError(t, validateMultiWriteQuantity(HoldingRegister, 0, 123))
	assert.ErrorIs(t, validateMultiWriteQuantity(HoldingRegister, 0, 124), ErrIllegalDataValue)
}

func TestValidateMultiWriteQuantityZeroRejected(t *testing.T) {
	assert.ErrorIs(t, validateMultiWriteQuantity(Coil, 0, 0), ErrIllegalDataValue)
}
