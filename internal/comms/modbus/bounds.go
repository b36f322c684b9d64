// Package modbus implements the Modbus Server and Client adapters
// (spec.md §4.5.3), wrapping github.com/simonvetter/modbus (real TCP and
// RTU client+server support) for wire transport and framing.
package modbus

import "errors"

// Register kinds, matching the bound table in the original device's
// constants.hpp.
type RegisterKind int

const (
	Coil RegisterKind = iota
	DiscreteInput
	HoldingRegister
	InputRegister
)

// Quantity bounds per spec.md §4.5.3 / §8 Boundary behaviors.
const (
	minReadQtyCoilsOrDiscretes = 1
	maxReadQtyCoilsOrDiscretes = 2000
	minReadQtyRegisters        = 1
	maxReadQtyRegisters        = 125
	maxMultiWriteQtyCoils      = 1968
	maxMultiWriteQtyRegisters  = 123
	maxAddressSpace            = 65536
)

// ErrIllegalDataValue mirrors the Modbus ILLEGAL_DATA_VALUE exception.
var ErrIllegalDataValue = errors.New("ILLEGAL_DATA_VALUE")

// ErrIllegalDataAddress mirrors the Modbus ILLEGAL_DATA_ADDRESS exception.
var ErrIllegalDataAddress = errors.New("ILLEGAL_DATA_ADDRESS")

// ErrIllegalFunction mirrors the Modbus ILLEGAL_FUNCTION exception.
var ErrIllegalFunction = errors.New("ILLEGAL_FUNCTION")

// validateReadQuantity enforces spec.md §8's read-quantity and
// address-overflow boundary behaviors for the given register kind.
func validateReadQuantity(kind RegisterKind, addr, quantity uint16) error {
	var min, max uint16
	switch kind {
	case Coil, DiscreteInput:
		min, max = minReadQtyCoilsOrDiscretes, maxReadQtyCoilsOrDiscretes
	case HoldingRegister, InputRegister:
		min, max = minReadQtyRegisters, maxReadQtyRegisters
	}
	if quantity < min || quantity > max {
		return ErrIllegalDataValue
	}
	if int(addr)+int(quantity) > maxAddressSpace {
		return ErrIllegalDataValue
	}
	return nil
}

// validateMultiWriteQuantity enforces spec.md §8's multi-write quantity
// bound for the given register kind (Coil or HoldingRegister only).
func validateMultiWriteQuantity(kind RegisterKind, addr, quantity uint16) error {
	var max uint16
	switch kind {
	case Coil:
		max = maxMultiWriteQtyCoils
	case HoldingRegister:
		max = maxMultiWriteQtyRegisters
	default:
		return ErrIllegalFunction
	}
	if quantity < 1 || quantity > max {
		return ErrIllegalDataValue
	}
	if int(addr)+int(quantity) > maxAddressSpace {
		return ErrIllegalDataValue
	}
	return nil
}
