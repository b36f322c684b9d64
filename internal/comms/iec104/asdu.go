package iec104

import (
	"encoding/binary"
	"math"

	"github.com/pascaldekloe/part5/info"
)

// Type identification, cause of transmission, and quality-descriptor
// constants are grounded on github.com/pascaldekloe/part5/info, the pack's
// only real Go implementation of the IEC 60870-5-101/104 companion
// standard's type table.
const (
	typeIDDoublePoint = info.TypeID(info.M_DP_NA_1) // monitor: double-point information
	typeIDShortFloat  = info.TypeID(info.M_ME_NC_1) // monitor: short floating-point value
	typeIDDoubleCmd   = info.TypeID(info.C_DC_NA_1) // control: double command
	typeIDShortSet    = info.TypeID(info.C_SE_NC_1) // control: short floating-point setpoint
	typeIDInterrogate = info.TypeID(info.C_IC_NA_1) // control: interrogation command
)

// Cause of transmission values (IEC 60870-5-101 table 9).
const (
	cotPeriodic    byte = 1
	cotSpontaneous byte = 3
	cotRequest     byte = 5
	cotActivation  byte = 6
	cotActivConf   byte = 7
	cotActTerm     byte = 10
	cotInrogen     byte = 20
)

// DoublePoint is the DPI value domain of a type M_DP_NA_1/C_DC_NA_1 object
// (spec.md §4.5.3's {0<->OFF, 1<->ON, else<->INTERMEDIATE} mapping).
type DoublePoint byte

const (
	DPIIntermediate  DoublePoint = 0
	DPIOff           DoublePoint = 1
	DPIOn            DoublePoint = 2
	DPIIndeterminate DoublePoint = 3
)

// doublePointFromBool maps a tag-store boolean onto the DPI domain.
func doublePointFromBool(v bool) DoublePoint {
	if v {
		return DPIOn
	}
	return DPIOff
}

// boolFromDoublePoint maps the DPI domain back onto a boolean: DPIOn (2) ->
// true; DPIOff (1), DPIIntermediate (0) and DPIIndeterminate (3) -> false,
// since the tag store has no ternary state.
func boolFromDoublePoint(dp DoublePoint) bool {
	return dp == DPIOn
}

// qualityGood is the single-bit quality descriptor with no flags set.
const qualityGood byte = 0

type ioAddress uint32 // 24-bit information object address

func encodeIOA(addr ioAddress) []byte {
	b := make([]byte, 3)
	b[0] = byte(addr)
	b[1] = byte(addr >> 8)
	b[2] = byte(addr >> 16)
	return b
}

func decodeIOA(b []byte) ioAddress {
	return ioAddress(b[0]) | ioAddress(b[1])<<8 | ioAddress(b[2])<<16
}

// encodeDoublePointObject encodes one M_DP_NA_1 information object: IOA(3)
// + DIQ(1), DIQ's low 2 bits carrying the DPI value and the quality bits
// left clear.
func encodeDoublePointObject(addr ioAddress, dp DoublePoint) []byte {
	b := encodeIOA(addr)
	return append(b, byte(dp)&0x03|qualityGood)
}

func decodeDoublePointObject(obj []byte) (ioAddress, DoublePoint) {
	addr := decodeIOA(obj[:3])
	return addr, DoublePoint(obj[3] & 0x03)
}

// encodeShortFloatObject encodes one M_ME_NC_1/C_SE_NC_1 information
// object: IOA(3) + IEEE754 short float(4) + quality(1).
func encodeShortFloatObject(addr ioAddress, v float64) []byte {
	b := encodeIOA(addr)
	fb := make([]byte, 4)
	binary.LittleEndian.PutUint32(fb, math.Float32bits(float32(v)))
	b = append(b, fb...)
	return append(b, qualityGood)
}

func decodeShortFloatObject(obj []byte) (ioAddress, float64) {
	addr := decodeIOA(obj[:3])
	v := math.Float32frombits(binary.LittleEndian.Uint32(obj[3:7]))
	return addr, float64(v)
}

// asdu is a decoded application service data unit: type, variable structure
// qualifier (object count, with the sequence bit folded out), cause of
// transmission, common (station) address, and the object payload.
type asdu struct {
	typeID     info.TypeID
	numObjects int
	cot        byte
	commonAddr uint16
	objects    []byte
}

func encodeASDU(a asdu) []byte {
	b := make([]byte, 0, 6+len(a.objects))
	b = append(b, byte(a.typeID), byte(a.numObjects)&0x7f, a.cot, 0)
	b = append(b, byte(a.commonAddr), byte(a.commonAddr>>8))
	return append(b, a.objects...)
}

func decodeASDU(raw []byte) asdu {
	return asdu{
		typeID:     info.TypeID(raw[0]),
		numObjects: int(raw[1] & 0x7f),
		cot:        raw[2],
		commonAddr: uint16(raw[4]) | uint16(raw[5])<<8,
		objects:    raw[6:],
	}
}

const asduHeaderSize = 6

// chunkObjects groups fixed-size encoded objects into one or more ASDUs of
// the same typeID/cot/commonAddr, splitting so that no encoded ASDU exceeds
// maxASDUPayload bytes (spec.md §8).
func chunkObjects(typeID info.TypeID, cot byte, commonAddr uint16, objSize int, objects [][]byte) [][]byte {
	maxPerASDU := (maxASDUPayload - asduHeaderSize) / objSize
	if maxPerASDU < 1 {
		maxPerASDU = 1
	}

	var out [][]byte
	for len(objects) > 0 {
		n := len(objects)
		if n > maxPerASDU {
			n = maxPerASDU
		}
		group := objects[:n]
		objects = objects[n:]

		payload := make([]byte, 0, objSize*n)
		for _, obj := range group {
			payload = append(payload, obj...)
		}
		out = append(out, encodeASDU(asdu{
			typeID:     typeID,
			numObjects: n,
			cot:        cot,
			commonAddr: commonAddr,
			objects:    payload,
		}))
	}
	return out
}
