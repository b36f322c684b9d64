// Package goose implements an IEC 61850-8-1 GOOSE Publisher and Subscriber
// (spec.md §4.5.3): a layer-2 dataset broadcast with a state number (stNum)
// incremented on value change, a sequence number (sqNum) incremented on
// every retransmission, and a time-to-live-bounded resend schedule.
//
// The GOOSE header's tag/length/value triplet layout (goCBRef, datSet,
// goID, stNum, sqNum, ...) is grounded on original_source's
// goose/header.hpp and goose/pdu-offsets.hpp; frame transport uses
// github.com/google/gopacket's Ethernet layer for the EtherType framing
// (frames are written untagged, with no 802.1Q VLAN header). The GOOSE APDU
// has no gopacket-native layer, so its triplet encoding is hand-rolled in
// Encode/Decode and handed to gopacket as a raw payload (see DESIGN.md).
package goose

import (
	"encoding/binary"
	"fmt"
)

// GOOSE PDU tag, grounded on original_source header.hpp's GOOSE_HEADER_TAG.
const pduTag = 0x61

// EtherType for a GOOSE APDU (IEC 61850-8-1 clause 5).
const EtherType = 0x88b8

// Header field tags, grounded on original_source header.hpp's per-field
// tag_value enums.
const (
	tagGoCBRef           = 0x80
	tagTimeAllowedToLive = 0x81
	tagDatSet            = 0x82
	tagGoID              = 0x83
	tagT                 = 0x84
	tagStNum             = 0x85
	tagSqNum             = 0x86
	tagSimulation        = 0x87
	tagConfRev           = 0x88
	tagNdsCom            = 0x89
	tagNumDatSetEntries  = 0x8a
	tagAllData           = 0xab // dataset value sequence, boolean/float entries
)

// Header is the decoded GOOSE header fields (original_source header.hpp's
// header_t), excluding the dataset value sequence itself.
type Header struct {
	GoCBRef             string
	TimeAllowedToLiveMs uint32
	DatSet              string
	GoID                string
	TimestampUnixMs     uint64
	StNum               uint32
	SqNum               uint32
	Simulation          bool
	ConfRev             uint32
	NdsCom              bool
	NumDatSetEntries    uint32
}

func putTLV(buf []byte, tag byte, value []byte) []byte {
	buf = append(buf, tag, byte(len(value)))
	return append(buf, value...)
}

func putUint32TLV(buf []byte, tag byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return putTLV(buf, tag, b)
}

func putBoolTLV(buf []byte, tag byte, v bool) []byte {
	val := byte(0)
	if v {
		val = 1
	}
	return putTLV(buf, tag, []byte{val})
}

func putStringTLV(buf []byte, tag byte, s string) []byte {
	return putTLV(buf, tag, []byte(s))
}

// encodeHeader serializes h's fields as the TLV triplets described in
// original_source header.hpp (tag + 1-byte length + value), in header_t's
// declared field order.
func encodeHeader(h Header) []byte {
	var buf []byte
	buf = putStringTLV(buf, tagGoCBRef, h.GoCBRef)
	buf = putUint32TLV(buf, tagTimeAllowedToLive, h.TimeAllowedToLiveMs)
	buf = putStringTLV(buf, tagDatSet, h.DatSet)
	buf = putStringTLV(buf, tagGoID, h.GoID)
	tb := make([]byte, 8)
	binary.BigEndian.PutUint64(tb, h.TimestampUnixMs)
	buf = putTLV(buf, tagT, tb)
	buf = putUint32TLV(buf, tagStNum, h.StNum)
	buf = putUint32TLV(buf, tagSqNum, h.SqNum)
	buf = putBoolTLV(buf, tagSimulation, h.Simulation)
	buf = putUint32TLV(buf, tagConfRev, h.ConfRev)
	buf = putBoolTLV(buf, tagNdsCom, h.NdsCom)
	buf = putUint32TLV(buf, tagNumDatSetEntries, h.NumDatSetEntries)
	return buf
}

func readTLV(buf []byte) (tag byte, value []byte, rest []byte, err error) {
	if len(buf) < 2 {
		return 0, nil, nil, fmt.Errorf("goose: truncated TLV header")
	}
	tag = buf[0]
	length := int(buf[1])
	if len(buf) < 2+length {
		return 0, nil, nil, fmt.Errorf("goose: truncated TLV value for tag 0x%02x", tag)
	}
	return tag, buf[2 : 2+length], buf[2+length:], nil
}

// decodeHeader parses the TLV triplets produced by encodeHeader, ignoring
// any unrecognized tag (forward compatibility, same tolerance a real
// GOOSE subscriber needs for vendor extensions).
func decodeHeader(buf []byte) (Header, []byte, error) {
	var h Header
	for len(buf) > 0 {
		tag, value, rest, err := readTLV(buf)
		if err != nil {
			return h, nil, err
		}
		buf = rest
		switch tag {
		case tagGoCBRef:
			h.GoCBRef = string(value)
		case tagTimeAllowedToLive:
			h.TimeAllowedToLiveMs = binary.BigEndian.Uint32(value)
		case tagDatSet:
			h.DatSet = string(value)
		case tagGoID:
			h.GoID = string(value)
		case tagT:
			h.TimestampUnixMs = binary.BigEndian.Uint64(value)
		case tagStNum:
			h.StNum = binary.BigEndian.Uint32(value)
		case tagSqNum:
			h.SqNum = binary.BigEndian.Uint32(value)
		case tagSimulation:
			h.Simulation = len(value) > 0 && value[0] != 0
		case tagConfRev:
			h.ConfRev = binary.BigEndian.Uint32(value)
		case tagNdsCom:
			h.NdsCom = len(value) > 0 && value[0] != 0
		case tagNumDatSetEntries:
			h.NumDatSetEntries = binary.BigEndian.Uint32(value)
		case tagAllData:
			return h, value, nil // dataset value sequence; caller decodes entries
		}
	}
	return h, nil, nil
}
