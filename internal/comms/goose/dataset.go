package goose

import (
	"encoding/binary"
	"fmt"
	"math"
)

// entryKind distinguishes a dataset entry's ASN.1-ish basic type, grounded
// on original_source data-set.hpp's boolean/float member values.
type entryKind byte

const (
	entryBoolean entryKind = 0x83
	entryFloat   entryKind = 0x87
)

// Entry is one value in a GOOSE dataset: either a binary status or an
// analog measurement, matching spec.md §4.5.3's dataset member types.
type Entry struct {
	Binary bool
	BVal   bool
	FVal   float64
}

func encodeEntries(entries []Entry) []byte {
	var payload []byte
	for _, e := range entries {
		if e.Binary {
			v := byte(0)
			if e.BVal {
				v = 1
			}
			payload = append(payload, byte(entryBoolean), 1, v)
		} else {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, math.Float32bits(float32(e.FVal)))
			payload = append(payload, byte(entryFloat), 4)
			payload = append(payload, b...)
		}
	}
	return payload
}

func decodeEntries(buf []byte) ([]Entry, error) {
	var entries []Entry
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("goose: truncated dataset entry")
		}
		kind := entryKind(buf[0])
		length := int(buf[1])
		if len(buf) < 2+length {
			return nil, fmt.Errorf("goose: truncated dataset entry value")
		}
		value := buf[2 : 2+length]
		buf = buf[2+length:]
		switch kind {
		case entryBoolean:
			entries = append(entries, Entry{Binary: true, BVal: len(value) > 0 && value[0] != 0})
		case entryFloat:
			if len(value) < 4 {
				return nil, fmt.Errorf("goose: truncated float dataset entry")
			}
			v := math.Float32frombits(binary.BigEndian.Uint32(value))
			entries = append(entries, Entry{Binary: false, FVal: float64(v)})
		default:
			return nil, fmt.Errorf("goose: unknown dataset entry kind 0x%02x", kind)
		}
	}
	return entries, nil
}

// PDU is a complete GOOSE application protocol data unit: header plus
// dataset value sequence.
type PDU struct {
	Header  Header
	Entries []Entry
}

// Encode serializes p as [pduTag][length][header TLVs][tagAllData triplet
// wrapping the entry sequence].
func Encode(p PDU) []byte {
	hdr := encodeHeader(p.Header)
	entries := encodeEntries(p.Entries)
	allData := putTLV(nil, tagAllData, entries)
	body := append(hdr, allData...)
	out := append([]byte{pduTag, byte(len(body))}, body...)
	return out
}

// Decode parses a PDU produced by Encode.
func Decode(raw []byte) (PDU, error) {
	if len(raw) < 2 || raw[0] != pduTag {
		return PDU{}, fmt.Errorf("goose: bad PDU tag")
	}
	length := int(raw[1])
	if len(raw) < 2+length {
		return PDU{}, fmt.Errorf("goose: truncated PDU body")
	}
	body := raw[2 : 2+length]
	h, dataset, err := decodeHeader(body)
	if err != nil {
		return PDU{}, err
	}
	entries, err := decodeEntries(dataset)
	if err != nil {
		return PDU{}, err
	}
	return PDU{Header: h, Entries: entries}, nil
}
