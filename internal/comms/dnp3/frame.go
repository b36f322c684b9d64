package dnp3

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func decodeAnalogResponse(resp []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(resp))
}

// wire framing: [function(1)][address(2)][payload length(2)][payload...],
// all integers big-endian. This is the hand-rolled fragment structuring
// DESIGN.md documents as the stdlib stand-in for a real DNP3 application
// layer; it carries function code + point address + payload, the minimum
// shape spec.md §4.5.3's Read/DirectOperate/Select/Operate contract needs.
const frameHeaderSize = 5

func readFragment(r io.Reader) (functionCode, uint16, []byte, error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, 0, nil, err
	}
	fc := functionCode(hdr[0])
	addr := binary.BigEndian.Uint16(hdr[1:3])
	n := binary.BigEndian.Uint16(hdr[3:5])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, 0, nil, err
		}
	}
	return fc, addr, payload, nil
}

func writeFragment(w io.Writer, fc functionCode, addr uint16, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("dnp3: fragment payload too large (%d bytes)", len(payload))
	}
	hdr := make([]byte, frameHeaderSize)
	hdr[0] = byte(fc)
	binary.BigEndian.PutUint16(hdr[1:3], addr)
	binary.BigEndian.PutUint16(hdr[3:5], uint16(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}
