package goose

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// L2Conn is the raw layer-2 socket a Publisher/Subscriber sends and
// receives whole Ethernet frames over. Production wiring supplies an
// AF_PACKET (or equivalent) socket bound to the publishing interface;
// spec.md §6 treats the physical socket as contract-level only, so this
// interface is the seam, and the GOOSE-specific framing above it is real
// gopacket usage, not a reimplementation of layer 2.
type L2Conn interface {
	WriteFrame(frame []byte) error
	ReadFrame() ([]byte, error)
	LocalMAC() net.HardwareAddr
}

// buildFrame wraps a GOOSE APDU in an Ethernet header destined for dst,
// using gopacket's Ethernet layer for the real 802.3/EtherType framing
// (original_source pdu-offsets.hpp's PREAMBLE_OFFSET/GOOSE_MESSAGE_TAG_OFFSET
// describe the same structure at the byte-offset level this replaces).
func buildFrame(src, dst net.HardwareAddr, apdu []byte) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetType(EtherType),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false}
	if err := gopacket.SerializeLayers(buf, opts, ð, gopacket.Payload(apdu)); err != nil {
		return nil, fmt.Errorf("goose: serializing frame: %w", err)
	}
	return buf.Bytes(), nil
}

// parseFrame decodes an Ethernet frame captured off the wire and returns its
// GOOSE APDU payload, or ok=false if it is not a GOOSE frame.
func parseFrame(frame []byte) (apdu []byte, ok bool) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, false
	}
	eth, _ := ethLayer.(*layers.Ethernet)
	if eth == nil || uint16(eth.EthernetType) != EtherType {
		return nil, false
	}
	return eth.Payload, true
}
