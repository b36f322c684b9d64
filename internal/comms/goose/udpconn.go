package goose

import (
	"fmt"
	"net"
)

// UDPConn is an L2Conn stand-in built on a UDP multicast group rather than a
// raw AF_PACKET socket. Binding to the real physical interface and EtherType
// 0x88b8 needs a raw socket with elevated privileges, which spec.md §6
// treats as contract-level only (outside this system's scope); UDPConn lets
// a field device exercise the Publisher/Subscriber pair over an ordinary,
// unprivileged network path during integration testing and lab deployments
// where a genuine layer-2 segment isn't available.
type UDPConn struct {
	mac   net.HardwareAddr
	group *net.UDPAddr
	conn  *net.UDPConn
}

// DialUDP joins iface's interface to the multicast group at groupAddr
// (e.g. "239.0.0.1:10200") and returns a ready UDPConn.
func DialUDP(iface string, groupAddr string) (*UDPConn, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("goose: resolving interface %s: %w", iface, err)
	}
	addr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, fmt.Errorf("goose: resolving group %s: %w", groupAddr, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", ifi, addr)
	if err != nil {
		return nil, fmt.Errorf("goose: joining group %s on %s: %w", groupAddr, iface, err)
	}
	mac := ifi.HardwareAddr
	if len(mac) == 0 {
		mac = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	}
	return &UDPConn{mac: mac, group: addr, conn: conn}, nil
}

// WriteFrame sends frame (a full Ethernet-framed APDU) as one UDP datagram
// to the multicast group.
func (c *UDPConn) WriteFrame(frame []byte) error {
	_, err := c.conn.WriteToUDP(frame, c.group)
	return err
}

// ReadFrame blocks for the next datagram on the group.
func (c *UDPConn) ReadFrame() ([]byte, error) {
	buf := make([]byte, 2048)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// LocalMAC returns the bound interface's hardware address.
func (c *UDPConn) LocalMAC() net.HardwareAddr { return c.mac }

// Close releases the multicast socket.
func (c *UDPConn) Close() error { return c.conn.Close() }
