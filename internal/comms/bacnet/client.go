package bacnet

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	gobacnet "github.com/alexbeltran/gobacnet"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
)

// addressCacheFile is the file gobacnet's WhoIs/IAm binding writes/reads,
// matching the original implementation's `address_cache` convention
// (original_source ClientConnection.cpp's destructor removes the same
// file).
const addressCacheFile = "address_cache"

// Client owns one Connection per remote BACnet device it polls (spec.md
// §4.5.3).
type Client struct {
	mu          sync.Mutex
	connections map[string]*Connection
}

// NewClient returns an empty BACnet Client.
func NewClient() *Client {
	return &Client{connections: make(map[string]*Connection)}
}

// Connection is a BACnet Client's connection to one remote device.
type Connection struct {
	*common.Connection
	transport *bacnetTransport
}

// AddBinary registers tag as a Binary Input/Output object instance at addr.
func (c *Connection) AddBinary(tag string, addr uint16) {
	c.Connection.AddBinary(tag, common.RegisterDescriptor{Address: addr})
}

// AddAnalog registers tag as an Analog Input/Output object instance at addr.
func (c *Connection) AddAnalog(tag string, addr uint16) {
	c.Connection.AddAnalog(tag, common.RegisterDescriptor{Address: addr})
}

// Connect binds a gobacnet client to iface, resolves deviceInstance via
// WhoIs/IAm (recording the binding in address_cache in the original
// implementation's line format), and returns the new Connection.
func (c *Client) Connect(iface string, deviceInstance uint32, pollInterval time.Duration) (*Connection, error) {
	cl, err := gobacnet.NewClient(iface, gobacnet.DefaultPort)
	if err != nil {
		return nil, fmt.Errorf("bacnet: starting client comm on %s: %w", iface, err)
	}

	devices, err := cl.WhoIs(int(deviceInstance), int(deviceInstance))
	if err != nil || len(devices) == 0 {
		cl.Close()
		return nil, fmt.Errorf("bacnet: could not bind to device %d on %s", deviceInstance, iface)
	}
	dev := devices[0]

	if err := appendAddressCache(deviceInstance, dev); err != nil {
		cl.Close()
		return nil, err
	}

	t := &bacnetTransport{client: cl, device: dev}
	cc := &Connection{
		Connection: common.NewConnection("bacnet", t),
		transport:  t,
	}

	key := fmt.Sprintf("%s/%d", iface, deviceInstance)
	c.mu.Lock()
	c.connections[key] = cc
	c.mu.Unlock()
	return cc, nil
}

// PollAll issues a ReadProperty(PROP_PRESENT_VALUE) for every mapped point
// on every connection (original_source ClientConnection.cpp's `poll`).
func (c *Client) PollAll() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.connections))
	for _, cc := range c.connections {
		conns = append(conns, cc)
	}
	c.mu.Unlock()
	for _, cc := range conns {
		cc.Poll()
	}
}

// Close closes every underlying gobacnet client and removes address_cache,
// matching original_source ClientConnection.cpp's destructor.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.connections {
		cc.transport.client.Close()
	}
	os.Remove(addressCacheFile)
	return nil
}

// appendAddressCache appends one line in the original implementation's
// `<device-id> <mac> <net> <addr> <max-apdu>` address_cache format.
func appendAddressCache(deviceInstance uint32, dev gobacnet.Device) error {
	f, err := os.OpenFile(addressCacheFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bacnet: opening %s: %w", addressCacheFile, err)
	}
	defer f.Close()

	line := strings.Join([]string{
		strconv.FormatUint(uint64(deviceInstance), 10),
		dev.Addr.String(),
		strconv.Itoa(int(dev.Addr.Net)),
		dev.Addr.String(),
		strconv.Itoa(int(dev.MaxApdu)),
	}, " ")
	_, err = f.WriteString(line + "\n")
	return err
}

// bacnetTransport implements common.Transport over a gobacnet.Client bound
// to one remote device.
type bacnetTransport struct {
	mu     sync.Mutex
	client *gobacnet.Client
	device gobacnet.Device
}

func (t *bacnetTransport) WriteBinary(addr uint16, v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.WriteProperty(t.device, uint32(addr), presentValueBinary(v), noPriority)
}

func (t *bacnetTransport) WriteAnalog(addr uint16, v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.WriteProperty(t.device, uint32(addr), v, noPriority)
}

// SelectBinary/SelectAnalog: BACnet has no Select-Before-Operate concept
// (spec.md §4.5.3 only requires it for DNP3); WriteProperty is the only
// write path.
func (t *bacnetTransport) SelectBinary(addr uint16, v bool) error {
	return common.ErrSBONotSupported
}

func (t *bacnetTransport) SelectAnalog(addr uint16, v float64) error {
	return common.ErrSBONotSupported
}

func (t *bacnetTransport) PollBinary(addrs []uint16) (map[uint16]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint16]bool, len(addrs))
	for _, addr := range addrs {
		v, err := t.client.ReadProperty(t.device, uint32(addr))
		if err != nil {
			return nil, fmt.Errorf("bacnet: read property %d: %w", addr, err)
		}
		out[addr] = v != 0
	}
	return out, nil
}

func (t *bacnetTransport) PollAnalog(addrs []uint16) (map[uint16]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint16]float64, len(addrs))
	for _, addr := range addrs {
		v, err := t.client.ReadProperty(t.device, uint32(addr))
		if err != nil {
			return nil, fmt.Errorf("bacnet: read property %d: %w", addr, err)
		}
		out[addr] = v
	}
	return out, nil
}

// noPriority is BACNET_NO_PRIORITY, the original implementation's write
// priority (original_source ClientConnection.cpp's BacnetWriteProperty
// calls).
const noPriority = 0

func presentValueBinary(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
