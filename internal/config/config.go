// Package config decodes the field-device configuration tree (spec.md §6)
// into the Go-native shape the rest of the runtime wires against. The
// config tree itself is external input -- spec.md §1 explicitly excludes
// its on-disk grammar (an XML-like document) from this system's scope --
// so this package only defines the JSON-decodable shape a loader upstream
// of this runtime is expected to produce, and validates it the way the
// teacher's internal/config package validates its own JSON config
// (DisallowUnknownFields, then a Validate pass) before anything is wired.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Device is the top-level `field-device` element (spec.md §6).
type Device struct {
	Name       string    `json:"name"`
	CycleTime  int64     `json:"cycle-time"`
	Logic      string    `json:"logic"`
	Tags       Tags      `json:"tags"`
	Comms      Comms     `json:"comms"`
}

// Tags is the `tags` element: the external/internal tag declarations.
type Tags struct {
	ExternalTags []ExternalTag `json:"external-tag"`
	InternalTags []InternalTag `json:"internal-tag"`
}

// ExternalTag declares an alias into the external point store (spec.md §6:
// `external-tag` with `name`, `io` (point id), `type`).
type ExternalTag struct {
	Name string `json:"name"`
	IO   string `json:"io"`
	Type string `json:"type"` // "binary" | "analog"
}

// InternalTag declares a directly-valued internal tag (spec.md §6:
// `internal-tag` with `name` and either `status` or `value`).
type InternalTag struct {
	Name   string   `json:"name"`
	Status *bool    `json:"status,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

// IsBinary reports whether this tag was declared with `status` rather than
// `value`.
func (t InternalTag) IsBinary() bool { return t.Status != nil }

// Comms is the `comms` element: zero or more protocol server/client blocks.
type Comms struct {
	ModbusServers []ModbusServerConfig `json:"modbus-server,omitempty"`
	ModbusClients []ModbusClientConfig `json:"modbus-client,omitempty"`

	DNP3Servers []DNP3ServerConfig `json:"dnp3-server,omitempty"`
	DNP3Clients []DNP3ClientConfig `json:"dnp3-client,omitempty"`

	IEC104Servers []IEC104ServerConfig `json:"iec60870-5-104-server,omitempty"`
	IEC104Clients []IEC104ClientConfig `json:"iec60870-5-104-client,omitempty"`

	BACnetServers []BACnetServerConfig `json:"bacnet-server,omitempty"`
	BACnetClients []BACnetClientConfig `json:"bacnet-client,omitempty"`

	GOOSE []GOOSEConfig `json:"goose,omitempty"`

	CommandInterfaces []CommandInterfaceConfig `json:"command-interface,omitempty"`
}

// PointConfig is one addressed protocol point entry shared by every
// server's coil/discrete-input/holding-register/input-register/
// binary-input/binary-output/analog-input/analog-output blocks (spec.md
// §6).
type PointConfig struct {
	Address   uint16  `json:"address"`
	Tag       string  `json:"tag"`
	MinValue  float64 `json:"min-value,omitempty"`
	MaxValue  float64 `json:"max-value,omitempty"`
	SGVar     int     `json:"sgvar,omitempty"`
	EGVar     int     `json:"egvar,omitempty"`
	Class     int     `json:"class,omitempty"`
	Deadband  float64 `json:"deadband,omitempty"`
	SBO       bool    `json:"sbo,omitempty"`
}

// ModbusServerConfig is a `modbus-server` block.
type ModbusServerConfig struct {
	Endpoint        string        `json:"endpoint"`
	Coils           []PointConfig `json:"coil,omitempty"`
	DiscreteInputs  []PointConfig `json:"discrete-input,omitempty"`
	HoldingRegisters []PointConfig `json:"holding-register,omitempty"`
	InputRegisters  []PointConfig `json:"input-register,omitempty"`
}

// ModbusConnectionConfig is a `modbus-connection` entry inside a
// `modbus-client` block.
type ModbusConnectionConfig struct {
	Endpoint        string        `json:"endpoint"`
	Coils           []PointConfig `json:"coil,omitempty"`
	HoldingRegisters []PointConfig `json:"holding-register,omitempty"`
	InputRegisters  []PointConfig `json:"input-register,omitempty"`
	ScanRateMs      int64         `json:"scan-rate-ms,omitempty"`
}

// ModbusClientConfig is a `modbus-client` block.
type ModbusClientConfig struct {
	Connections []ModbusConnectionConfig `json:"modbus-connection,omitempty"`
}

// DNP3ServerConfig is a `dnp3-server` block.
type DNP3ServerConfig struct {
	Endpoint       string        `json:"endpoint"`
	LocalAddress   uint16        `json:"local-address"`
	BinaryInputs   []PointConfig `json:"binary-input,omitempty"`
	BinaryOutputs  []PointConfig `json:"binary-output,omitempty"`
	AnalogInputs   []PointConfig `json:"analog-input,omitempty"`
	AnalogOutputs  []PointConfig `json:"analog-output,omitempty"`
}

// DNP3ConnectionConfig is a `dnp3-connection` entry inside a `dnp3-client`
// block.
type DNP3ConnectionConfig struct {
	Endpoint      string        `json:"endpoint"`
	RemoteAddress uint16        `json:"remote-address"`
	LocalAddress  uint16        `json:"local-address"`
	BinaryInputs  []PointConfig `json:"binary-input,omitempty"`
	AnalogInputs  []PointConfig `json:"analog-input,omitempty"`
	ScanRateAllMs    int64 `json:"scan-rate-all-ms,omitempty"`
	ScanRateClass0Ms int64 `json:"scan-rate-class0-ms,omitempty"`
	ScanRateClass1Ms int64 `json:"scan-rate-class1-ms,omitempty"`
	ScanRateClass2Ms int64 `json:"scan-rate-class2-ms,omitempty"`
	ScanRateClass3Ms int64 `json:"scan-rate-class3-ms,omitempty"`
}

// DNP3ClientConfig is a `dnp3-client` block.
type DNP3ClientConfig struct {
	Connections []DNP3ConnectionConfig `json:"dnp3-connection,omitempty"`
}

// IEC104ServerConfig is an `iec60870-5-104-server` block.
type IEC104ServerConfig struct {
	Endpoint       string        `json:"endpoint"`
	BinaryInputs   []PointConfig `json:"binary-input,omitempty"`
	BinaryOutputs  []PointConfig `json:"binary-output,omitempty"`
	AnalogInputs   []PointConfig `json:"analog-input,omitempty"`
	AnalogOutputs  []PointConfig `json:"analog-output,omitempty"`
	ReversePollMs  int64         `json:"reverse-poll-ms,omitempty"`
}

// IEC104ConnectionConfig is an `iec60870-5-104-connection` entry inside an
// `iec60870-5-104-client` block.
type IEC104ConnectionConfig struct {
	Endpoint     string        `json:"endpoint"`
	BinaryInputs []PointConfig `json:"binary-input,omitempty"`
	AnalogInputs []PointConfig `json:"analog-input,omitempty"`
}

// IEC104ClientConfig is an `iec60870-5-104-client` block.
type IEC104ClientConfig struct {
	Connections []IEC104ConnectionConfig `json:"iec60870-5-104-connection,omitempty"`
}

// BACnetServerConfig is a `bacnet-server` block.
type BACnetServerConfig struct {
	Endpoint       string        `json:"endpoint"`
	DeviceInstance uint32        `json:"device-instance"`
	AnalogInputs   []PointConfig `json:"analog-input,omitempty"`
	AnalogOutputs  []PointConfig `json:"analog-output,omitempty"`
	BinaryInputs   []PointConfig `json:"binary-input,omitempty"`
	BinaryOutputs  []PointConfig `json:"binary-output,omitempty"`
}

// BACnetClientConfig is a `bacnet-client` block: one RTU connection per the
// original device's single-connection ClientConnection model.
type BACnetClientConfig struct {
	Endpoint      string        `json:"endpoint"`
	RTUInstance   uint32        `json:"rtu-instance"`
	ScanRateSec   uint32        `json:"scan-rate-sec"`
	BinaryInputs  []PointConfig `json:"binary-input,omitempty"`
	AnalogInputs  []PointConfig `json:"analog-input,omitempty"`
}

// GOOSEConfig is a `goose` control-block element: a publisher and/or
// subscriber outstation bound to a layer-2 interface.
type GOOSEConfig struct {
	Interface   string        `json:"interface"`
	VLAN        bool          `json:"vlan,omitempty"`
	DatasetRef  string        `json:"dataset-ref"`
	GoCBRef     string        `json:"gocb-ref"`
	DstMAC      string        `json:"dst-mac"`
	TimeToLiveMs int64        `json:"time-to-live-ms,omitempty"`
	PublishMs   int64         `json:"publish-ms,omitempty"`
	Publish     bool          `json:"publish,omitempty"`
	Subscribe   bool          `json:"subscribe,omitempty"`
	BinaryPoints []PointConfig `json:"binary-point,omitempty"`
	AnalogPoints []PointConfig `json:"analog-point,omitempty"`
}

// CommandInterfaceConfig is a `command-interface` block (spec.md §4.6): it
// binds to one Client adapter, named by protocol + connection endpoint.
type CommandInterfaceConfig struct {
	Endpoint         string `json:"endpoint"`
	ClientProtocol   string `json:"client-protocol"`
	ClientConnection string `json:"client-connection"`
}

// defaultCycleTimeMs is spec.md §6's default `cycle-time`.
const defaultCycleTimeMs = 1000

// Load reads and decodes path into a Device, applying defaults and
// rejecting unknown fields the way the teacher's config.Init does
// (encoding/json with DisallowUnknownFields). The field-device daemon treats
// a load failure here as fatal and exits with code 1 (spec.md §6).
func Load(path string) (*Device, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dev := &Device{CycleTime: defaultCycleTimeMs}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dev); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := dev.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return dev, nil
}

// Validate enforces the structural requirements spec.md §6/§7 places on a
// configuration tree before it is wired into the runtime: a name, a
// positive cycle time, and internally consistent tag declarations.
func (d *Device) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("field-device: missing required \"name\"")
	}
	if d.CycleTime <= 0 {
		d.CycleTime = defaultCycleTimeMs
	}
	seen := make(map[string]bool, len(d.Tags.InternalTags)+len(d.Tags.ExternalTags))
	for _, t := range d.Tags.InternalTags {
		if t.Name == "" {
			return fmt.Errorf("field-device/tags/internal-tag: missing required \"name\"")
		}
		if t.Status == nil && t.Value == nil {
			return fmt.Errorf("field-device/tags/internal-tag[%s]: requires \"status\" or \"value\"", t.Name)
		}
		seen[t.Name] = true
	}
	for _, t := range d.Tags.ExternalTags {
		if t.Name == "" || t.IO == "" {
			return fmt.Errorf("field-device/tags/external-tag: missing required \"name\" or \"io\"")
		}
		if t.Type != "binary" && t.Type != "analog" {
			return fmt.Errorf("field-device/tags/external-tag[%s]: \"type\" must be binary or analog", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("field-device/tags/external-tag[%s]: name collides with an internal-tag", t.Name)
		}
	}
	return nil
}
