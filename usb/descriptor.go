// Package usb models the static descriptors of a full-speed USB device and
// encodes them to the bytes a host reads during enumeration.
package usb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/padbridge/padbridge/usb/hid"
)

// Descriptor type codes.
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Fixed descriptor lengths.
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
)

// Configuration attribute bits.
const (
	ConfigAttrReserved     = 0x80
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// Endpoint transfer types.
const (
	EndpointControl     = 0x00
	EndpointIsochronous = 0x01
	EndpointBulk        = 0x02
	EndpointInterrupt   = 0x03
)

// EndpointDirIn is the direction bit of bEndpointAddress.
const EndpointDirIn = 0x80

// Speeds as reported in a USB-IP device record.
const (
	SpeedLow  uint32 = 1
	SpeedFull uint32 = 2
	SpeedHigh uint32 = 3
)

// Descriptor is everything a host can read from one device with a single configuration.
type Descriptor struct {
	Device     DeviceDescriptor
	Config     ConfigDescriptor
	Interfaces []InterfaceConfig
	// Strings maps string index to text. Index 0 (language IDs) is answered automatically.
	Strings map[uint8]string
}

// DeviceDescriptor is the standard 18-byte device descriptor. Speed is not
// part of the descriptor; it is carried for the USB-IP device record.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
	Speed              uint32
}

// ConfigDescriptor holds the fields of the configuration header that are not derived.
type ConfigDescriptor struct {
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	// MaxPowerMA is the bus current in mA; it is encoded in 2 mA units.
	MaxPowerMA uint16
}

// RemoteWakeup reports whether the configuration advertises remote wakeup.
func (c ConfigDescriptor) RemoteWakeup() bool {
	return c.BMAttributes&ConfigAttrRemoteWakeup != 0
}

// InterfaceConfig is one interface with its endpoints and optional HID function.
type InterfaceConfig struct {
	Descriptor InterfaceDescriptor
	Endpoints  []EndpointDescriptor
	HID        *HIDFunction
}

type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

// HIDFunction is the HID class descriptor (0x21) plus the report descriptor (0x22) it announces.
type HIDFunction struct {
	BcdHID       uint16
	BCountryCode uint8
	Report       hid.Report
}

// DeviceBytes encodes the device descriptor.
func (d *Descriptor) DeviceBytes() []byte {
	dd := d.Device
	b := make([]byte, DeviceDescLen)
	b[0] = DeviceDescLen
	b[1] = DeviceDescType
	binary.LittleEndian.PutUint16(b[2:4], dd.BcdUSB)
	b[4] = dd.BDeviceClass
	b[5] = dd.BDeviceSubClass
	b[6] = dd.BDeviceProtocol
	b[7] = dd.BMaxPacketSize0
	binary.LittleEndian.PutUint16(b[8:10], dd.IDVendor)
	binary.LittleEndian.PutUint16(b[10:12], dd.IDProduct)
	binary.LittleEndian.PutUint16(b[12:14], dd.BcdDevice)
	b[14] = dd.IManufacturer
	b[15] = dd.IProduct
	b[16] = dd.ISerialNumber
	b[17] = dd.BNumConfigurations
	return b
}

// ConfigBytes encodes the full configuration descriptor: header, then for each
// interface its descriptor, HID descriptor and endpoints. wTotalLength is filled in.
func (d *Descriptor) ConfigBytes() ([]byte, error) {
	var b bytes.Buffer
	c := d.Config
	b.Write([]byte{
		ConfigDescLen, ConfigDescType,
		0, 0, // wTotalLength, patched below
		uint8(len(d.Interfaces)),
		c.BConfigurationValue,
		c.IConfiguration,
		c.BMAttributes | ConfigAttrReserved,
		uint8(c.MaxPowerMA / 2),
	})

	for _, iface := range d.Interfaces {
		id := iface.Descriptor
		b.Write([]byte{
			InterfaceDescLen, InterfaceDescType,
			id.BInterfaceNumber,
			id.BAlternateSetting,
			uint8(len(iface.Endpoints)),
			id.BInterfaceClass,
			id.BInterfaceSubClass,
			id.BInterfaceProtocol,
			id.IInterface,
		})
		if iface.HID != nil {
			hd, err := iface.HID.DescriptorBytes()
			if err != nil {
				return nil, fmt.Errorf("interface %d: %w", id.BInterfaceNumber, err)
			}
			b.Write(hd)
		}
		for _, ep := range iface.Endpoints {
			b.Write([]byte{
				EndpointDescLen, EndpointDescType,
				ep.BEndpointAddress,
				ep.BMAttributes,
				uint8(ep.WMaxPacketSize), uint8(ep.WMaxPacketSize >> 8),
				ep.BInterval,
			})
		}
	}

	out := b.Bytes()
	if len(out) > 0xFFFF {
		return nil, fmt.Errorf("usb: configuration descriptor too large: %d", len(out))
	}
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(out)))
	return out, nil
}

// StringBytes encodes string descriptor index. Index 0 returns the language
// table (US English). ok is false for unknown indices.
func (d *Descriptor) StringBytes(index uint8) (b []byte, ok bool) {
	if index == 0 {
		return []byte{4, StringDescType, 0x09, 0x04}, true
	}
	s, ok := d.Strings[index]
	if !ok {
		return nil, false
	}
	return EncodeStringDescriptor(s), true
}

// EncodeStringDescriptor encodes s as a UTF-16LE string descriptor. Text
// beyond what fits in 255 bytes is truncated.
func EncodeStringDescriptor(s string) []byte {
	units := utf16.Encode([]rune(s))
	if limit := (255 - 2) / 2; len(units) > limit {
		units = units[:limit]
	}
	buf := make([]byte, 2+len(units)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2+i*2:], u)
	}
	return buf
}

// DescriptorBytes encodes the 9-byte HID class descriptor announcing one report descriptor.
func (f *HIDFunction) DescriptorBytes() ([]byte, error) {
	rb, err := f.Report.Bytes()
	if err != nil {
		return nil, err
	}
	if len(rb) > 0xFFFF {
		return nil, fmt.Errorf("usb: HID report descriptor too large: %d", len(rb))
	}
	b := make([]byte, 9)
	b[0] = 9
	b[1] = HIDDescType
	binary.LittleEndian.PutUint16(b[2:4], f.BcdHID)
	b[4] = f.BCountryCode
	b[5] = 1
	b[6] = ReportDescType
	binary.LittleEndian.PutUint16(b[7:9], uint16(len(rb)))
	return b, nil
}

// ReportBytes encodes the HID report descriptor.
func (f *HIDFunction) ReportBytes() ([]byte, error) {
	rb, err := f.Report.Bytes()
	if err != nil {
		return nil, err
	}
	return []byte(rb), nil
}
