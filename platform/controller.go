package platform

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Class is the kind of controller a data frame describes.
type Class uint8

const (
	ClassNone Class = iota
	ClassGamepad
	ClassMouse
	ClassKeyboard
	ClassBalanceBoard
)

func (c Class) String() string {
	switch c {
	case ClassGamepad:
		return "gamepad"
	case ClassMouse:
		return "mouse"
	case ClassKeyboard:
		return "keyboard"
	case ClassBalanceBoard:
		return "balance-board"
	default:
		return "none"
	}
}

// Gamepad is the raw gamepad state in the stack's own encoding.
type Gamepad struct {
	// Buttons uses the Button* masks.
	Buttons uint16
	// DPad uses the DPad* masks.
	DPad uint8
	// MiscButtons uses the MiscButton* masks.
	MiscButtons uint8
	// Sticks: -512 to 511.
	AxisX, AxisY   int32
	AxisRX, AxisRY int32
	// Analog triggers: 0 to 1023.
	Brake, Throttle int32
}

// Controller is one state frame for a connected device.
type Controller struct {
	Class   Class
	Gamepad Gamepad
}

// ControllerSize is the encoded length of a Controller frame.
const ControllerSize = 29

// MarshalBinary encodes Controller to 29 bytes.
// Layout:
//
//	 0: Class
//	 1-2: Buttons (LE)
//	 3: DPad
//	 4: MiscButtons
//	 5-20: AxisX, AxisY, AxisRX, AxisRY (LE int32 each)
//	21-24: Brake (LE int32)
//	25-28: Throttle (LE int32)
func (c *Controller) MarshalBinary() ([]byte, error) {
	b := make([]byte, ControllerSize)
	gp := &c.Gamepad
	b[0] = uint8(c.Class)
	binary.LittleEndian.PutUint16(b[1:3], gp.Buttons)
	b[3] = gp.DPad
	b[4] = gp.MiscButtons
	binary.LittleEndian.PutUint32(b[5:9], uint32(gp.AxisX))
	binary.LittleEndian.PutUint32(b[9:13], uint32(gp.AxisY))
	binary.LittleEndian.PutUint32(b[13:17], uint32(gp.AxisRX))
	binary.LittleEndian.PutUint32(b[17:21], uint32(gp.AxisRY))
	binary.LittleEndian.PutUint32(b[21:25], uint32(gp.Brake))
	binary.LittleEndian.PutUint32(b[25:29], uint32(gp.Throttle))
	return b, nil
}

// UnmarshalBinary decodes 29 bytes into Controller.
func (c *Controller) UnmarshalBinary(data []byte) error {
	if len(data) < ControllerSize {
		return io.ErrUnexpectedEOF
	}
	c.Class = Class(data[0])
	gp := &c.Gamepad
	gp.Buttons = binary.LittleEndian.Uint16(data[1:3])
	gp.DPad = data[3]
	gp.MiscButtons = data[4]
	gp.AxisX = int32(binary.LittleEndian.Uint32(data[5:9]))
	gp.AxisY = int32(binary.LittleEndian.Uint32(data[9:13]))
	gp.AxisRX = int32(binary.LittleEndian.Uint32(data[13:17]))
	gp.AxisRY = int32(binary.LittleEndian.Uint32(data[17:21]))
	gp.Brake = int32(binary.LittleEndian.Uint32(data[21:25]))
	gp.Throttle = int32(binary.LittleEndian.Uint32(data[25:29]))
	return nil
}

// DeviceInfo is what the stack learns about a device before connecting to it.
type DeviceInfo struct {
	Addr Address
	Name string
	COD  uint32
	RSSI int8
}

// MaxNameLen bounds DeviceInfo.Name on the wire.
const MaxNameLen = 248

// MarshalBinary encodes DeviceInfo.
// Layout: addr[6], cod (LE u32), rssi (i8), name length (u8), name bytes.
func (d *DeviceInfo) MarshalBinary() ([]byte, error) {
	if len(d.Name) > MaxNameLen {
		return nil, fmt.Errorf("device name too long: %d > %d", len(d.Name), MaxNameLen)
	}
	b := make([]byte, 12+len(d.Name))
	copy(b[0:6], d.Addr[:])
	binary.LittleEndian.PutUint32(b[6:10], d.COD)
	b[10] = uint8(d.RSSI)
	b[11] = uint8(len(d.Name))
	copy(b[12:], d.Name)
	return b, nil
}

// UnmarshalBinary decodes DeviceInfo.
func (d *DeviceInfo) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return io.ErrUnexpectedEOF
	}
	n := int(data[11])
	if len(data) < 12+n {
		return io.ErrUnexpectedEOF
	}
	copy(d.Addr[:], data[0:6])
	d.COD = binary.LittleEndian.Uint32(data[6:10])
	d.RSSI = int8(data[10])
	d.Name = string(data[12 : 12+n])
	return nil
}

// ReadDeviceInfo reads one encoded DeviceInfo from r.
func ReadDeviceInfo(r io.Reader) (DeviceInfo, error) {
	var d DeviceInfo
	hdr := make([]byte, 12)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return d, err
	}
	name := make([]byte, int(hdr[11]))
	if _, err := io.ReadFull(r, name); err != nil {
		return d, err
	}
	err := d.UnmarshalBinary(append(hdr, name...))
	return d, err
}
