// Package usbip encodes and decodes the USB-IP wire protocol (version 1.1.1).
// All multi-byte fields are big-endian.
package usbip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	Version = 0x0111

	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	DirOut = 0x00000000
	DirIn  = 0x00000001
)

// Sizes of fixed wire structures.
const (
	MgmtHeaderSize  = 8
	BusIDSize       = 32
	PathSize        = 256
	DeviceEntrySize = 312
	URBHeaderSize   = 48
)

// Status codes carried in RET_SUBMIT and RET_UNLINK.
const (
	StatusOK        int32 = 0
	StatusStall     int32 = -32  // -EPIPE
	StatusConnReset int32 = -104 // -ECONNRESET
)

// MgmtHeader is the 8-byte header of OP_REQ_* and OP_REP_* messages.
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	var buf [MgmtHeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], h.Command)
	binary.BigEndian.PutUint32(buf[4:8], h.Status)
	_, err := w.Write(buf[:])
	return err
}

// ReadMgmtHeader reads one management header and checks the protocol version.
func ReadMgmtHeader(r io.Reader) (MgmtHeader, error) {
	var buf [MgmtHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return MgmtHeader{}, err
	}
	h := MgmtHeader{
		Version: binary.BigEndian.Uint16(buf[0:2]),
		Command: binary.BigEndian.Uint16(buf[2:4]),
		Status:  binary.BigEndian.Uint32(buf[4:8]),
	}
	if h.Version != Version {
		return h, fmt.Errorf("usbip: unsupported version %#04x", h.Version)
	}
	return h, nil
}

// BusID is the fixed-size, NUL-padded bus identifier ("1-1").
type BusID [BusIDSize]byte

func MakeBusID(s string) BusID {
	var b BusID
	copy(b[:], s)
	return b
}

func (b BusID) String() string { return cString(b[:]) }

// ReadBusID reads the busid that follows an OP_REQ_IMPORT header.
func ReadBusID(r io.Reader) (BusID, error) {
	var b BusID
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// ExportedDevice is one device record in OP_REP_DEVLIST and OP_REP_IMPORT.
type ExportedDevice struct {
	Path   string
	BusID  BusID
	BusNum uint32
	DevNum uint32
	Speed  uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8

	// Interfaces is written only in devlist replies; its length is bNumInterfaces.
	Interfaces []InterfaceDesc
}

func (d *ExportedDevice) entry() []byte {
	b := make([]byte, DeviceEntrySize)
	copy(b[0:PathSize], d.Path)
	copy(b[256:288], d.BusID[:])
	binary.BigEndian.PutUint32(b[288:292], d.BusNum)
	binary.BigEndian.PutUint32(b[292:296], d.DevNum)
	binary.BigEndian.PutUint32(b[296:300], d.Speed)
	binary.BigEndian.PutUint16(b[300:302], d.IDVendor)
	binary.BigEndian.PutUint16(b[302:304], d.IDProduct)
	binary.BigEndian.PutUint16(b[304:306], d.BcdDevice)
	b[306] = d.BDeviceClass
	b[307] = d.BDeviceSubClass
	b[308] = d.BDeviceProtocol
	b[309] = d.BConfigurationValue
	b[310] = d.BNumConfigurations
	b[311] = uint8(len(d.Interfaces))
	return b
}

// WriteDevlist writes the record followed by one 4-byte triplet per interface.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	b := d.entry()
	for _, iface := range d.Interfaces {
		b = append(b, iface.Class, iface.SubClass, iface.Protocol, 0)
	}
	_, err := w.Write(b)
	return err
}

// WriteImport writes the record without interface triplets.
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	_, err := w.Write(d.entry())
	return err
}

// ReadExportedDevice decodes one record. With interfaces=true the interface
// triplets of a devlist reply are read too.
func ReadExportedDevice(r io.Reader, interfaces bool) (ExportedDevice, error) {
	var b [DeviceEntrySize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return ExportedDevice{}, err
	}
	d := ExportedDevice{
		Path:                cString(b[0:PathSize]),
		BusNum:              binary.BigEndian.Uint32(b[288:292]),
		DevNum:              binary.BigEndian.Uint32(b[292:296]),
		Speed:               binary.BigEndian.Uint32(b[296:300]),
		IDVendor:            binary.BigEndian.Uint16(b[300:302]),
		IDProduct:           binary.BigEndian.Uint16(b[302:304]),
		BcdDevice:           binary.BigEndian.Uint16(b[304:306]),
		BDeviceClass:        b[306],
		BDeviceSubClass:     b[307],
		BDeviceProtocol:     b[308],
		BConfigurationValue: b[309],
		BNumConfigurations:  b[310],
	}
	copy(d.BusID[:], b[256:288])
	n := int(b[311])
	if !interfaces {
		d.Interfaces = make([]InterfaceDesc, n)
		return d, nil
	}
	trip := make([]byte, 4*n)
	if _, err := io.ReadFull(r, trip); err != nil {
		return d, err
	}
	for i := 0; i < n; i++ {
		d.Interfaces = append(d.Interfaces, InterfaceDesc{Class: trip[4*i], SubClass: trip[4*i+1], Protocol: trip[4*i+2]})
	}
	return d, nil
}

// HeaderBasic is the first 20 bytes of every URB command and reply.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

func (h *HeaderBasic) put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Command)
	binary.BigEndian.PutUint32(b[4:8], h.Seqnum)
	binary.BigEndian.PutUint32(b[8:12], h.Devid)
	binary.BigEndian.PutUint32(b[12:16], h.Dir)
	binary.BigEndian.PutUint32(b[16:20], h.Ep)
}

func (h *HeaderBasic) get(b []byte) {
	h.Command = binary.BigEndian.Uint32(b[0:4])
	h.Seqnum = binary.BigEndian.Uint32(b[4:8])
	h.Devid = binary.BigEndian.Uint32(b[8:12])
	h.Dir = binary.BigEndian.Uint32(b[12:16])
	h.Ep = binary.BigEndian.Uint32(b[16:20])
}

// URBHeader is a raw 48-byte URB header; Command says which struct to decode it into.
type URBHeader [URBHeaderSize]byte

// ReadURBHeader reads one URB header.
func ReadURBHeader(r io.Reader) (URBHeader, error) {
	var h URBHeader
	_, err := io.ReadFull(r, h[:])
	return h, err
}

func (h *URBHeader) Command() uint32 { return binary.BigEndian.Uint32(h[0:4]) }

// CmdSubmit is USBIP_CMD_SUBMIT without its OUT payload.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

func (c *CmdSubmit) Write(w io.Writer) error {
	var b URBHeader
	c.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], c.TransferFlags)
	binary.BigEndian.PutUint32(b[24:28], c.TransferBufferLen)
	binary.BigEndian.PutUint32(b[28:32], c.StartFrame)
	binary.BigEndian.PutUint32(b[32:36], c.NumberOfPackets)
	binary.BigEndian.PutUint32(b[36:40], c.Interval)
	copy(b[40:48], c.Setup[:])
	_, err := w.Write(b[:])
	return err
}

func (h *URBHeader) CmdSubmit() CmdSubmit {
	var c CmdSubmit
	c.Basic.get(h[:])
	c.TransferFlags = binary.BigEndian.Uint32(h[20:24])
	c.TransferBufferLen = binary.BigEndian.Uint32(h[24:28])
	c.StartFrame = binary.BigEndian.Uint32(h[28:32])
	c.NumberOfPackets = binary.BigEndian.Uint32(h[32:36])
	c.Interval = binary.BigEndian.Uint32(h[36:40])
	copy(c.Setup[:], h[40:48])
	return c
}

// RetSubmit is USBIP_RET_SUBMIT without its IN payload.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
}

// Bytes encodes the header followed by payload.
func (r *RetSubmit) Bytes(payload []byte) []byte {
	b := make([]byte, URBHeaderSize, URBHeaderSize+len(payload))
	r.Basic.put(b)
	binary.BigEndian.PutUint32(b[20:24], uint32(r.Status))
	binary.BigEndian.PutUint32(b[24:28], r.ActualLength)
	binary.BigEndian.PutUint32(b[28:32], r.StartFrame)
	binary.BigEndian.PutUint32(b[32:36], r.NumberOfPackets)
	binary.BigEndian.PutUint32(b[36:40], r.ErrorCount)
	return append(b, payload...)
}

func (r *RetSubmit) Write(w io.Writer) error {
	_, err := w.Write(r.Bytes(nil))
	return err
}

func (h *URBHeader) RetSubmit() RetSubmit {
	var r RetSubmit
	r.Basic.get(h[:])
	r.Status = int32(binary.BigEndian.Uint32(h[20:24]))
	r.ActualLength = binary.BigEndian.Uint32(h[24:28])
	r.StartFrame = binary.BigEndian.Uint32(h[28:32])
	r.NumberOfPackets = binary.BigEndian.Uint32(h[32:36])
	r.ErrorCount = binary.BigEndian.Uint32(h[36:40])
	return r
}

// CmdUnlink is USBIP_CMD_UNLINK.
type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
}

func (c *CmdUnlink) Write(w io.Writer) error {
	var b URBHeader
	c.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], c.UnlinkSeqnum)
	_, err := w.Write(b[:])
	return err
}

func (h *URBHeader) CmdUnlink() CmdUnlink {
	var c CmdUnlink
	c.Basic.get(h[:])
	c.UnlinkSeqnum = binary.BigEndian.Uint32(h[20:24])
	return c
}

// RetUnlink is USBIP_RET_UNLINK.
type RetUnlink struct {
	Basic  HeaderBasic
	Status int32
}

func (r *RetUnlink) Write(w io.Writer) error {
	var b URBHeader
	r.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], uint32(r.Status))
	_, err := w.Write(b[:])
	return err
}

func (h *URBHeader) RetUnlink() RetUnlink {
	var r RetUnlink
	r.Basic.get(h[:])
	r.Status = int32(binary.BigEndian.Uint32(h[20:24]))
	return r
}
