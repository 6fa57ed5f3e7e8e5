// Package testing holds a USB-IP client for exercising the gadget from tests.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/padbridge/padbridge/usbip"
)

// UsbIpClient speaks the client half of USB-IP: devlist, import and URBs.
type UsbIpClient struct {
	address string
	seq     uint32
}

// Attachment is an imported device session.
type Attachment struct {
	Conn     net.Conn
	Exported usbip.ExportedDevice
}

// ErrImportRefused carries the non-zero status of an OP_REP_IMPORT.
type ErrImportRefused uint32

func (e ErrImportRefused) Error() string { return fmt.Sprintf("import refused: status %d", uint32(e)) }

func NewUsbIpClient(t *testing.T, addr string) *UsbIpClient {
	t.Helper()
	return &UsbIpClient{address: addr}
}

func (c *UsbIpClient) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1)
}

func (c *UsbIpClient) ListDevices() ([]usbip.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}
	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return nil, err
	}
	if hdr.Command != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	var n uint32
	if err := binary.Read(conn, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	devices := make([]usbip.ExportedDevice, 0, n)
	for i := uint32(0); i < n; i++ {
		dev, err := usbip.ReadExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func (c *UsbIpClient) Attach(busID string) (*Attachment, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	_ = (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Write(&buf)
	bus := usbip.MakeBusID(busID)
	buf.Write(bus[:])
	if _, err := conn.Write(buf.Bytes()); err != nil {
		conn.Close()
		return nil, err
	}

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hdr.Command != usbip.OpRepImport {
		conn.Close()
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	if hdr.Status != 0 {
		conn.Close()
		return nil, ErrImportRefused(hdr.Status)
	}
	dev, err := usbip.ReadExportedDevice(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &Attachment{Conn: conn, Exported: dev}, nil
}

// Submit sends one CMD_SUBMIT and returns the reply status and IN payload.
// For IN transfers inLen is the transfer buffer length; for OUT it is ignored.
func (c *UsbIpClient) Submit(conn net.Conn, dir, ep uint32, setup [8]byte, out []byte, inLen uint32) (int32, []byte, error) {
	if conn == nil {
		return 0, nil, io.ErrUnexpectedEOF
	}
	bufLen := inLen
	if dir == usbip.DirOut {
		bufLen = uint32(len(out))
	}
	seq := c.nextSeq()
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: seq, Devid: 1<<16 | 1, Dir: dir, Ep: ep},
		TransferBufferLen: bufLen,
		Setup:             setup,
	}

	_ = conn.SetDeadline(time.Now().Add(time.Second))
	defer conn.SetDeadline(time.Time{})

	var buf bytes.Buffer
	_ = cmd.Write(&buf)
	if dir == usbip.DirOut {
		buf.Write(out)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return 0, nil, err
	}

	hdr, err := usbip.ReadURBHeader(conn)
	if err != nil {
		return 0, nil, err
	}
	if hdr.Command() != usbip.RetSubmitCode {
		return 0, nil, fmt.Errorf("unexpected ret cmd %x", hdr.Command())
	}
	ret := hdr.RetSubmit()
	if ret.Basic.Seqnum != seq {
		return 0, nil, fmt.Errorf("seqnum mismatch: got %d want %d", ret.Basic.Seqnum, seq)
	}
	var data []byte
	if dir == usbip.DirIn && ret.ActualLength > 0 {
		data = make([]byte, ret.ActualLength)
		if _, err := io.ReadFull(conn, data); err != nil {
			return 0, nil, err
		}
	}
	return ret.Status, data, nil
}

// Setup packs a control setup packet.
func Setup(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16) [8]byte {
	var s [8]byte
	s[0] = bmRequestType
	s[1] = bRequest
	binary.LittleEndian.PutUint16(s[2:4], wValue)
	binary.LittleEndian.PutUint16(s[4:6], wIndex)
	binary.LittleEndian.PutUint16(s[6:8], wLength)
	return s
}

// ControlIn issues an IN control transfer on EP0.
func (c *UsbIpClient) ControlIn(conn net.Conn, bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16) (int32, []byte, error) {
	return c.Submit(conn, usbip.DirIn, 0, Setup(bmRequestType, bRequest, wValue, wIndex, wLength), nil, uint32(wLength))
}

// ControlOut issues an OUT control transfer on EP0.
func (c *UsbIpClient) ControlOut(conn net.Conn, bmRequestType, bRequest uint8, wValue, wIndex uint16, data []byte) (int32, error) {
	st, _, err := c.Submit(conn, usbip.DirOut, 0, Setup(bmRequestType, bRequest, wValue, wIndex, uint16(len(data))), data, 0)
	return st, err
}

// ReadInputReport polls the interrupt IN endpoint once.
func (c *UsbIpClient) ReadInputReport(conn net.Conn, ep uint32) ([]byte, error) {
	st, data, err := c.Submit(conn, usbip.DirIn, ep, [8]byte{}, nil, 64)
	if err != nil {
		return nil, err
	}
	if st != usbip.StatusOK {
		return nil, fmt.Errorf("ret status %d", st)
	}
	return data, nil
}

// PollInputReport reads the IN endpoint until it returns want or timeout passes.
// It returns the last report read.
func (c *UsbIpClient) PollInputReport(conn net.Conn, ep uint32, want []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		got, err := c.ReadInputReport(conn, ep)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(got, want) || time.Now().After(deadline) {
			return got, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Unlink sends CMD_UNLINK for seq and returns the reply status.
func (c *UsbIpClient) Unlink(conn net.Conn, seq uint32) (int32, error) {
	cmd := usbip.CmdUnlink{
		Basic:        usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: c.nextSeq()},
		UnlinkSeqnum: seq,
	}
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	defer conn.SetDeadline(time.Time{})
	if err := cmd.Write(conn); err != nil {
		return 0, err
	}
	hdr, err := usbip.ReadURBHeader(conn)
	if err != nil {
		return 0, err
	}
	if hdr.Command() != usbip.RetUnlinkCode {
		return 0, fmt.Errorf("unexpected ret cmd %x", hdr.Command())
	}
	ret := hdr.RetUnlink()
	return ret.Status, nil
}
