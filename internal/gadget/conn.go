package gadget

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/padbridge/padbridge/device/switchpad"
	"github.com/padbridge/padbridge/usb"
	"github.com/padbridge/padbridge/usbip"
)

const devicePath = "/sys/devices/platform/padbridge/usb1/"

// maxControlOut bounds the data stage of an EP0 OUT request.
const maxControlOut = 4096

// ErrTransferTooLarge is returned when a client announces an OUT payload
// larger than the endpoint accepts. The connection is dropped.
var ErrTransferTooLarge = errors.New("gadget: OUT transfer too large")

func maxOutLen(ep uint32) uint32 {
	if ep == 0 {
		return maxControlOut
	}
	return uint32(switchpad.MaxPacketSize)
}

// session is the per-import view of the device's standard state.
type session struct {
	configValue uint8
	wakeEnabled bool
}

func (g *Gadget) track(c net.Conn) bool {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	select {
	case <-g.done:
		return false
	default:
	}
	g.conns[c] = struct{}{}
	return true
}

func (g *Gadget) untrack(c net.Conn) {
	g.connMu.Lock()
	delete(g.conns, c)
	if g.imported == c {
		g.imported = nil
	}
	g.connMu.Unlock()
}

// claim makes c the importing connection. Only one client may hold the device.
func (g *Gadget) claim(c net.Conn) bool {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.imported != nil {
		return false
	}
	g.imported = c
	return true
}

func (g *Gadget) handleConn(raw net.Conn) error {
	defer raw.Close()
	if !g.track(raw) {
		return nil
	}
	defer g.untrack(raw)

	conn := &logConn{Conn: raw, raw: g.rawLogger}
	if g.cfg.ConnectionTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(g.cfg.ConnectionTimeout)); err != nil {
			g.logger.Warn("Failed to set deadline", "error", err)
		}
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	switch hdr.Command {
	case usbip.OpReqDevlist:
		g.logger.Info("OP_REQ_DEVLIST")
		return g.handleDevList(conn)
	case usbip.OpReqImport:
		g.logger.Info("OP_REQ_IMPORT")
		ok, err := g.handleImport(conn, raw)
		if err != nil || !ok {
			return err
		}
		g.post(event{kind: evAttached})
		g.touch()
		defer g.post(event{kind: evDetached})
		return g.handleURBStream(conn)
	}
	return fmt.Errorf("protocol violation: unexpected op %#04x", hdr.Command)
}

func (g *Gadget) exported() usbip.ExportedDevice {
	desc := g.pad.GetDescriptor()
	exp := usbip.ExportedDevice{
		Path:                devicePath + g.cfg.BusID,
		BusID:               usbip.MakeBusID(g.cfg.BusID),
		BusNum:              busNum,
		DevNum:              devNum,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: desc.Config.BConfigurationValue,
		BNumConfigurations:  desc.Device.BNumConfigurations,
	}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (g *Gadget) handleDevList(conn net.Conn) error {
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist}
	_ = rep.Write(&buf)
	_ = binary.Write(&buf, binary.BigEndian, uint32(1))
	exp := g.exported()
	_ = exp.WriteDevlist(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

// handleImport answers OP_REQ_IMPORT. ok is false when the request was refused.
func (g *Gadget) handleImport(conn net.Conn, raw net.Conn) (ok bool, err error) {
	busID, err := usbip.ReadBusID(conn)
	if err != nil {
		return false, fmt.Errorf("read import busid: %w", err)
	}
	g.logger.Info("Import request", "busid", busID.String())

	var buf bytes.Buffer
	if busID.String() != g.cfg.BusID || !g.claim(raw) {
		g.logger.Warn("Import refused", "busid", busID.String(), "exported", g.cfg.BusID)
		rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 1}
		_ = rep.Write(&buf)
		_, err := conn.Write(buf.Bytes())
		return false, err
	}

	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport}
	_ = rep.Write(&buf)
	exp := g.exported()
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return false, fmt.Errorf("write import reply: %w", err)
	}
	return true, nil
}

func (g *Gadget) handleURBStream(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	var sess session

	for {
		hdr, err := usbip.ReadURBHeader(conn)
		if err != nil {
			return fmt.Errorf("read URB header: %w", err)
		}
		g.touch()

		switch hdr.Command() {
		case usbip.CmdUnlinkCode:
			cmd := hdr.CmdUnlink()
			g.logger.Debug("USBIP_CMD_UNLINK", "seq", cmd.Basic.Seqnum, "unlink", cmd.UnlinkSeqnum)
			ret := usbip.RetUnlink{
				Basic:  usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: cmd.Basic.Seqnum},
				Status: usbip.StatusConnReset,
			}
			if err := ret.Write(conn); err != nil {
				return fmt.Errorf("write RET_UNLINK: %w", err)
			}
			continue
		case usbip.CmdSubmitCode:
		default:
			return fmt.Errorf("unsupported cmd %d", hdr.Command())
		}

		cmd := hdr.CmdSubmit()
		var out []byte
		if cmd.Basic.Dir == usbip.DirOut && cmd.TransferBufferLen > 0 {
			if limit := maxOutLen(cmd.Basic.Ep); cmd.TransferBufferLen > limit {
				return fmt.Errorf("%w: ep %d seq %d len %d > %d", ErrTransferTooLarge,
					cmd.Basic.Ep, cmd.Basic.Seqnum, cmd.TransferBufferLen, limit)
			}
			out = make([]byte, cmd.TransferBufferLen)
			if _, err := io.ReadFull(conn, out); err != nil {
				return fmt.Errorf("read OUT payload: %w", err)
			}
		}

		data, status := g.processSubmit(&sess, &cmd, out)
		if cmd.Basic.Dir == usbip.DirIn && uint32(len(data)) > cmd.TransferBufferLen {
			data = data[:cmd.TransferBufferLen]
		}
		actual := uint32(len(data))
		if cmd.Basic.Dir == usbip.DirOut && status == usbip.StatusOK {
			actual = uint32(len(out))
		}
		ret := usbip.RetSubmit{
			Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: cmd.Basic.Seqnum},
			Status:       status,
			ActualLength: actual,
		}
		if _, err := conn.Write(ret.Bytes(data)); err != nil {
			return fmt.Errorf("write RET_SUBMIT: %w", err)
		}
	}
}

// processSubmit serves one URB. Standard EP0 requests are answered here,
// class requests go to the device, everything else is an endpoint transfer.
func (g *Gadget) processSubmit(sess *session, cmd *usbip.CmdSubmit, out []byte) ([]byte, int32) {
	if cmd.Basic.Ep != 0 {
		return g.pad.HandleTransfer(cmd.Basic.Ep, cmd.Basic.Dir, out), usbip.StatusOK
	}

	setup := cmd.Setup
	bm := setup[0]
	breq := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	wIndex := binary.LittleEndian.Uint16(setup[4:6])
	wLength := binary.LittleEndian.Uint16(setup[6:8])

	if bm&usb.RequestTypeMask != usb.RequestTypeStandard {
		resp, handled := g.pad.HandleControl(bm, breq, wValue, wIndex, wLength, out)
		if !handled {
			return nil, usbip.StatusStall
		}
		return clip(resp, wLength), usbip.StatusOK
	}

	desc := g.pad.GetDescriptor()
	recipient := bm & usb.RequestRecipientMask

	switch breq {
	case usb.ReqSetAddress:
		return nil, usbip.StatusOK
	case usb.ReqSetConfiguration:
		v := uint8(wValue)
		if v != 0 && v != desc.Config.BConfigurationValue {
			return nil, usbip.StatusStall
		}
		sess.configValue = v
		g.post(event{kind: evConfigured, on: v != 0})
		return nil, usbip.StatusOK
	case usb.ReqGetConfiguration:
		return []byte{sess.configValue}, usbip.StatusOK
	case usb.ReqGetStatus:
		st := byte(0)
		if recipient == usb.RequestRecipientDevice && sess.wakeEnabled {
			st |= 0x02
		}
		return clip([]byte{st, 0}, wLength), usbip.StatusOK
	case usb.ReqSetFeature, usb.ReqClearFeature:
		if recipient == usb.RequestRecipientDevice && wValue == usb.FeatureDeviceRemoteWakeup {
			if !desc.Config.RemoteWakeup() {
				return nil, usbip.StatusStall
			}
			sess.wakeEnabled = breq == usb.ReqSetFeature
			g.post(event{kind: evRemoteWakeup, on: sess.wakeEnabled})
		}
		return nil, usbip.StatusOK
	case usb.ReqSetInterface:
		return nil, usbip.StatusOK
	case usb.ReqGetInterface:
		return []byte{0}, usbip.StatusOK
	case usb.ReqGetDescriptor:
		data := g.descriptorFor(recipient, wValue, wIndex)
		if data == nil {
			return nil, usbip.StatusStall
		}
		return clip(data, wLength), usbip.StatusOK
	}
	return nil, usbip.StatusStall
}

func (g *Gadget) descriptorFor(recipient uint8, wValue, wIndex uint16) []byte {
	desc := g.pad.GetDescriptor()
	dtype := uint8(wValue >> 8)
	dindex := uint8(wValue)

	if recipient == usb.RequestRecipientInterface {
		iface := int(wIndex & 0xFF)
		if iface >= len(desc.Interfaces) || desc.Interfaces[iface].HID == nil {
			return nil
		}
		h := desc.Interfaces[iface].HID
		var (
			b   []byte
			err error
		)
		switch dtype {
		case usb.HIDDescType:
			b, err = h.DescriptorBytes()
		case usb.ReportDescType:
			b, err = h.ReportBytes()
		default:
			return nil
		}
		if err != nil {
			g.logger.Error("Encode HID descriptor", "error", err)
			return nil
		}
		return b
	}

	switch dtype {
	case usb.DeviceDescType:
		return desc.DeviceBytes()
	case usb.ConfigDescType:
		b, err := desc.ConfigBytes()
		if err != nil {
			g.logger.Error("Encode configuration descriptor", "error", err)
			return nil
		}
		return b
	case usb.StringDescType:
		b, ok := desc.StringBytes(dindex)
		if !ok {
			return nil
		}
		return b
	}
	return nil
}

func clip(b []byte, wLength uint16) []byte {
	if int(wLength) < len(b) {
		return b[:wLength]
	}
	return b
}
