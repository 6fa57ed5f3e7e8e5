package sniff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/padbridge/padbridge/usbip"
)

// Message is one decoded USB-IP message.
type Message struct {
	Op    string
	Seq   uint32
	Attrs []any
}

// seqDirs remembers the direction of each submitted URB, since RET_SUBMIT
// does not carry it and only IN replies have a payload.
type seqDirs struct {
	mu   sync.Mutex
	dirs map[uint32]uint32
}

func newSeqDirs() *seqDirs { return &seqDirs{dirs: make(map[uint32]uint32)} }

func (s *seqDirs) put(seq, dir uint32) {
	s.mu.Lock()
	s.dirs[seq] = dir
	s.mu.Unlock()
}

func (s *seqDirs) take(seq uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dirs[seq]
	delete(s.dirs, seq)
	return d, ok
}

// Parser reassembles one direction of a USB-IP stream into messages.
type Parser struct {
	urbs bool
	lost bool
	seqs *seqDirs
	buf  bytes.Buffer
}

// NewPair returns the client->server and server->client parsers of one connection.
func NewPair() (toServer, toClient *Parser) {
	seqs := newSeqDirs()
	return &Parser{seqs: seqs}, &Parser{seqs: seqs}
}

const (
	maxBuffered = 256 * 1024
	// maxTransfer bounds the payload a single URB may announce.
	maxTransfer = 64 * 1024
)

// Feed appends data and returns every message completed by it. Malformed
// input is reported once as an "UNKNOWN" message; the rest of the stream is
// then passed through undecoded.
func (p *Parser) Feed(data []byte) []Message {
	if p.lost {
		return nil
	}
	p.buf.Write(data)
	var out []Message
	for {
		m, n := p.next(p.buf.Bytes())
		if n == 0 {
			break
		}
		p.buf.Next(n)
		out = append(out, m)
		if p.lost {
			break
		}
	}
	if p.buf.Len() > maxBuffered {
		m, _ := p.unknown(p.buf.Bytes(), "buffer overflow")
		out = append(out, m)
	}
	return out
}

// next decodes one message from b. It returns n == 0 when b is incomplete.
func (p *Parser) next(b []byte) (Message, int) {
	if p.urbs {
		return p.nextURB(b)
	}
	if len(b) < usbip.MgmtHeaderSize {
		return Message{}, 0
	}
	ver := binary.BigEndian.Uint16(b[0:2])
	code := binary.BigEndian.Uint16(b[2:4])
	status := binary.BigEndian.Uint32(b[4:8])
	if ver != usbip.Version {
		return p.unknown(b, fmt.Sprintf("version %#04x", ver))
	}

	switch code {
	case usbip.OpReqDevlist:
		return Message{Op: "OP_REQ_DEVLIST"}, usbip.MgmtHeaderSize
	case usbip.OpReqImport:
		n := usbip.MgmtHeaderSize + usbip.BusIDSize
		if len(b) < n {
			return Message{}, 0
		}
		var bus usbip.BusID
		copy(bus[:], b[usbip.MgmtHeaderSize:n])
		p.urbs = true
		return Message{Op: "OP_REQ_IMPORT", Attrs: []any{"busid", bus.String()}}, n
	case usbip.OpRepImport:
		if status != 0 {
			return Message{Op: "OP_REP_IMPORT", Attrs: []any{"status", status}}, usbip.MgmtHeaderSize
		}
		n := usbip.MgmtHeaderSize + usbip.DeviceEntrySize
		if len(b) < n {
			return Message{}, 0
		}
		dev, err := usbip.ReadExportedDevice(bytes.NewReader(b[usbip.MgmtHeaderSize:n]), false)
		if err != nil {
			return p.unknown(b, err.Error())
		}
		p.urbs = true
		return Message{Op: "OP_REP_IMPORT", Attrs: append([]any{"status", status}, deviceAttrs(&dev)...)}, n
	case usbip.OpRepDevlist:
		return p.devlist(b)
	}
	return p.unknown(b, fmt.Sprintf("op %#04x", code))
}

func (p *Parser) devlist(b []byte) (Message, int) {
	if len(b) < usbip.MgmtHeaderSize+4 {
		return Message{}, 0
	}
	count := binary.BigEndian.Uint32(b[8:12])
	r := bytes.NewReader(b[12:])
	attrs := []any{"devices", count}
	for i := uint32(0); i < count; i++ {
		dev, err := usbip.ReadExportedDevice(r, true)
		if err != nil {
			// Short read: wait for the rest of the list.
			return Message{}, 0
		}
		attrs = append(attrs, fmt.Sprintf("dev%d", i), fmt.Sprintf("%s %04x:%04x", dev.BusID.String(), dev.IDVendor, dev.IDProduct))
	}
	return Message{Op: "OP_REP_DEVLIST", Attrs: attrs}, len(b) - r.Len()
}

func (p *Parser) nextURB(b []byte) (Message, int) {
	if len(b) < usbip.URBHeaderSize {
		return Message{}, 0
	}
	var h usbip.URBHeader
	copy(h[:], b[:usbip.URBHeaderSize])

	switch h.Command() {
	case usbip.CmdSubmitCode:
		c := h.CmdSubmit()
		n := usbip.URBHeaderSize
		if c.Basic.Dir == usbip.DirOut {
			if c.TransferBufferLen > maxTransfer {
				return p.unknown(b, fmt.Sprintf("OUT length %d", c.TransferBufferLen))
			}
			n += int(c.TransferBufferLen)
		}
		if len(b) < n {
			return Message{}, 0
		}
		p.seqs.put(c.Basic.Seqnum, c.Basic.Dir)
		attrs := []any{"ep", c.Basic.Ep, "urb_dir", urbDirString(c.Basic.Dir), "len", c.TransferBufferLen}
		if c.Basic.Ep == 0 {
			attrs = append(attrs, "setup", fmt.Sprintf("% x", c.Setup[:]))
		}
		return Message{Op: "CMD_SUBMIT", Seq: c.Basic.Seqnum, Attrs: attrs}, n
	case usbip.RetSubmitCode:
		r := h.RetSubmit()
		n := usbip.URBHeaderSize
		dir, known := p.seqs.take(r.Basic.Seqnum)
		if known && dir == usbip.DirIn {
			if r.ActualLength > maxTransfer {
				return p.unknown(b, fmt.Sprintf("IN length %d", r.ActualLength))
			}
			n += int(r.ActualLength)
		}
		if len(b) < n {
			if known {
				p.seqs.put(r.Basic.Seqnum, dir)
			}
			return Message{}, 0
		}
		attrs := []any{"status", r.Status, "actual_len", r.ActualLength}
		if n > usbip.URBHeaderSize {
			attrs = append(attrs, "data", fmt.Sprintf("% x", b[usbip.URBHeaderSize:n]))
		}
		return Message{Op: "RET_SUBMIT", Seq: r.Basic.Seqnum, Attrs: attrs}, n
	case usbip.CmdUnlinkCode:
		c := h.CmdUnlink()
		p.seqs.take(c.UnlinkSeqnum)
		return Message{Op: "CMD_UNLINK", Seq: c.Basic.Seqnum, Attrs: []any{"unlink_seq", c.UnlinkSeqnum}}, usbip.URBHeaderSize
	case usbip.RetUnlinkCode:
		r := h.RetUnlink()
		return Message{Op: "RET_UNLINK", Seq: r.Basic.Seqnum, Attrs: []any{"status", r.Status}}, usbip.URBHeaderSize
	}
	return p.unknown(b, fmt.Sprintf("command %#x", h.Command()))
}

// unknown consumes everything buffered and stops decoding; resynchronizing
// inside a USB-IP stream is not possible.
func (p *Parser) unknown(b []byte, reason string) (Message, int) {
	p.lost = true
	p.buf.Reset()
	return Message{Op: "UNKNOWN", Attrs: []any{"reason", reason, "bytes", len(b)}}, len(b)
}

func deviceAttrs(d *usbip.ExportedDevice) []any {
	return []any{
		"path", d.Path,
		"busid", d.BusID.String(),
		"speed", d.Speed,
		"vid", fmt.Sprintf("%04x", d.IDVendor),
		"pid", fmt.Sprintf("%04x", d.IDProduct),
		"bcd", fmt.Sprintf("%04x", d.BcdDevice),
		"config", d.BConfigurationValue,
	}
}

func urbDirString(dir uint32) string {
	if dir == usbip.DirOut {
		return "OUT"
	}
	return "IN"
}
