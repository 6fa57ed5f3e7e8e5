// Package switchpad provides the wired Switch pad as a USB device: its static
// descriptors, a one-report IN endpoint slot and no-op HID report requests.
package switchpad

import (
	"sync"

	"github.com/padbridge/padbridge/report"
	"github.com/padbridge/padbridge/usb"
	"github.com/padbridge/padbridge/usbip"
)

// SwitchPad is the emulated controller. Submit and Ready are called by the
// output side; HandleTransfer and HandleControl by the USB-IP connection.
type SwitchPad struct {
	stateMu sync.Mutex
	pending []byte
	busy    bool
	last    []byte

	// counters for diagnostics
	inTransfers  uint64
	outTransfers uint64

	outputFunc func([]byte)
	descriptor usb.Descriptor
}

func New() *SwitchPad {
	neutral := report.Neutral()
	return &SwitchPad{
		last:       neutral.BuildReport(),
		pending:    make([]byte, 0, MaxPacketSize),
		descriptor: defaultDescriptor,
	}
}

// SetOutputCallback registers a function for vendor output reports sent by the host.
func (s *SwitchPad) SetOutputCallback(f func([]byte)) {
	s.stateMu.Lock()
	s.outputFunc = f
	s.stateMu.Unlock()
}

// Ready reports whether the IN slot is free for a new report.
func (s *SwitchPad) Ready() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return !s.busy
}

// Submit copies b into the IN slot. It fails while a previous report has not
// been collected by the host, or when b exceeds the endpoint size.
func (s *SwitchPad) Submit(b []byte) bool {
	if len(b) == 0 || len(b) > int(MaxPacketSize) {
		return false
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.busy {
		return false
	}
	s.pending = append(s.pending[:0], b...)
	s.busy = true
	return true
}

// Reset frees the IN slot and forgets the last report. Called when the host detaches.
func (s *SwitchPad) Reset() {
	neutral := report.Neutral()
	s.stateMu.Lock()
	s.pending = s.pending[:0]
	s.busy = false
	s.last = neutral.BuildReport()
	s.stateMu.Unlock()
}

// Transfers returns how many IN and OUT transfers the host has made.
func (s *SwitchPad) Transfers() (in, out uint64) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.inTransfers, s.outTransfers
}

// HandleTransfer serves the interrupt endpoints. An IN transfer takes the
// pending report, or repeats the last one when nothing new was submitted.
func (s *SwitchPad) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	switch {
	case dir == usbip.DirIn && ep == uint32(EndpointIn&0x0F):
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		s.inTransfers++
		if s.busy {
			s.last = append(s.last[:0], s.pending...)
			s.busy = false
		}
		return append([]byte(nil), s.last...)
	case dir == usbip.DirOut && ep == uint32(EndpointOut&0x0F):
		s.stateMu.Lock()
		s.outTransfers++
		f := s.outputFunc
		s.stateMu.Unlock()
		if f != nil && len(out) > 0 {
			f(append([]byte(nil), out...))
		}
	}
	return nil
}

// HandleControl answers HID class requests. GET_REPORT returns an empty
// payload and SET_REPORT is accepted and discarded.
func (s *SwitchPad) HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, data []byte) ([]byte, bool) {
	if bmRequestType&usb.RequestTypeMask != usb.RequestTypeClass ||
		bmRequestType&usb.RequestRecipientMask != usb.RequestRecipientInterface {
		return nil, false
	}
	switch bRequest {
	case usb.HIDReqGetReport:
		return nil, true
	case usb.HIDReqSetReport, usb.HIDReqSetIdle, usb.HIDReqSetProtocol:
		return nil, true
	case usb.HIDReqGetIdle:
		return []byte{0x00}, true
	case usb.HIDReqGetProtocol:
		return []byte{0x01}, true // report protocol
	}
	return nil, false
}

func (s *SwitchPad) GetDescriptor() *usb.Descriptor {
	return &s.descriptor
}

var _ usb.Device = (*SwitchPad)(nil)
