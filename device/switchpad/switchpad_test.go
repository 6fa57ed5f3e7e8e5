package switchpad_test

import (
	"testing"

	"github.com/padbridge/padbridge/device/switchpad"
	"github.com/padbridge/padbridge/report"
	"github.com/padbridge/padbridge/usb"
	"github.com/padbridge/padbridge/usbip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wantReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x05, 0xA1, 0x01,
	0x15, 0x00, 0x25, 0x01, 0x35, 0x00, 0x45, 0x01, 0x75, 0x01, 0x95, 0x10,
	0x05, 0x09, 0x19, 0x01, 0x29, 0x10, 0x81, 0x02,
	0x05, 0x01, 0x25, 0x07, 0x46, 0x3B, 0x01, 0x75, 0x04, 0x95, 0x01,
	0x65, 0x14, 0x09, 0x39, 0x81, 0x42, 0x65, 0x00, 0x95, 0x01, 0x81, 0x01,
	0x26, 0xFF, 0x00, 0x46, 0xFF, 0x00, 0x09, 0x30, 0x09, 0x31, 0x09, 0x32, 0x09, 0x35,
	0x75, 0x08, 0x95, 0x04, 0x81, 0x02,
	0x06, 0x00, 0xFF, 0x09, 0x20, 0x95, 0x01, 0x81, 0x02,
	0x0A, 0x21, 0x26, 0x95, 0x08, 0x91, 0x02,
	0xC0,
}

func TestDescriptors(t *testing.T) {
	d := switchpad.New().GetDescriptor()

	assert.Equal(t, []byte{
		0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
		0x0D, 0x0F, 0x92, 0x00, 0x00, 0x01,
		0x01, 0x02, 0x00, 0x01,
	}, d.DeviceBytes())

	rb, err := d.Interfaces[0].HID.ReportBytes()
	require.NoError(t, err)
	assert.Equal(t, wantReportDescriptor, rb)

	cfg, err := d.ConfigBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x09, 0x02, 0x29, 0x00, 0x01, 0x01, 0x00, 0xA0, 0xFA,
		0x09, 0x04, 0x00, 0x00, 0x02, 0x03, 0x00, 0x00, 0x00,
		0x09, 0x21, 0x11, 0x01, 0x00, 0x01, 0x22, byte(len(wantReportDescriptor)), 0x00,
		0x07, 0x05, 0x02, 0x03, 0x40, 0x00, 0x01,
		0x07, 0x05, 0x81, 0x03, 0x40, 0x00, 0x01,
	}, cfg)
	assert.True(t, d.Config.RemoteWakeup())

	s, ok := d.StringBytes(2)
	require.True(t, ok)
	assert.Equal(t, usb.EncodeStringDescriptor(switchpad.Product), s)
	_, ok = d.StringBytes(9)
	assert.False(t, ok)
}

func TestINSlot(t *testing.T) {
	pad := switchpad.New()
	neutral := report.Neutral()

	// Before anything is submitted the host reads a neutral report.
	assert.True(t, pad.Ready())
	assert.Equal(t, neutral.BuildReport(), pad.HandleTransfer(1, usbip.DirIn, nil))

	r := report.Neutral()
	r.Buttons = report.ButtonA
	b := r.BuildReport()
	require.True(t, pad.Submit(b))
	b[0] = 0xFF // Submit copies
	assert.False(t, pad.Ready())
	assert.False(t, pad.Submit(neutral.BuildReport()), "slot busy")

	assert.Equal(t, r.BuildReport(), pad.HandleTransfer(1, usbip.DirIn, nil))
	assert.True(t, pad.Ready())
	// Nothing new: repeat the last report.
	assert.Equal(t, r.BuildReport(), pad.HandleTransfer(1, usbip.DirIn, nil))

	in, _ := pad.Transfers()
	assert.Equal(t, uint64(3), in)

	pad.Reset()
	assert.True(t, pad.Ready())
	assert.Equal(t, neutral.BuildReport(), pad.HandleTransfer(1, usbip.DirIn, nil))
}

func TestSubmitRejectsBadLength(t *testing.T) {
	pad := switchpad.New()
	assert.False(t, pad.Submit(nil))
	assert.False(t, pad.Submit(make([]byte, 65)))
	assert.True(t, pad.Ready())
}

func TestOutputEndpoint(t *testing.T) {
	pad := switchpad.New()
	var got []byte
	pad.SetOutputCallback(func(b []byte) { got = b })

	assert.Nil(t, pad.HandleTransfer(2, usbip.DirOut, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Nil(t, pad.HandleTransfer(5, usbip.DirIn, nil))

	_, out := pad.Transfers()
	assert.Equal(t, uint64(1), out)
}

func TestHandleControl(t *testing.T) {
	pad := switchpad.New()
	const classIface = 0x21
	const classIfaceIn = 0xA1

	tests := []struct {
		name    string
		bm, req uint8
		resp    []byte
		handled bool
	}{
		{"get report is empty", classIfaceIn, usb.HIDReqGetReport, nil, true},
		{"set report ignored", classIface, usb.HIDReqSetReport, nil, true},
		{"set idle", classIface, usb.HIDReqSetIdle, nil, true},
		{"get protocol", classIfaceIn, usb.HIDReqGetProtocol, []byte{0x01}, true},
		{"vendor request stalls", 0x40, 0x01, nil, false},
		{"unknown class request stalls", classIface, 0x42, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, handled := pad.HandleControl(tt.bm, tt.req, 0x0100, 0, 64, []byte{0xAA})
			assert.Equal(t, tt.handled, handled)
			assert.Equal(t, tt.resp, resp)
		})
	}
}
