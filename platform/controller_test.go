package platform_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/padbridge/padbridge/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerMarshal(t *testing.T) {
	ctl := platform.Controller{
		Class: platform.ClassGamepad,
		Gamepad: platform.Gamepad{
			Buttons:     platform.ButtonA | platform.ButtonThumbR,
			DPad:        platform.DPadUp | platform.DPadLeft,
			MiscButtons: platform.MiscButtonHome,
			AxisX:       -512,
			AxisY:       511,
			AxisRX:      0,
			AxisRY:      -1,
			Brake:       1023,
			Throttle:    7,
		},
	}

	b, err := ctl.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01,
		0x01, 0x02,
		0x09,
		0x04,
		0x00, 0xFE, 0xFF, 0xFF,
		0xFF, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0x03, 0x00, 0x00,
		0x07, 0x00, 0x00, 0x00,
	}, b)

	var got platform.Controller
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, ctl, got)
}

func TestControllerUnmarshalShort(t *testing.T) {
	var c platform.Controller
	assert.ErrorIs(t, c.UnmarshalBinary(make([]byte, platform.ControllerSize-1)), io.ErrUnexpectedEOF)
}

func TestDeviceInfo(t *testing.T) {
	info := platform.DeviceInfo{
		Addr: platform.Address{0xAA, 0xBB, 0xCC, 0x00, 0x11, 0x22},
		Name: "Pro Controller",
		COD:  0x002508,
		RSSI: -40,
	}
	b, err := info.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, 12+len(info.Name))

	got, err := platform.ReadDeviceInfo(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.Equal(t, "AA:BB:CC:00:11:22", got.Addr.String())

	_, err = platform.ReadDeviceInfo(bytes.NewReader(b[:len(b)-1]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	info.Name = strings.Repeat("x", platform.MaxNameLen+1)
	_, err = info.MarshalBinary()
	assert.Error(t, err)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "gamepad", platform.ClassGamepad.String())
	assert.Equal(t, "keyboard", platform.ClassKeyboard.String())
	assert.Equal(t, "none", platform.Class(42).String())
	assert.Equal(t, "bluetooth-enabled", platform.OOBBluetoothEnabled.String())
	assert.Equal(t, "oob(9)", platform.OOBEvent(9).String())
}
