package hid_test

import (
	"testing"

	"github.com/padbridge/padbridge/usb/hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemEncoding(t *testing.T) {
	tests := []struct {
		name string
		item hid.Item
		want []byte
	}{
		{"usage page", hid.UsagePage{Page: hid.UsagePageGenericDesktop}, []byte{0x05, 0x01}},
		{"vendor usage page", hid.UsagePage{Page: hid.UsagePageVendor}, []byte{0x06, 0x00, 0xFF}},
		{"usage 16 bit", hid.Usage{Usage: 0x2621}, []byte{0x0A, 0x21, 0x26}},
		{"usage min", hid.UsageMinimum{Min: 1}, []byte{0x19, 0x01}},
		{"usage max", hid.UsageMaximum{Max: 16}, []byte{0x29, 0x10}},
		{"logical max 255 needs two bytes", hid.LogicalMaximum{Max: 255}, []byte{0x26, 0xFF, 0x00}},
		{"logical min negative", hid.LogicalMinimum{Min: -127}, []byte{0x15, 0x81}},
		{"physical min", hid.PhysicalMinimum{Min: 0}, []byte{0x35, 0x00}},
		{"physical max 315", hid.PhysicalMaximum{Max: 315}, []byte{0x46, 0x3B, 0x01}},
		{"unit degrees", hid.Unit{Code: hid.UnitDegreesEnglish}, []byte{0x65, 0x14}},
		{"unit none", hid.Unit{Code: hid.UnitNone}, []byte{0x65, 0x00}},
		{"report size", hid.ReportSize{Bits: 8}, []byte{0x75, 0x08}},
		{"report count", hid.ReportCount{Count: 4}, []byte{0x95, 0x04}},
		{"input null state", hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs | hid.MainNullState}, []byte{0x81, 0x42}},
		{"input const", hid.Input{Flags: hid.MainConst}, []byte{0x81, 0x01}},
		{"output", hid.Output{Flags: hid.MainVar}, []byte{0x91, 0x02}},
		{"large logical", hid.LogicalMaximum{Max: 70000}, []byte{0x27, 0x70, 0x11, 0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := hid.Report{Items: []hid.Item{tt.item}}.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tt.want, []byte(b))
		})
	}
}

func TestCollectionNesting(t *testing.T) {
	r := hid.Report{Items: []hid.Item{
		hid.UsagePage{Page: hid.UsagePageGenericDesktop},
		hid.Usage{Usage: hid.UsageGamePad},
		hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
			hid.Collection{Kind: hid.CollectionPhysical},
		}},
	}}
	b, err := r.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x01, 0x09, 0x05, 0xA1, 0x01, 0xA1, 0x00, 0xC0, 0xC0}, []byte(b))
}

func TestNilItem(t *testing.T) {
	_, err := hid.Report{Items: []hid.Item{nil}}.Bytes()
	assert.Error(t, err)
}
