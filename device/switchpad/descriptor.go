package switchpad

import (
	"github.com/padbridge/padbridge/usb"
	"github.com/padbridge/padbridge/usb/hid"
)

// reportDescriptor describes the 8-byte input report of report.Report and an
// 8-byte vendor output report.
var reportDescriptor = hid.Report{Items: []hid.Item{
	hid.UsagePage{Page: hid.UsagePageGenericDesktop},
	hid.Usage{Usage: hid.UsageGamePad},
	hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
		// 14 buttons plus 2 padding bits.
		hid.LogicalMinimum{Min: 0},
		hid.LogicalMaximum{Max: 1},
		hid.PhysicalMinimum{Min: 0},
		hid.PhysicalMaximum{Max: 1},
		hid.ReportSize{Bits: 1},
		hid.ReportCount{Count: 16},
		hid.UsagePage{Page: hid.UsagePageButton},
		hid.UsageMinimum{Min: 0x01},
		hid.UsageMaximum{Max: 0x10},
		hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs},

		// Hat: 0-7 compass, 8 is out of range and therefore null.
		hid.UsagePage{Page: hid.UsagePageGenericDesktop},
		hid.LogicalMaximum{Max: 7},
		hid.PhysicalMaximum{Max: 315},
		hid.ReportSize{Bits: 4},
		hid.ReportCount{Count: 1},
		hid.Unit{Code: hid.UnitDegreesEnglish},
		hid.Usage{Usage: hid.UsageHatSwitch},
		hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs | hid.MainNullState},
		hid.Unit{Code: hid.UnitNone},
		hid.ReportCount{Count: 1},
		hid.Input{Flags: hid.MainConst},

		// Sticks: LX, LY, RX, RY.
		hid.LogicalMaximum{Max: 255},
		hid.PhysicalMaximum{Max: 255},
		hid.Usage{Usage: hid.UsageX},
		hid.Usage{Usage: hid.UsageY},
		hid.Usage{Usage: hid.UsageZ},
		hid.Usage{Usage: hid.UsageRz},
		hid.ReportSize{Bits: 8},
		hid.ReportCount{Count: 4},
		hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs},

		// Vendor byte in, 8 vendor bytes out.
		hid.UsagePage{Page: hid.UsagePageVendor},
		hid.Usage{Usage: 0x20},
		hid.ReportCount{Count: 1},
		hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs},
		hid.Usage{Usage: 0x2621},
		hid.ReportCount{Count: OutputReportSize},
		hid.Output{Flags: hid.MainData | hid.MainVar | hid.MainAbs},
	}},
}}

var defaultDescriptor = usb.Descriptor{
	Device: usb.DeviceDescriptor{
		BcdUSB:             0x0200,
		BDeviceClass:       0x00,
		BDeviceSubClass:    0x00,
		BDeviceProtocol:    0x00,
		BMaxPacketSize0:    64,
		IDVendor:           VendorID,
		IDProduct:          ProductID,
		BcdDevice:          BcdDevice,
		IManufacturer:      0x01,
		IProduct:           0x02,
		ISerialNumber:      0x00,
		BNumConfigurations: 0x01,
		Speed:              usb.SpeedFull,
	},
	Config: usb.ConfigDescriptor{
		BConfigurationValue: 1,
		BMAttributes:        usb.ConfigAttrRemoteWakeup,
		MaxPowerMA:          MaxPowerMA,
	},
	Interfaces: []usb.InterfaceConfig{
		{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceNumber:   0x00,
				BAlternateSetting:  0x00,
				BInterfaceClass:    0x03, // HID
				BInterfaceSubClass: 0x00,
				BInterfaceProtocol: 0x00,
			},
			HID: &usb.HIDFunction{
				BcdHID: 0x0111,
				Report: reportDescriptor,
			},
			Endpoints: []usb.EndpointDescriptor{
				{BEndpointAddress: EndpointOut, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: MaxPacketSize, BInterval: PollInterval},
				{BEndpointAddress: EndpointIn, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: MaxPacketSize, BInterval: PollInterval},
			},
		},
	},
	Strings: map[uint8]string{
		1: Manufacturer,
		2: Product,
	},
}
