package usb

// Standard request codes (bRequest).
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0A
	ReqSetInterface     = 0x0B
)

// HID class request codes.
const (
	HIDReqGetReport   = 0x01
	HIDReqGetIdle     = 0x02
	HIDReqGetProtocol = 0x03
	HIDReqSetReport   = 0x09
	HIDReqSetIdle     = 0x0A
	HIDReqSetProtocol = 0x0B
)

// bmRequestType fields.
const (
	RequestDirIn = 0x80

	RequestTypeMask     = 0x60
	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientMask      = 0x1F
	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// FeatureDeviceRemoteWakeup is the device feature selector for SET/CLEAR_FEATURE.
const FeatureDeviceRemoteWakeup = 0x01

// Device is an emulated USB function. Standard enumeration requests are served
// from GetDescriptor; everything else reaches the device.
type Device interface {
	// HandleTransfer processes a non-EP0 transfer. ep is the endpoint number
	// without direction bit, dir is usbip.DirIn or usbip.DirOut. For IN it
	// returns the payload; for OUT it consumes out and returns nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	// HandleControl processes a class or vendor request on EP0. handled=false
	// stalls the request.
	HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, data []byte) (resp []byte, handled bool)
	GetDescriptor() *Descriptor
}
