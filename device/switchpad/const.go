package switchpad

// USB identity of the HORIPAD for Nintendo Switch, which the console accepts
// as a wired pro-style controller without a pairing handshake of its own.
const (
	VendorID  uint16 = 0x0F0D
	ProductID uint16 = 0x0092
	BcdDevice uint16 = 0x0100

	Manufacturer = "HORI CO.,LTD."
	Product      = "HORIPAD S"
)

// Endpoints.
const (
	EndpointIn  uint8 = 0x81
	EndpointOut uint8 = 0x02

	// MaxPacketSize is the IN and OUT packet size; the console rejects smaller endpoints.
	MaxPacketSize uint16 = 64
	// PollInterval is bInterval in frames (1 ms at full speed).
	PollInterval uint8 = 1
	// MaxPowerMA is the advertised bus current.
	MaxPowerMA uint16 = 500
)

// OutputReportSize is the length of the vendor output report the host may send.
const OutputReportSize = 8
