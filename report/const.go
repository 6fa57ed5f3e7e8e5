package report

// Button bitmasks for the Switch wired pad report (HORIPAD usage order).
const (
	ButtonY       uint16 = 0x0001
	ButtonB       uint16 = 0x0002
	ButtonA       uint16 = 0x0004
	ButtonX       uint16 = 0x0008
	ButtonL       uint16 = 0x0010
	ButtonR       uint16 = 0x0020
	ButtonZL      uint16 = 0x0040
	ButtonZR      uint16 = 0x0080
	ButtonMinus   uint16 = 0x0100
	ButtonPlus    uint16 = 0x0200
	ButtonL3      uint16 = 0x0400 // Left stick click
	ButtonR3      uint16 = 0x0800 // Right stick click
	ButtonHome    uint16 = 0x1000
	ButtonCapture uint16 = 0x2000

	// ButtonMask covers every defined button; bits 14 and 15 are padding.
	ButtonMask uint16 = 0x3FFF
)

// Hat is the 8-direction-plus-neutral d-pad encoding.
type Hat uint8

const (
	HatUp        Hat = 0x00
	HatUpRight   Hat = 0x01
	HatRight     Hat = 0x02
	HatDownRight Hat = 0x03
	HatDown      Hat = 0x04
	HatDownLeft  Hat = 0x05
	HatLeft      Hat = 0x06
	HatUpLeft    Hat = 0x07
	HatNeutral   Hat = 0x08
)

// Stick axis limits. 0x80 is electrical center.
const (
	AxisMin uint8 = 0x00
	AxisMid uint8 = 0x80
	AxisMax uint8 = 0xFF
)

const (
	// Size is the length of the input report on the wire, vendor byte included.
	Size = 8
	// MinSize is the shortest input UnmarshalBinary accepts (vendor byte omitted).
	MinSize = 7
)

var hatNames = [...]string{
	HatUp:        "up",
	HatUpRight:   "up-right",
	HatRight:     "right",
	HatDownRight: "down-right",
	HatDown:      "down",
	HatDownLeft:  "down-left",
	HatLeft:      "left",
	HatUpLeft:    "up-left",
	HatNeutral:   "neutral",
}

func (h Hat) String() string {
	if int(h) < len(hatNames) {
		return hatNames[h]
	}
	return "invalid"
}

// Valid reports whether h is one of the nine defined hat codes.
func (h Hat) Valid() bool {
	return h <= HatNeutral
}
