package platform

// Gamepad button bitmasks as reported by the wireless stack.
const (
	ButtonA         uint16 = 0x0001
	ButtonB         uint16 = 0x0002
	ButtonX         uint16 = 0x0004
	ButtonY         uint16 = 0x0008
	ButtonShoulderL uint16 = 0x0010
	ButtonShoulderR uint16 = 0x0020
	ButtonTriggerL  uint16 = 0x0040
	ButtonTriggerR  uint16 = 0x0080
	ButtonThumbL    uint16 = 0x0100
	ButtonThumbR    uint16 = 0x0200
)

// D-pad bitmasks. Opposite directions may be set at the same time.
const (
	DPadUp    uint8 = 0x01
	DPadDown  uint8 = 0x02
	DPadRight uint8 = 0x04
	DPadLeft  uint8 = 0x08
)

// Misc (system) button bitmasks.
const (
	MiscButtonSystem  uint8 = 0x01
	MiscButtonBack    uint8 = 0x02
	MiscButtonHome    uint8 = 0x04
	MiscButtonCapture uint8 = 0x08
)

// Analog ranges.
const (
	AxisMin    int32 = -512
	AxisMax    int32 = 511
	TriggerMax int32 = 1023
)

// Bluetooth class-of-device fields used for discovery filtering.
const (
	CODMajorMask       uint32 = 0x001F00
	CODMajorPeripheral uint32 = 0x000500

	CODMinorMask       uint32 = 0x0000FC
	CODMinorKeyboard   uint32 = 0x000040
	CODMinorMouse      uint32 = 0x000080
	CODMinorGamepad    uint32 = 0x000008
	CODMinorJoystick   uint32 = 0x000004
	CODMinorKbdAndMice uint32 = 0x0000C0
)
