package normalizer

import (
	"github.com/padbridge/padbridge/platform"
	"github.com/padbridge/padbridge/report"
)

// Deadzone is the half-width around AxisMid that snaps to center.
const Deadzone = 10

// hatTable maps the low nibble of a d-pad bitmask (up=1, down=2, right=4,
// left=8) to a hat code. Contradictory and triple presses are neutral.
var hatTable = [16]report.Hat{
	0x0: report.HatNeutral,
	0x1: report.HatUp,
	0x2: report.HatDown,
	0x3: report.HatNeutral,
	0x4: report.HatRight,
	0x5: report.HatUpRight,
	0x6: report.HatDownRight,
	0x7: report.HatNeutral,
	0x8: report.HatLeft,
	0x9: report.HatUpLeft,
	0xA: report.HatDownLeft,
	0xB: report.HatNeutral,
	0xC: report.HatNeutral,
	0xD: report.HatNeutral,
	0xE: report.HatNeutral,
	0xF: report.HatNeutral,
}

// HatFromDPad converts a raw d-pad bitmask to a hat code. Bits above the low nibble are ignored.
func HatFromDPad(dpad uint8) report.Hat {
	return hatTable[dpad&0x0F]
}

// ConvertAxis maps a raw stick value in [-512, 511] onto [0, 255] with a
// center deadzone. Out-of-domain input is clamped, never wrapped.
func ConvertAxis(v int32) uint8 {
	c := (int64(v) + 513) / 4
	switch {
	case c < int64(report.AxisMin):
		return report.AxisMin
	case c > int64(report.AxisMid)-Deadzone && c < int64(report.AxisMid)+Deadzone:
		return report.AxisMid
	case c > int64(report.AxisMax):
		return report.AxisMax
	}
	return uint8(c)
}

// buttonMap pairs raw gamepad buttons with their canonical counterparts.
// Face buttons are crossed: the raw layout is positional, the wired report is labelled.
var buttonMap = [...]struct {
	raw uint16
	out uint16
}{
	{platform.ButtonA, report.ButtonB},
	{platform.ButtonB, report.ButtonA},
	{platform.ButtonX, report.ButtonY},
	{platform.ButtonY, report.ButtonX},
	{platform.ButtonShoulderL, report.ButtonL},
	{platform.ButtonShoulderR, report.ButtonR},
	{platform.ButtonThumbL, report.ButtonL3},
	{platform.ButtonThumbR, report.ButtonR3},
}

var miscMap = [...]struct {
	raw uint8
	out uint16
}{
	{platform.MiscButtonSystem, report.ButtonHome},
	{platform.MiscButtonCapture, report.ButtonCapture},
	{platform.MiscButtonBack, report.ButtonMinus},
	{platform.MiscButtonHome, report.ButtonPlus},
}

// Convert builds the canonical report for one raw gamepad snapshot.
// It has no side effects and the same input always yields the same report.
func Convert(gp *platform.Gamepad) report.Report {
	r := report.Neutral()

	for _, m := range buttonMap {
		if gp.Buttons&m.raw != 0 {
			r.Buttons |= m.out
		}
	}

	// Any non-zero analog value counts as pressed.
	if gp.Buttons&platform.ButtonTriggerL != 0 || gp.Brake != 0 {
		r.Buttons |= report.ButtonZL
	}
	if gp.Buttons&platform.ButtonTriggerR != 0 || gp.Throttle != 0 {
		r.Buttons |= report.ButtonZR
	}

	for _, m := range miscMap {
		if gp.MiscButtons&m.raw != 0 {
			r.Buttons |= m.out
		}
	}

	r.Hat = HatFromDPad(gp.DPad)
	r.LX = ConvertAxis(gp.AxisX)
	r.LY = ConvertAxis(gp.AxisY)
	r.RX = ConvertAxis(gp.AxisRX)
	r.RY = ConvertAxis(gp.AxisRY)
	return r
}
