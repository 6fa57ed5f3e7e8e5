// Package report defines the canonical wired pad report shared by the input and output sides.
package report

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Report is the canonical pad state. It is the only value that crosses between
// the input task and the output task.
type Report struct {
	Buttons uint16
	Hat     Hat
	LX, LY  uint8
	RX, RY  uint8
}

// Neutral returns the all-neutral report: no buttons, centered hat and sticks.
func Neutral() Report {
	return Report{
		Buttons: 0,
		Hat:     HatNeutral,
		LX:      AxisMid,
		LY:      AxisMid,
		RX:      AxisMid,
		RY:      AxisMid,
	}
}

// IsNeutral reports whether r equals Neutral().
func (r Report) IsNeutral() bool {
	return r == Neutral()
}

// BuildReport encodes the report into the 8-byte USB input report.
// Layout:
//
//	0: Buttons (low byte)
//	1: Buttons (high byte)
//	2: Hat (0-7 compass, 8 neutral)
//	3: LX
//	4: LY
//	5: RX
//	6: RY
//	7: Vendor byte, always 0
func (r *Report) BuildReport() []byte {
	b := make([]byte, Size)
	r.put(b)
	return b
}

// AppendReport appends the encoded report to dst.
func (r *Report) AppendReport(dst []byte) []byte {
	var b [Size]byte
	r.put(b[:])
	return append(dst, b[:]...)
}

func (r *Report) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], r.Buttons&ButtonMask)
	b[2] = uint8(r.Hat)
	b[3] = r.LX
	b[4] = r.LY
	b[5] = r.RX
	b[6] = r.RY
	b[7] = 0x00
}

// MarshalBinary encodes Report to 8 bytes.
func (r *Report) MarshalBinary() ([]byte, error) {
	return r.BuildReport(), nil
}

// UnmarshalBinary decodes at least 7 bytes into Report. The trailing vendor byte is optional.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < MinSize {
		return io.ErrUnexpectedEOF
	}
	hat := Hat(data[2])
	if !hat.Valid() {
		return fmt.Errorf("report: invalid hat value %d", data[2])
	}
	r.Buttons = binary.LittleEndian.Uint16(data[0:2]) & ButtonMask
	r.Hat = hat
	r.LX = data[3]
	r.LY = data[4]
	r.RX = data[5]
	r.RY = data[6]
	return nil
}

func (r Report) String() string {
	return fmt.Sprintf("buttons=%#04x hat=%s lx=%d ly=%d rx=%d ry=%d", r.Buttons, r.Hat, r.LX, r.LY, r.RX, r.RY)
}
