// Package hid models HID report descriptors as a tree of items and encodes
// them to the exact descriptor byte stream.
package hid

import "fmt"

// Data is a short item payload.
type Data []uint8

// ItemType is the HID short item "type" field.
type ItemType uint8

const (
	ItemTypeMain   ItemType = 0
	ItemTypeGlobal ItemType = 1
	ItemTypeLocal  ItemType = 2
)

// Item is one node in a HID report descriptor.
type Item interface {
	encode(e *encoder) error
}

// Report is a complete HID report descriptor (type 0x22).
type Report struct {
	Items []Item
}

// Bytes encodes the report descriptor.
func (r Report) Bytes() (Data, error) {
	e := &encoder{}
	for _, it := range r.Items {
		if it == nil {
			return nil, fmt.Errorf("hid: nil item")
		}
		if err := it.encode(e); err != nil {
			return nil, err
		}
	}
	return Data(e.buf), nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) short(tag uint8, typ ItemType, data Data) error {
	var sizeCode uint8
	switch len(data) {
	case 0:
		sizeCode = 0
	case 1:
		sizeCode = 1
	case 2:
		sizeCode = 2
	case 4:
		sizeCode = 3
	default:
		return fmt.Errorf("hid: short item data must be 0/1/2/4 bytes, got %d", len(data))
	}
	e.buf = append(e.buf, (tag<<4)|(uint8(typ)<<2)|sizeCode)
	e.buf = append(e.buf, data...)
	return nil
}

// dataU32 picks the shortest unsigned encoding.
func dataU32(v uint32) Data {
	switch {
	case v <= 0xFF:
		return Data{uint8(v)}
	case v <= 0xFFFF:
		return Data{uint8(v), uint8(v >> 8)}
	}
	return Data{uint8(v), uint8(v >> 8), uint8(v >> 16), uint8(v >> 24)}
}

// dataI32 picks the shortest two's complement encoding that preserves the sign.
func dataI32(v int32) Data {
	switch {
	case v >= -128 && v <= 127:
		return Data{uint8(v)}
	case v >= -32768 && v <= 32767:
		uv := uint16(int16(v))
		return Data{uint8(uv), uint8(uv >> 8)}
	}
	uv := uint32(v)
	return Data{uint8(uv), uint8(uv >> 8), uint8(uv >> 16), uint8(uv >> 24)}
}
