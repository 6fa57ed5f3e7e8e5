// Package platform defines the contract between the wireless controller stack
// and the code that consumes its events.
//
// The stack owns discovery, connection and security. It reports lifecycle
// changes and controller state through a Platform, which is the only extension
// point it offers.
package platform

import (
	"errors"
	"fmt"
)

// ErrIgnoreDevice is returned from OnDeviceDiscovered to tell the stack not to
// connect to the device. It is a filtering decision, not a failure.
var ErrIgnoreDevice = errors.New("platform: ignore device")

// Handle identifies one connected device for the lifetime of its connection.
type Handle uint32

// Address is a 48-bit device address.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// OOBEvent is an out-of-band notification from the stack.
type OOBEvent uint8

const (
	// OOBBluetoothEnabled carries a bool: whether the stack accepts new connections.
	OOBBluetoothEnabled OOBEvent = iota + 1
	// OOBSystemButton carries the Handle of the device whose system button was pressed.
	OOBSystemButton
)

func (e OOBEvent) String() string {
	switch e {
	case OOBBluetoothEnabled:
		return "bluetooth-enabled"
	case OOBSystemButton:
		return "system-button"
	default:
		return fmt.Sprintf("oob(%d)", uint8(e))
	}
}

// Platform receives every callback the wireless stack emits.
//
// Calls for one device arrive in order: discovered, connected, ready, any
// number of controller data, disconnected. The stack calls Init once before it
// starts and OnInitComplete once it is able to accept devices.
type Platform interface {
	Init()
	OnInitComplete()
	// OnDeviceDiscovered returns nil to accept the device or ErrIgnoreDevice to reject it.
	OnDeviceDiscovered(addr Address, name string, cod uint32, rssi int8) error
	OnDeviceConnected(h Handle)
	OnDeviceDisconnected(h Handle)
	// OnDeviceReady returns a non-nil error to refuse the device; the stack then drops it.
	OnDeviceReady(h Handle) error
	OnControllerData(h Handle, ctl *Controller)
	OnOOBEvent(ev OOBEvent, data any)
}
