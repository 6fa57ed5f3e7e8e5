package gadget

import "time"

// Config is the USB-IP gadget configuration.
type Config struct {
	Addr              string        `help:"USB-IP server listen address" default:":3241" env:"PADBRIDGE_USB_ADDR"`
	BusID             string        `help:"Bus id the pad is exported as" default:"1-1" env:"PADBRIDGE_USB_BUSID"`
	SuspendAfter      time.Duration `help:"URB idle time after which the host counts as suspended; 0 disables" default:"300ms" env:"PADBRIDGE_USB_SUSPEND_AFTER"`
	ConnectionTimeout time.Duration `help:"Deadline for the management exchange of a new connection" default:"5s" env:"PADBRIDGE_USB_CONNECTION_TIMEOUT"`
}
