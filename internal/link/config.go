package link

import "time"

// Config is the controller link listener configuration.
type Config struct {
	Addr             string        `help:"Controller link listen address" default:":3242" env:"PADBRIDGE_LINK_ADDR"`
	IdleTimeout      time.Duration `help:"Drop a controller that sends no frame for this long" default:"5s" env:"PADBRIDGE_LINK_IDLE_TIMEOUT"`
	HandshakeTimeout time.Duration `help:"Deadline for the auth handshake and hello frame" default:"5s" env:"PADBRIDGE_LINK_HANDSHAKE_TIMEOUT"`
	Password         string        `help:"Link password; read from or generated into the key file when empty" env:"PADBRIDGE_LINK_PASSWORD"`
}
