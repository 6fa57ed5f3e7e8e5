// Package config defines the CLI structure and configuration for padbridge.
package config

import (
	"github.com/alecthomas/kong"

	"github.com/padbridge/padbridge/internal/cmd"
)

type Log struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"PADBRIDGE_LOG_LEVEL"`
	File    string `help:"Log file path (default: none; logs only to console)" env:"PADBRIDGE_LOG_FILE"`
	RawFile string `help:"Raw USB-IP packet log file path (default: none)" env:"PADBRIDGE_LOG_RAW_FILE"`
}

// CLI is the root command structure for Kong CLI parsing.
type CLI struct {
	Log     `embed:"" prefix:"log."`
	Config  string           `help:"Config file path" type:"path" env:"PADBRIDGE_CONFIG"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Bridge   cmd.Bridge        `cmd:"" default:"1" help:"Run the bridge: controller link in, USB-IP switch pad out"`
	Pad      cmd.Pad           `cmd:"" help:"Connect to a bridge as a demo controller"`
	Sniff    cmd.Sniff         `cmd:"" help:"Proxy a USB-IP client to the bridge and log decoded traffic"`
	Settings cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}
