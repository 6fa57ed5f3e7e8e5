package main

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X main.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

func buildVersion() string {
	v, c, d := Version, Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if c == "" && len(s.Value) >= 7 {
					c = s.Value[:7]
				}
			case "vcs.time":
				if d == "" {
					d = s.Value
				}
			}
		}
	}
	if c == "" {
		return v
	}
	if d == "" {
		return fmt.Sprintf("%s (%s)", v, c)
	}
	return fmt.Sprintf("%s (%s, %s)", v, c, d)
}

func description() string {
	return fmt.Sprintf(`Wireless controller to wired switch pad bridge.

Accepts one controller over an authenticated TCP link and presents it to a
USB-IP host as a wired HID switch pad.

Version: %s`, buildVersion())
}
