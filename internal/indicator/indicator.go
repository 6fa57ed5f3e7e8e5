// Package indicator drives the single "controller ready" output.
package indicator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LEDRoot is where Linux exposes LED class devices.
var LEDRoot = "/sys/class/leds"

// Indicator is an on/off output.
type Indicator interface {
	Set(on bool)
}

// Log reports indicator changes through the logger.
type Log struct {
	logger *slog.Logger
	mu     sync.Mutex
	on     bool
	set    bool
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Set(on bool) {
	l.mu.Lock()
	changed := !l.set || l.on != on
	l.on, l.set = on, true
	l.mu.Unlock()
	if changed {
		l.logger.Info("Indicator", "on", on)
	}
}

// On reports the last state set.
func (l *Log) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// SysfsLED writes brightness to an LED class device.
type SysfsLED struct {
	path   string
	full   string
	logger *slog.Logger
}

// NewSysfsLED opens the LED called name under LEDRoot. The LED is driven to
// max_brightness when on.
func NewSysfsLED(name string, logger *slog.Logger) (*SysfsLED, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(LEDRoot, name)
	path := filepath.Join(dir, "brightness")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("led %q: %w", name, err)
	}
	full := "1"
	if b, err := os.ReadFile(filepath.Join(dir, "max_brightness")); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			full = s
		}
	}
	return &SysfsLED{path: path, full: full, logger: logger}, nil
}

func (l *SysfsLED) Set(on bool) {
	v := "0"
	if on {
		v = l.full
	}
	if err := os.WriteFile(l.path, []byte(v), 0o644); err != nil {
		l.logger.Warn("Failed to set LED", "path", l.path, "error", err)
	}
}

// New returns a SysfsLED for name, or a Log indicator when name is empty or
// the LED cannot be opened.
func New(name string, logger *slog.Logger) Indicator {
	if name != "" {
		led, err := NewSysfsLED(name, logger)
		if err == nil {
			return led
		}
		if logger != nil {
			logger.Warn("LED unavailable, logging indicator changes instead", "error", err)
		}
	}
	return NewLog(logger)
}
