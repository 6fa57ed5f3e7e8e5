// Package normalizer turns wireless controller events into canonical pad reports.
//
// A Normalizer is the platform.Platform the wireless stack talks to. It tracks
// one controller through discovery, connection and readiness, converts each
// gamepad frame with Convert and publishes the result to a mailbox. Every
// callback runs on the stack's goroutine; nothing here blocks.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/platform"
	"github.com/padbridge/padbridge/report"
)

// ErrUnexpectedState is returned when a callback arrives out of order or for an untracked device.
var ErrUnexpectedState = errors.New("normalizer: unexpected device state")

// Indicator is a single on/off output showing whether a controller is ready.
type Indicator interface {
	Set(on bool)
}

// Normalizer implements platform.Platform for a single controller.
type Normalizer struct {
	mu      sync.Mutex
	state   State
	handle  platform.Handle
	present bool

	mb     *mailbox.Mailbox
	ind    Indicator
	logger *slog.Logger
}

var _ platform.Platform = (*Normalizer)(nil)

// New creates a Normalizer publishing to mb. ind may be nil.
func New(mb *mailbox.Mailbox, ind Indicator, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{mb: mb, ind: ind, logger: logger}
}

// State returns the current connection state.
func (n *Normalizer) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Present reports whether a controller is connected and ready.
func (n *Normalizer) Present() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.present
}

func (n *Normalizer) Init() {
	n.mu.Lock()
	n.state = StateDisconnected
	n.present = false
	n.handle = 0
	n.mu.Unlock()

	neutral := report.Neutral()
	n.mb.Set(&neutral)
	n.logger.Debug("normalizer initialized")
}

func (n *Normalizer) OnInitComplete() {
	n.setIndicator(false)
	n.logger.Info("Ready for controller connection")
}

func (n *Normalizer) OnDeviceDiscovered(addr platform.Address, name string, cod uint32, rssi int8) error {
	if (cod&platform.CODMinorMask)&platform.CODMinorKeyboard == platform.CODMinorKeyboard {
		n.logger.Info("Ignoring keyboard", "addr", addr, "name", name, "cod", fmt.Sprintf("%06x", cod))
		return platform.ErrIgnoreDevice
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateDisconnected {
		n.logger.Info("Ignoring device, a controller is already tracked", "addr", addr, "name", name, "state", n.state)
		return platform.ErrIgnoreDevice
	}
	n.state = StateDiscovered
	n.logger.Info("Device discovered", "addr", addr, "name", name, "cod", fmt.Sprintf("%06x", cod), "rssi", rssi)
	return nil
}

func (n *Normalizer) OnDeviceConnected(h platform.Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateDiscovered {
		n.logger.Warn("Connect without discovery, ignoring", "handle", h, "state", n.state)
		return
	}
	n.state = StateConnected
	n.handle = h
	n.logger.Info("Device connected", "handle", h)
}

func (n *Normalizer) OnDeviceReady(h platform.Handle) error {
	n.mu.Lock()
	if n.state != StateConnected || n.handle != h {
		st := n.state
		n.mu.Unlock()
		return fmt.Errorf("%w: ready for handle %d in state %s", ErrUnexpectedState, h, st)
	}
	n.state = StateReady
	n.present = true
	n.mu.Unlock()

	n.setIndicator(true)
	n.logger.Info("Device ready", "handle", h)
	return nil
}

func (n *Normalizer) OnDeviceDisconnected(h platform.Handle) {
	neutral := report.Neutral()
	n.mb.Set(&neutral)

	n.mu.Lock()
	// A discovered device has no handle yet; its disconnect is the only one possible.
	tracked := n.state == StateDiscovered ||
		((n.state == StateConnected || n.state == StateReady) && n.handle == h)
	if !tracked {
		st := n.state
		n.mu.Unlock()
		n.logger.Debug("Disconnect for untracked device", "handle", h, "state", st)
		return
	}
	n.state = StateDisconnected
	n.present = false
	n.handle = 0
	n.mu.Unlock()

	n.setIndicator(false)
	n.logger.Info("Device disconnected", "handle", h)
}

func (n *Normalizer) OnControllerData(h platform.Handle, ctl *platform.Controller) {
	if ctl == nil {
		return
	}
	n.mu.Lock()
	ok := n.state == StateReady && n.handle == h
	n.mu.Unlock()
	if !ok {
		return
	}
	if ctl.Class != platform.ClassGamepad {
		n.logger.Log(context.Background(), log.LevelTrace, "Ignoring non-gamepad data", "handle", h, "class", ctl.Class)
		return
	}

	r := Convert(&ctl.Gamepad)
	n.mb.Set(&r)
}

func (n *Normalizer) OnOOBEvent(ev platform.OOBEvent, data any) {
	n.logger.Debug("OOB event", "event", ev, "data", data)
}

func (n *Normalizer) setIndicator(on bool) {
	if n.ind != nil {
		n.ind.Set(on)
	}
}
