package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/padbridge/padbridge/linkclient"
	"github.com/padbridge/padbridge/platform"
)

// Pad connects to a bridge as a controller and plays a test pattern: the left
// stick circles, the d-pad steps clockwise and A pulses once per lap.
type Pad struct {
	Addr     string        `help:"Bridge link address" default:"localhost:3242" env:"PADBRIDGE_PAD_ADDR"`
	Password string        `help:"Link password" required:"" env:"PADBRIDGE_PAD_PASSWORD"`
	Name     string        `help:"Controller name announced to the bridge" default:"padbridge demo"`
	MAC      string        `help:"Controller address announced to the bridge" default:"02:00:00:00:00:01"`
	Rate     time.Duration `help:"Frame interval" default:"8ms"`
	Lap      time.Duration `help:"Duration of one stick circle" default:"2s"`
	Duration time.Duration `help:"Stop after this long; 0 runs until interrupted" default:"0s"`
}

func (p *Pad) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if p.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Duration)
		defer cancel()
	}
	return p.Play(ctx, logger)
}

func (p *Pad) hello() (platform.DeviceInfo, error) {
	hw, err := net.ParseMAC(p.MAC)
	if err != nil || len(hw) != 6 {
		return platform.DeviceInfo{}, fmt.Errorf("invalid controller address %q", p.MAC)
	}
	info := platform.DeviceInfo{Name: p.Name, COD: platform.CODMajorPeripheral | platform.CODMinorGamepad}
	copy(info.Addr[:], hw)
	return info, nil
}

// Play streams the pattern until ctx is done.
func (p *Pad) Play(ctx context.Context, logger *slog.Logger) error {
	info, err := p.hello()
	if err != nil {
		return err
	}
	pad, err := linkclient.Dial(ctx, p.Addr, p.Password, info)
	if err != nil {
		return err
	}
	defer pad.Close()
	logger.Info("Paired with bridge", "addr", p.Addr, "name", p.Name)

	rate := p.Rate
	if rate <= 0 {
		rate = 8 * time.Millisecond
	}
	tick := time.NewTicker(rate)
	defer tick.Stop()
	start := time.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Demo pad stopped", "frames", frames)
			return nil
		case now := <-tick.C:
			ctl := Pattern(now.Sub(start), p.Lap)
			if err := pad.Send(&ctl); err != nil {
				return err
			}
			frames++
		}
	}
}

var clockwise = [...]uint8{
	platform.DPadUp,
	platform.DPadUp | platform.DPadRight,
	platform.DPadRight,
	platform.DPadDown | platform.DPadRight,
	platform.DPadDown,
	platform.DPadDown | platform.DPadLeft,
	platform.DPadLeft,
	platform.DPadUp | platform.DPadLeft,
}

// Pattern returns the demo controller state at elapsed time t.
func Pattern(t, lap time.Duration) platform.Controller {
	if lap <= 0 {
		lap = 2 * time.Second
	}
	phase := float64(t%lap) / float64(lap)
	angle := 2 * math.Pi * phase

	ctl := platform.Controller{Class: platform.ClassGamepad}
	gp := &ctl.Gamepad
	gp.AxisX = int32(math.Round(math.Cos(angle) * float64(platform.AxisMax)))
	gp.AxisY = int32(math.Round(math.Sin(angle) * float64(platform.AxisMax)))
	gp.DPad = clockwise[int(phase*float64(len(clockwise)))%len(clockwise)]
	if phase < 0.1 {
		gp.Buttons |= platform.ButtonA
	}
	return ctl
}
