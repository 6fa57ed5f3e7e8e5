// Package pump drives the wired output: bring-up, the recognition handshake,
// then one mailbox report per iteration for as long as the process runs.
package pump

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/report"
)

// Phase is the pump's position in its lifecycle.
type Phase int32

const (
	PhaseBringUp Phase = iota
	PhaseHandshake
	PhaseSteady
)

func (p Phase) String() string {
	switch p {
	case PhaseBringUp:
		return "bring-up"
	case PhaseHandshake:
		return "handshake"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Config tunes the bring-up and handshake phases.
type Config struct {
	MountPollInterval time.Duration `help:"Delay between mount polls during bring-up" default:"10ms" env:"PADBRIDGE_MOUNT_POLL_INTERVAL"`
	HandshakeReports  int           `help:"Number of handshake iterations after mount" default:"50" env:"PADBRIDGE_HANDSHAKE_REPORTS"`
	HandshakeInterval time.Duration `help:"Delay between handshake iterations" default:"100ms" env:"PADBRIDGE_HANDSHAKE_INTERVAL"`
	HandshakeZeroAxes bool          `help:"Send axes at 0 instead of centered during the handshake" default:"false" env:"PADBRIDGE_HANDSHAKE_ZERO_AXES"`
}

// DefaultConfig returns the timings a Switch host expects.
func DefaultConfig() Config {
	return Config{
		MountPollInterval: 10 * time.Millisecond,
		HandshakeReports:  50,
		HandshakeInterval: 100 * time.Millisecond,
	}
}

// Stats counts what the pump has done so far.
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Handshake uint64
	Wakeups   uint64
}

// Pump moves reports from a mailbox to a Transport.
type Pump struct {
	cfg    Config
	tr     Transport
	mb     *mailbox.Mailbox
	logger *slog.Logger

	phase     atomic.Int32
	sent      atomic.Uint64
	dropped   atomic.Uint64
	handshake atomic.Uint64
	wakeups   atomic.Uint64

	steadyOnce sync.Once
	steady     chan struct{}
}

func New(cfg Config, tr Transport, mb *mailbox.Mailbox, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		cfg:    cfg,
		tr:     tr,
		mb:     mb,
		logger: logger,
		steady: make(chan struct{}),
	}
}

// Phase returns the current phase.
func (p *Pump) Phase() Phase { return Phase(p.phase.Load()) }

// Steady is closed once the handshake has finished.
func (p *Pump) Steady() <-chan struct{} { return p.steady }

func (p *Pump) Stats() Stats {
	return Stats{
		Sent:      p.sent.Load(),
		Dropped:   p.dropped.Load(),
		Handshake: p.handshake.Load(),
		Wakeups:   p.wakeups.Load(),
	}
}

// Run executes the pump until ctx is done. It returns a non-nil error only when
// the transport fails to initialize; cancellation returns ctx.Err().
func (p *Pump) Run(ctx context.Context) error {
	p.phase.Store(int32(PhaseBringUp))
	if err := p.tr.Init(); err != nil {
		return fmt.Errorf("transport init: %w", err)
	}
	p.logger.Info("Waiting for host to mount device")
	for {
		p.tr.Task()
		if p.tr.Mounted() {
			break
		}
		if err := sleep(ctx, p.cfg.MountPollInterval); err != nil {
			return err
		}
	}
	p.logger.Info("Device mounted, starting handshake", "reports", p.cfg.HandshakeReports, "interval", p.cfg.HandshakeInterval)

	p.phase.Store(int32(PhaseHandshake))
	hs := p.handshakeReport()
	for i := 0; i < p.cfg.HandshakeReports; i++ {
		p.tr.Task()
		if p.tr.Ready() && p.tr.SendReport(hs) {
			p.handshake.Add(1)
		}
		if err := sleep(ctx, p.cfg.HandshakeInterval); err != nil {
			return err
		}
	}
	p.logger.Info("Handshake complete", "sent", p.handshake.Load())

	p.phase.Store(int32(PhaseSteady))
	p.steadyOnce.Do(func() { close(p.steady) })

	buf := make([]byte, 0, report.Size)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := p.mb.Get()
		p.tr.Task()

		if p.tr.Suspended() {
			if p.tr.RemoteWakeup() {
				p.wakeups.Add(1)
			}
			continue
		}
		if !p.tr.Ready() {
			p.dropped.Add(1)
			continue
		}
		buf = r.AppendReport(buf[:0])
		if p.tr.SendReport(buf) {
			p.sent.Add(1)
		} else {
			p.dropped.Add(1)
		}
	}
}

func (p *Pump) handshakeReport() []byte {
	r := report.Neutral()
	if p.cfg.HandshakeZeroAxes {
		r.LX, r.LY, r.RX, r.RY = 0, 0, 0, 0
	}
	return r.BuildReport()
}

// sleep waits for d or until ctx is done. A non-positive d only checks ctx.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
