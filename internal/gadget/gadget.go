// Package gadget exports the switch pad over USB-IP and presents it to the
// output pump as a pump.Transport.
//
// Connection goroutines never touch transport state directly. They post
// events that Task applies on the pump goroutine, so Mounted, Suspended and
// Ready only change between Task calls.
package gadget

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/padbridge/padbridge/device/switchpad"
	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/pump"
)

const (
	busNum = 1
	devNum = 1
)

// ErrClosed is returned by Init after Close.
var ErrClosed = errors.New("gadget: closed")

type eventKind uint8

const (
	evAttached eventKind = iota + 1
	evConfigured
	evRemoteWakeup
	evDetached
)

func (k eventKind) String() string {
	switch k {
	case evAttached:
		return "attached"
	case evConfigured:
		return "configured"
	case evRemoteWakeup:
		return "remote-wakeup"
	case evDetached:
		return "detached"
	default:
		return "unknown"
	}
}

type event struct {
	kind eventKind
	on   bool
}

// Gadget is a single-device USB-IP server.
type Gadget struct {
	cfg       Config
	logger    *slog.Logger
	rawLogger log.RawLogger
	pad       *switchpad.SwitchPad

	ln        net.Listener
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	events   chan event
	lastURB  atomic.Int64
	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
	imported net.Conn

	// Applied by Task.
	stMu        sync.Mutex
	attached    bool
	configured  bool
	wakeEnabled bool
	suspended   bool
	wakeups     uint64

	now func() time.Time
}

var _ pump.Transport = (*Gadget)(nil)

func New(cfg Config, pad *switchpad.SwitchPad, logger *slog.Logger, rawLogger log.RawLogger) *Gadget {
	if logger == nil {
		logger = slog.Default()
	}
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	if cfg.BusID == "" {
		cfg.BusID = "1-1"
	}
	return &Gadget{
		cfg:       cfg,
		logger:    logger,
		rawLogger: rawLogger,
		pad:       pad,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		events:    make(chan event, 32),
		conns:     make(map[net.Conn]struct{}),
		now:       time.Now,
	}
}

// Init binds the listener and starts accepting clients.
func (g *Gadget) Init() error {
	select {
	case <-g.done:
		return ErrClosed
	default:
	}
	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.cfg.Addr, err)
	}
	g.ln = ln
	g.readyOnce.Do(func() { close(g.ready) })
	g.logger.Info("USB-IP server listening", "addr", ln.Addr().String(), "busid", g.cfg.BusID)

	g.wg.Add(1)
	go g.serve()
	return nil
}

// Listening returns a channel closed once Init has bound the listener.
func (g *Gadget) Listening() <-chan struct{} { return g.ready }

// Addr returns the bound listen address, or nil before Init.
func (g *Gadget) Addr() net.Addr {
	select {
	case <-g.ready:
		return g.ln.Addr()
	default:
		return nil
	}
}

// Close stops the listener and drops the importing client.
func (g *Gadget) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		if g.ln != nil {
			err = g.ln.Close()
		}
		g.connMu.Lock()
		for c := range g.conns {
			_ = c.Close()
		}
		g.connMu.Unlock()
		g.wg.Wait()
	})
	return err
}

func (g *Gadget) serve() {
	defer g.wg.Done()
	for {
		c, err := g.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				g.logger.Info("USB-IP server stopped")
				return
			}
			g.logger.Error("Accept error", "error", err)
			continue
		}
		g.logger.Info("Client connected", "remote", c.RemoteAddr())
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := g.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					g.logger.Info("Client disconnected", "remote", c.RemoteAddr(), "error", err)
				} else {
					g.logger.Error("Connection handler error", "remote", c.RemoteAddr(), "error", err)
				}
			}
		}()
	}
}

func (g *Gadget) post(ev event) {
	select {
	case g.events <- ev:
	case <-g.done:
	}
}

func (g *Gadget) touch() {
	g.lastURB.Store(g.now().UnixNano())
}

// Task applies pending connection events and updates suspend detection. It never blocks.
func (g *Gadget) Task() {
	g.stMu.Lock()
	defer g.stMu.Unlock()
drain:
	for {
		select {
		case ev := <-g.events:
			g.apply(ev)
		default:
			break drain
		}
	}

	suspended := false
	if g.attached && g.configured && g.cfg.SuspendAfter > 0 {
		idle := g.now().Sub(time.Unix(0, g.lastURB.Load()))
		suspended = idle > g.cfg.SuspendAfter
	}
	if suspended != g.suspended {
		g.suspended = suspended
		if suspended {
			g.logger.Debug("Host idle, treating bus as suspended")
		} else {
			g.logger.Debug("Host resumed")
		}
	}
}

func (g *Gadget) apply(ev event) {
	g.logger.Debug("Gadget event", "event", ev.kind, "on", ev.on)
	switch ev.kind {
	case evAttached:
		g.attached = true
		g.configured = false
		g.wakeEnabled = false
	case evConfigured:
		g.configured = ev.on
		if ev.on {
			g.logger.Info("Host configured device")
		}
	case evRemoteWakeup:
		g.wakeEnabled = ev.on
	case evDetached:
		g.attached = false
		g.configured = false
		g.wakeEnabled = false
		g.suspended = false
		g.pad.Reset()
		g.logger.Info("Host detached device")
	}
}

// Mounted reports whether a client imported the device and selected a configuration.
func (g *Gadget) Mounted() bool {
	g.stMu.Lock()
	defer g.stMu.Unlock()
	return g.attached && g.configured
}

func (g *Gadget) Suspended() bool {
	g.stMu.Lock()
	defer g.stMu.Unlock()
	return g.suspended
}

// RemoteWakeup records a resume request. USB-IP has no resume signalling, so
// the request only succeeds when the host enabled the feature, and it restarts
// the idle timer.
func (g *Gadget) RemoteWakeup() bool {
	g.stMu.Lock()
	defer g.stMu.Unlock()
	if !g.wakeEnabled {
		return false
	}
	g.wakeups++
	g.suspended = false
	g.touch()
	return true
}

// Wakeups returns the number of accepted remote wakeup requests.
func (g *Gadget) Wakeups() uint64 {
	g.stMu.Lock()
	defer g.stMu.Unlock()
	return g.wakeups
}

func (g *Gadget) Ready() bool {
	return g.Mounted() && g.pad.Ready()
}

func (g *Gadget) SendReport(b []byte) bool {
	if !g.Mounted() {
		return false
	}
	return g.pad.Submit(b)
}

// isClientDisconnect reports whether err is a normal client disconnect.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.ECONNRESET || errno == syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed")
}
