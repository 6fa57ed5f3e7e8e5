// Package link is the controller-side input of the bridge. Remote pads dial
// in over TCP, authenticate, announce themselves and stream state frames,
// which the server turns into platform.Platform callbacks.
//
// Connection goroutines only decode. Every callback is made from the
// goroutine running Serve, one at a time, in arrival order.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/padbridge/padbridge/internal/link/auth"
	"github.com/padbridge/padbridge/platform"
)

// Hello reply status.
const (
	StatusAccepted uint8 = 0
	StatusIgnored  uint8 = 1
	StatusFailed   uint8 = 2
)

type eventKind uint8

const (
	evDiscovered eventKind = iota + 1
	evConnected
	evReady
	evData
	evDisconnected
)

type event struct {
	kind   eventKind
	handle platform.Handle
	info   platform.DeviceInfo
	ctl    platform.Controller
	reply  chan error
}

type Server struct {
	cfg    Config
	key    []byte
	plat   platform.Platform
	logger *slog.Logger

	ln         net.Listener
	ready      chan struct{}
	events     chan event
	done       chan struct{}
	nextHandle atomic.Uint32
	wg         sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New creates a link server. key is the derived long-term key (auth.DeriveKey).
func New(cfg Config, key []byte, plat platform.Platform, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		key:    key,
		plat:   plat,
		logger: logger,
		ready:  make(chan struct{}),
		events: make(chan event, 64),
		done:   make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listening returns a channel closed once the listener is bound.
func (s *Server) Listening() <-chan struct{} { return s.ready }

// Addr returns the bound address, or nil before Serve has listened.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.ln.Addr()
	default:
		return nil
	}
}

// Serve initializes the platform, listens and dispatches callbacks until ctx
// is cancelled. It returns an error only when the listener cannot be bound.
func (s *Server) Serve(ctx context.Context) error {
	s.plat.Init()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("link listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	close(s.ready)
	s.logger.Info("Controller link listening", "addr", ln.Addr().String())

	s.plat.OnInitComplete()
	s.plat.OnOOBEvent(platform.OOBBluetoothEnabled, true)

	s.wg.Add(1)
	go s.acceptLoop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.plat.OnOOBEvent(platform.OOBBluetoothEnabled, false)
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Server) shutdown() {
	close(s.done)
	_ = s.ln.Close()
	s.connMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	s.logger.Info("Controller link stopped")
}

func (s *Server) dispatch(ev event) {
	var err error
	switch ev.kind {
	case evDiscovered:
		err = s.plat.OnDeviceDiscovered(ev.info.Addr, ev.info.Name, ev.info.COD, ev.info.RSSI)
	case evConnected:
		s.plat.OnDeviceConnected(ev.handle)
	case evReady:
		err = s.plat.OnDeviceReady(ev.handle)
	case evData:
		s.plat.OnControllerData(ev.handle, &ev.ctl)
	case evDisconnected:
		s.plat.OnDeviceDisconnected(ev.handle)
	}
	if ev.reply != nil {
		ev.reply <- err
	}
}

// post queues ev for Serve. It returns false once the server is shutting down.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// call posts ev and waits for the callback result.
func (s *Server) call(ev event) error {
	ev.reply = make(chan error, 1)
	if !s.post(ev) {
		return net.ErrClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-s.done:
		return net.ErrClosed
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Link accept error", "error", err)
			continue
		}
		if !s.track(c) {
			_ = c.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			logger := s.logger.With("remote", c.RemoteAddr().String())
			if err := s.handleConn(c, logger); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					logger.Info("Controller link closed", "error", err)
				} else {
					logger.Warn("Controller link error", "error", err)
				}
			}
		}()
	}
}

func (s *Server) track(c net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
	_ = c.Close()
}

func (s *Server) handleConn(raw net.Conn, logger *slog.Logger) error {
	if s.cfg.HandshakeTimeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	}
	sessionKey, err := auth.ServerHandshake(raw, s.key)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	conn, err := auth.WrapConn(raw, sessionKey, false)
	if err != nil {
		return err
	}

	info, err := platform.ReadDeviceInfo(conn)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	logger.Debug("Hello", "addr", info.Addr, "name", info.Name)

	if err := s.call(event{kind: evDiscovered, info: info}); err != nil {
		if errors.Is(err, platform.ErrIgnoreDevice) {
			_, _ = conn.Write([]byte{StatusIgnored})
			return nil
		}
		return err
	}

	h := platform.Handle(s.nextHandle.Add(1))
	// From here on the platform tracks this device and must hear about its disconnect.
	defer s.post(event{kind: evDisconnected, handle: h})

	if !s.post(event{kind: evConnected, handle: h}) {
		return net.ErrClosed
	}
	if err := s.call(event{kind: evReady, handle: h}); err != nil {
		_, _ = conn.Write([]byte{StatusFailed})
		return fmt.Errorf("device ready: %w", err)
	}
	if _, err := conn.Write([]byte{StatusAccepted}); err != nil {
		return fmt.Errorf("write hello status: %w", err)
	}
	_ = raw.SetDeadline(time.Time{})

	buf := make([]byte, platform.ControllerSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = raw.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if _, err := io.ReadFull(conn, buf); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		ev := event{kind: evData, handle: h}
		if err := ev.ctl.UnmarshalBinary(buf); err != nil {
			return err
		}
		if !s.post(ev) {
			return net.ErrClosed
		}
	}
}
