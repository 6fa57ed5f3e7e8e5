// Package sniff is a USB-IP proxy that decodes and logs the traffic between a
// USB-IP client and the gadget, for debugging host enumeration.
package sniff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/padbridge/padbridge/internal/log"
)

type Config struct {
	Addr              string        `help:"Proxy listen address" default:":3240" env:"PADBRIDGE_SNIFF_ADDR"`
	Upstream          string        `help:"Upstream USB-IP server address" required:"" env:"PADBRIDGE_SNIFF_UPSTREAM"`
	ConnectionTimeout time.Duration `help:"Timeout for the first bytes of a connection" default:"30s" env:"PADBRIDGE_SNIFF_TIMEOUT"`
}

type Server struct {
	cfg       Config
	logger    *slog.Logger
	rawLogger log.RawLogger

	ln    net.Listener
	ready chan struct{}
	wg    sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

func New(cfg Config, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		rawLogger: rawLogger,
		ready:     make(chan struct{}),
		conns:     make(map[net.Conn]struct{}),
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

// Serve accepts and proxies connections until ctx is cancelled. Open
// connections are closed before it returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.Upstream == "" {
		return errors.New("sniff: upstream address is empty")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("sniff listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	close(s.ready)
	s.logger.Info("USB-IP sniffer listening", "addr", ln.Addr().String(), "upstream", s.cfg.Upstream)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.connMu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.connMu.Unlock()
	}()

	for {
		client, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				s.logger.Info("USB-IP sniffer stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleProxy(client)
		}()
	}
}

func (s *Server) track(c net.Conn) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
	_ = c.Close()
}

func (s *Server) handleProxy(client net.Conn) {
	s.track(client)
	defer s.untrack(client)

	upstream, err := net.DialTimeout("tcp", s.cfg.Upstream, s.cfg.ConnectionTimeout)
	if err != nil {
		s.logger.Error("Failed to connect to upstream", "upstream", s.cfg.Upstream, "error", err)
		return
	}
	s.track(upstream)
	defer s.untrack(upstream)

	logger := s.logger.With("client", client.RemoteAddr().String())
	logger.Info("Proxying connection", "upstream", upstream.RemoteAddr().String())

	if s.cfg.ConnectionTimeout > 0 {
		deadline := time.Now().Add(s.cfg.ConnectionTimeout)
		if err := client.SetDeadline(deadline); err != nil {
			logger.Error("Failed to set client deadline", "error", err)
			return
		}
		if err := upstream.SetDeadline(deadline); err != nil {
			logger.Error("Failed to set upstream deadline", "error", err)
			return
		}
	}

	toServer, toClient := NewPair()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		n, err := s.pipe(upstream, client, toServer, true, logger)
		if err != nil && !isDisconnect(err) {
			logger.Debug("Client->Server copy error", "error", err)
		}
		logger.Debug("Client->Server stream ended", "bytes", n)
		halfClose(upstream, true)
		halfClose(client, false)
	}()
	go func() {
		defer wg.Done()
		n, err := s.pipe(client, upstream, toClient, false, logger)
		if err != nil && !isDisconnect(err) {
			logger.Debug("Server->Client copy error", "error", err)
		}
		logger.Debug("Server->Client stream ended", "bytes", n)
		halfClose(client, true)
		halfClose(upstream, false)
	}()
	wg.Wait()
	logger.Info("Connection closed")
}

// pipe copies src to dst, feeding every chunk to the raw log and the parser.
// The connection deadline is cleared after the first chunk; an imported
// device may stay silent for long periods.
func (s *Server) pipe(dst, src net.Conn, p *Parser, toServer bool, logger *slog.Logger) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	first := true
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			s.rawLogger.Log(toServer, buf[:n])
			for _, m := range p.Feed(buf[:n]) {
				logMessage(logger, toServer, m)
			}
			if first {
				_ = src.SetDeadline(time.Time{})
				_ = dst.SetDeadline(time.Time{})
				first = false
			}
			wn, werr := dst.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}

func logMessage(logger *slog.Logger, toServer bool, m Message) {
	dir := "<-"
	if toServer {
		dir = "->"
	}
	attrs := append([]any{"dir", dir}, m.Attrs...)
	switch {
	case m.Op == "UNKNOWN":
		logger.Warn("USB-IP undecodable data", attrs...)
	case strings.HasPrefix(m.Op, "OP_"):
		logger.Info("USB-IP "+m.Op, attrs...)
	default:
		logger.Debug("USB-IP "+m.Op, append(attrs, "seq", m.Seq)...)
	}
}

func halfClose(c net.Conn, write bool) {
	if tc, ok := c.(*net.TCPConn); ok {
		if write {
			_ = tc.CloseWrite()
		} else {
			_ = tc.CloseRead()
		}
	}
}

func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset") ||
		strings.Contains(e, "broken pipe") ||
		strings.Contains(e, "forcibly closed")
}
