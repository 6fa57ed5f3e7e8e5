// Package linkclient connects a remote controller to a padbridge link server
// and streams its state.
package linkclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/padbridge/padbridge/internal/link"
	"github.com/padbridge/padbridge/internal/link/auth"
	"github.com/padbridge/padbridge/platform"
)

// ErrRejected is returned by Dial when the bridge does not take the device.
var ErrRejected = errors.New("linkclient: device rejected by bridge")

// Config controls dialing and write timeouts.
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// Pad is a paired controller session.
type Pad struct {
	conn *auth.Conn
	cfg  Config

	mu     sync.Mutex
	closed bool
}

// Dial pairs a controller described by hello with the bridge at addr.
func Dial(ctx context.Context, addr, password string, hello platform.DeviceInfo) (*Pad, error) {
	return DialWithConfig(ctx, addr, password, hello, nil)
}

// DialWithConfig is Dial with explicit timeouts.
func DialWithConfig(ctx context.Context, addr, password string, hello platform.DeviceInfo, cfg *Config) (*Pad, error) {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	key, err := auth.DeriveKey(password)
	if err != nil {
		return nil, err
	}
	helloBytes, err := hello.MarshalBinary()
	if err != nil {
		return nil, err
	}

	d := &net.Dialer{Timeout: c.DialTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			slog.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(dl)
	} else if c.DialTimeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(c.DialTimeout))
	}

	sessionKey, err := auth.ClientHandshake(raw, key)
	if err != nil {
		raw.Close()
		return nil, err
	}
	conn, err := auth.WrapConn(raw, sessionKey, true)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if _, err := conn.Write(helloBytes); err != nil {
		raw.Close()
		return nil, fmt.Errorf("write hello: %w", err)
	}
	var status [1]byte
	if _, err := conn.Read(status[:]); err != nil {
		raw.Close()
		return nil, fmt.Errorf("read hello status: %w", err)
	}
	if status[0] != link.StatusAccepted {
		raw.Close()
		return nil, fmt.Errorf("%w: status %d", ErrRejected, status[0])
	}
	_ = raw.SetDeadline(time.Time{})
	return &Pad{conn: conn, cfg: c}, nil
}

// Send streams one controller frame.
func (p *Pad) Send(ctl *platform.Controller) error {
	b, err := ctl.MarshalBinary()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return net.ErrClosed
	}
	if p.cfg.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	}
	if _, err := p.conn.Write(b); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Close ends the session; the bridge sees the controller disconnect.
func (p *Pad) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}
