package gadget

import (
	"net"

	"github.com/padbridge/padbridge/internal/log"
)

// logConn mirrors every chunk read from or written to the client into a RawLogger.
type logConn struct {
	net.Conn
	raw log.RawLogger
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 {
		lc.raw.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 {
		lc.raw.Log(false, p[:n])
	}
	return n, err
}
