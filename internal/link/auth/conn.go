package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Each frame is a big-endian u32 length followed by the sealed payload. The
// nonce is not sent: it is the direction byte plus the frame counter, so a
// replayed or reordered frame fails to open.
const maxFrameSize = 64 * 1024

var (
	ErrFrameTooLarge = errors.New("auth: frame too large")
	ErrBadFrame      = errors.New("auth: bad frame length")
)

const (
	dirClient byte = 0x01
	dirServer byte = 0x02
)

type Conn struct {
	net.Conn
	aead cipher.AEAD

	wmu     sync.Mutex
	sendDir byte
	sendCtr uint64

	recvDir byte
	recvCtr uint64
	recvBuf bytes.Buffer
}

// WrapConn seals conn with sessionKey. isClient picks the nonce direction,
// so the two ends must disagree.
func WrapConn(conn net.Conn, sessionKey []byte, isClient bool) (*Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	c := &Conn{Conn: conn, aead: aead, sendDir: dirServer, recvDir: dirClient}
	if isClient {
		c.sendDir, c.recvDir = dirClient, dirServer
	}
	return c, nil
}

func nonce(dir byte, ctr uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	n[0] = dir
	binary.BigEndian.PutUint64(n[4:], ctr)
	return n
}

// Write seals p as one frame.
func (c *Conn) Write(p []byte) (int, error) {
	if len(p)+chacha20poly1305.Overhead > maxFrameSize {
		return 0, ErrFrameTooLarge
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	frame := make([]byte, 4, 4+len(p)+chacha20poly1305.Overhead)
	frame = c.aead.Seal(frame, nonce(c.sendDir, c.sendCtr), p, nil)
	binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)-4))
	c.sendCtr++
	if _, err := c.Conn.Write(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns decrypted bytes, opening frames until one carries data.
// Read is not safe for concurrent use.
func (c *Conn) Read(p []byte) (int, error) {
	for c.recvBuf.Len() == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(c.Conn, hdr[:]); err != nil {
			return 0, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > maxFrameSize {
			return 0, ErrFrameTooLarge
		}
		if n < chacha20poly1305.Overhead {
			return 0, ErrBadFrame
		}
		ct := make([]byte, n)
		if _, err := io.ReadFull(c.Conn, ct); err != nil {
			return 0, err
		}
		pt, err := c.aead.Open(ct[:0], nonce(c.recvDir, c.recvCtr), ct, nil)
		if err != nil {
			return 0, fmt.Errorf("open frame %d: %w", c.recvCtr, err)
		}
		c.recvCtr++
		c.recvBuf.Write(pt)
	}
	return c.recvBuf.Read(p)
}
