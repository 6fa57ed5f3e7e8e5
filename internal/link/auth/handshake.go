package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// Handshake layout:
//
//	client -> server: magic[4] | client nonce[32] | HMAC(key, "client" | cn)[32]
//	server -> client: status[1] (0 ok) | server nonce[32] | HMAC(key, "server" | cn | sn)[32]
//
// A rejecting server sends only the status byte and closes.
const (
	HandshakeMagic = "PBL1"
	NonceSize      = 32
	macSize        = sha256.Size

	statusOK       = 0x00
	statusRejected = 0x01
)

var (
	ErrBadMagic     = errors.New("handshake: bad magic")
	ErrUnauthorized = errors.New("handshake: invalid password")
	ErrBadServer    = errors.New("handshake: server failed to prove key")
)

func proof(key []byte, label string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(label))
	for _, p := range parts {
		_, _ = mac.Write(p)
	}
	return mac.Sum(nil)
}

func newNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

// ClientHandshake runs the client side and returns the session key.
func ClientHandshake(rw io.ReadWriter, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("handshake: missing key")
	}
	cn, err := newNonce()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(HandshakeMagic)+NonceSize+macSize)
	msg = append(msg, HandshakeMagic...)
	msg = append(msg, cn...)
	msg = append(msg, proof(key, "client", cn)...)
	if _, err := rw.Write(msg); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	var status [1]byte
	if _, err := io.ReadFull(rw, status[:]); err != nil {
		return nil, fmt.Errorf("read handshake status: %w", err)
	}
	if status[0] != statusOK {
		return nil, ErrUnauthorized
	}
	resp := make([]byte, NonceSize+macSize)
	if _, err := io.ReadFull(rw, resp); err != nil {
		return nil, fmt.Errorf("read server nonce: %w", err)
	}
	sn, serverAuth := resp[:NonceSize], resp[NonceSize:]
	if !hmac.Equal(serverAuth, proof(key, "server", cn, sn)) {
		return nil, ErrBadServer
	}
	return DeriveSessionKey(key, sn, cn)
}

// ServerHandshake verifies a client and returns the session key. A client
// with the wrong key gets a rejection status and ErrUnauthorized.
func ServerHandshake(rw io.ReadWriter, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("handshake: missing key")
	}
	msg := make([]byte, len(HandshakeMagic)+NonceSize+macSize)
	if _, err := io.ReadFull(rw, msg); err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if string(msg[:len(HandshakeMagic)]) != HandshakeMagic {
		return nil, ErrBadMagic
	}
	cn := msg[len(HandshakeMagic) : len(HandshakeMagic)+NonceSize]
	clientAuth := msg[len(HandshakeMagic)+NonceSize:]
	if !hmac.Equal(clientAuth, proof(key, "client", cn)) {
		_, _ = rw.Write([]byte{statusRejected})
		return nil, ErrUnauthorized
	}

	sn, err := newNonce()
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 0, 1+NonceSize+macSize)
	resp = append(resp, statusOK)
	resp = append(resp, sn...)
	resp = append(resp, proof(key, "server", cn, sn)...)
	if _, err := rw.Write(resp); err != nil {
		return nil, fmt.Errorf("write handshake response: %w", err)
	}
	return DeriveSessionKey(key, sn, cn)
}
