package auth_test

import (
	"io"
	"net"
	"testing"

	"github.com/padbridge/padbridge/internal/link/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err = ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func sessionKey(t *testing.T, password string) []byte {
	t.Helper()
	k, err := auth.DeriveKey(password)
	require.NoError(t, err)
	return k
}

func TestConnRoundTrip(t *testing.T) {
	rawC, rawS := tcpPair(t)
	key := sessionKey(t, "test123")

	c, err := auth.WrapConn(rawC, key, true)
	require.NoError(t, err)
	s, err := auth.WrapConn(rawS, key, false)
	require.NoError(t, err)

	msgs := [][]byte{[]byte("Hello, World!"), {}, []byte("second"), make([]byte, 1000)}
	go func() {
		for _, m := range msgs {
			_, _ = c.Write(m)
		}
	}()

	for _, m := range msgs {
		if len(m) == 0 {
			continue
		}
		got := make([]byte, len(m))
		_, err := io.ReadFull(s, got)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	// Replies use the other direction's nonces.
	go func() { _, _ = s.Write([]byte("pong")) }()
	got := make([]byte, 4)
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
}

func TestConnFailures(t *testing.T) {
	testCases := []struct {
		name      string
		clientKey []byte
		serverKey []byte
		sameSide  bool
		wantErr   string
	}{
		{
			name:      "differing keys",
			clientKey: sessionKey(t, "test123"),
			serverKey: sessionKey(t, "123test"),
			wantErr:   "message authentication failed",
		},
		{
			name:      "both ends claim the client side",
			clientKey: sessionKey(t, "test123"),
			serverKey: sessionKey(t, "test123"),
			sameSide:  true,
			wantErr:   "message authentication failed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rawC, rawS := tcpPair(t)
			c, err := auth.WrapConn(rawC, tc.clientKey, true)
			require.NoError(t, err)
			s, err := auth.WrapConn(rawS, tc.serverKey, tc.sameSide)
			require.NoError(t, err)

			go func() { _, _ = c.Write([]byte("x")) }()
			buf := make([]byte, 1)
			_, err = s.Read(buf)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestWrapConnBadKey(t *testing.T) {
	rawC, _ := tcpPair(t)
	_, err := auth.WrapConn(rawC, []byte{1, 2, 3}, true)
	assert.ErrorContains(t, err, "bad key length")
}

func TestConnRejectsOversizedFrames(t *testing.T) {
	rawC, rawS := tcpPair(t)
	key := sessionKey(t, "test123")
	c, err := auth.WrapConn(rawC, key, true)
	require.NoError(t, err)
	_, err = c.Write(make([]byte, 70*1024))
	assert.ErrorIs(t, err, auth.ErrFrameTooLarge)

	s, err := auth.WrapConn(rawS, key, false)
	require.NoError(t, err)
	go func() { _, _ = rawC.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) }()
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, auth.ErrFrameTooLarge)
}

func TestConnClosedPeer(t *testing.T) {
	rawC, rawS := tcpPair(t)
	key := sessionKey(t, "test123")
	s, err := auth.WrapConn(rawS, key, false)
	require.NoError(t, err)
	require.NoError(t, rawC.Close())
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
