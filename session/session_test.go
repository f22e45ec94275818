package session

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Icing-Project/BT-Call-sub000/identity"
)

func seed(b byte) []byte {
	s := make([]byte, 32)
	for i := range s {
		s[i] = b
	}
	return s
}

// pumpUntilActive exchanges GenerateOutgoing/HandleIncoming bytes between
// two sessions until both reach StateActive or the iteration budget runs
// out, mirroring how the tx/rx goroutines would relay bytes over a real
// transport.
func pumpUntilActive(t *testing.T, a, b *Session) {
	t.Helper()
	buf := make([]byte, 8192)
	for i := 0; i < 50; i++ {
		if a.State() == StateActive && b.State() == StateActive {
			return
		}
		if n, err := a.GenerateOutgoing(buf); err == nil && n > 0 {
			require.NoError(t, b.HandleIncoming(buf[:n]))
		}
		if n, err := b.GenerateOutgoing(buf); err == nil && n > 0 {
			require.NoError(t, a.HandleIncoming(buf[:n]))
		}
	}
	require.Equal(t, StateActive, a.State())
	require.Equal(t, StateActive, b.State())
}

func newPairedSessions(t *testing.T) (server, client *Session) {
	t.Helper()
	server, err := NewSession(seed(0x01), nil)
	require.NoError(t, err)
	client, err = NewSession(seed(0x02), nil)
	require.NoError(t, err)

	require.NoError(t, server.StartAsServer(client.PublicKey()))
	require.NoError(t, client.StartAsClient(server.PublicKey()))
	return server, client
}

func TestHandshakePairingConvergesOnSwappedKeys(t *testing.T) {
	server, client := newPairedSessions(t)
	pumpUntilActive(t, server, client)

	assert.Equal(t, server.txKey, client.rxKey)
	assert.Equal(t, server.rxKey, client.txKey)
	assert.Equal(t, server.txNonceBase, client.rxNonceBase)
	assert.Equal(t, server.rxNonceBase, client.txNonceBase)
	assert.True(t, server.handshakeAcknowledged)
	assert.True(t, client.handshakeAcknowledged)
}

func TestHangupPropagation(t *testing.T) {
	server, client := newPairedSessions(t)
	pumpUntilActive(t, server, client)

	server.SendHangup()
	buf := make([]byte, 8192)
	n, err := server.GenerateOutgoing(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.NoError(t, client.HandleIncoming(buf[:n]))

	assert.True(t, client.ConsumeRemoteHangup())
	assert.False(t, client.ConsumeRemoteHangup())
}

func TestPeerStaticMismatchKeepsHandshakeReady(t *testing.T) {
	server, err := NewSession(seed(0x03), nil)
	require.NoError(t, err)
	wrongPeer, err := NewSession(seed(0x04), nil)
	require.NoError(t, err)
	impostor, err := NewSession(seed(0x05), nil)
	require.NoError(t, err)

	require.NoError(t, server.StartAsServer(wrongPeer.PublicKey()))
	require.NoError(t, impostor.StartAsClient(server.PublicKey()))

	buf := make([]byte, 8192)
	n, err := impostor.GenerateOutgoing(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	require.NoError(t, server.HandleIncoming(buf[:n]))
	assert.Equal(t, StateHandshakeReady, server.State())
}

func TestHandleTransportErrorTerminatesLikeHangup(t *testing.T) {
	server, client := newPairedSessions(t)
	pumpUntilActive(t, server, client)

	client.HandleTransportError(io.EOF)

	assert.Equal(t, StateTerminating, client.State())
	assert.True(t, client.ConsumeRemoteHangup())
}

func TestHandleTransportErrorNoopWhenIdle(t *testing.T) {
	s, err := NewSession(seed(0x06), nil)
	require.NoError(t, err)

	s.HandleTransportError(io.EOF)

	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.ConsumeRemoteHangup())
}

func TestOutboundPendingDrainsAfterGenerateOutgoing(t *testing.T) {
	server, err := NewSession(seed(0x07), nil)
	require.NoError(t, err)
	require.NoError(t, server.StartAsServer(identity.PublicKey{}))

	server.SendHangup()
	require.Greater(t, server.OutboundPending(), 0)

	buf := make([]byte, 8192)
	n, err := server.GenerateOutgoing(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	assert.Equal(t, 0, server.OutboundPending())
}

func TestCounterInvariants(t *testing.T) {
	server, client := newPairedSessions(t)
	pumpUntilActive(t, server, client)

	server.FeedMic(make([]int16, 320))
	buf := make([]byte, 8192)
	n, err := server.GenerateOutgoing(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.NoError(t, client.HandleIncoming(buf[:n]))

	assert.Equal(t, client.rxCounter, server.txCounter)
}
