package session

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Icing-Project/BT-Call-sub000/identity"
)

// fakeDuplex is a minimal io.ReadWriter standing in for a real transport:
// writes are recorded, reads always report EOF (a closed peer).
type fakeDuplex struct {
	mu  sync.Mutex
	out []byte
}

func (f *fakeDuplex) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, p...)
	return len(p), nil
}

func (f *fakeDuplex) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (f *fakeDuplex) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.out...)
}

type noopMic struct{}

func (noopMic) ReadPCM(buf []int16) (int, error) {
	time.Sleep(pollInterval)
	return 0, nil
}

type noopSpeaker struct{}

func (noopSpeaker) WritePCM(buf []int16) error { return nil }

func TestPipelineStopDrainsQueuedHangup(t *testing.T) {
	server, err := NewSession(seed(0x08), nil)
	require.NoError(t, err)
	require.NoError(t, server.StartAsServer(identity.PublicKey{}))

	server.SendHangup()
	require.Greater(t, server.OutboundPending(), 0)

	stream := &fakeDuplex{}
	pipeline := NewPipeline(server, noopMic{}, noopSpeaker{}, stream)
	pipeline.Start()

	start := time.Now()
	pipeline.Stop()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, hangupDrainTimeout+500*time.Millisecond)
	assert.Equal(t, 0, server.OutboundPending())
	assert.Contains(t, stream.written(), ControlHangup)
}

func TestPipelineRxTransportErrorTerminatesSession(t *testing.T) {
	server, err := NewSession(seed(0x09), nil)
	require.NoError(t, err)
	require.NoError(t, server.StartAsServer(identity.PublicKey{}))

	stream := &fakeDuplex{}
	pipeline := NewPipeline(server, noopMic{}, noopSpeaker{}, stream)
	pipeline.Start()
	defer pipeline.Stop()

	require.Eventually(t, func() bool {
		return server.State() == StateTerminating
	}, time.Second, 5*time.Millisecond)
	assert.True(t, server.ConsumeRemoteHangup())
}
