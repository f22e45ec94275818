package fsk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportRoundTrip(t *testing.T) {
	var audioLink bytes.Buffer // FIFO: Write appends, Read drains the front
	transport := NewTransport(&audioLink)

	msg := []byte("hello over audio")
	n, err := transport.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	got := make([]byte, len(msg))
	n, err = io.ReadFull(transport, got)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, msg, got)
}

func TestTransportReadAcrossShortReads(t *testing.T) {
	var audioLink bytes.Buffer
	transport := NewTransport(&audioLink)

	msg := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	_, err := transport.Write(msg)
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 2)
	for len(got) < len(msg) {
		n, err := transport.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, msg, got)
}

func TestTransportResetClearsState(t *testing.T) {
	var audioLink bytes.Buffer
	transport := NewTransport(&audioLink)

	_, err := transport.Write([]byte{0xAB})
	require.NoError(t, err)
	transport.Reset()

	assert.Equal(t, float64(0), transport.mod.phase)
	assert.Equal(t, byte(0), transport.demod.nibbleBuf)
}
