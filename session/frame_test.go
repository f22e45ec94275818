package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFramesRoundTripFraming(t *testing.T) {
	in := NewByteRing(1024)
	in.Push([]byte{0x01, 0x02, 0x00, 0xAA, 0xBB})

	var gotKind FrameKind
	var gotBody []byte
	calls := 0
	dispatchFrames(in, func(kind FrameKind, body []byte) {
		calls++
		gotKind = kind
		gotBody = append([]byte(nil), body...)
	})

	require.Equal(t, 1, calls)
	assert.Equal(t, FrameHandshake, gotKind)
	assert.Equal(t, []byte{0xAA, 0xBB}, gotBody)
}

func TestDispatchFramesWaitsForCompleteFrame(t *testing.T) {
	in := NewByteRing(1024)
	in.Push([]byte{0x02, 0x05, 0x00, 0xAA}) // declares 5 bytes, only 1 present

	calls := 0
	dispatchFrames(in, func(kind FrameKind, body []byte) { calls++ })
	assert.Equal(t, 0, calls)
	assert.Equal(t, 4, in.Len())
}

func TestDispatchFramesDiscardsOversizedBody(t *testing.T) {
	in := NewByteRing(MaxFrameBody + 64)
	header := EncodeFrame(FrameCipher, make([]byte, MaxFrameBody+1))
	in.Push(header)
	in.Push(EncodeFrame(FrameControl, []byte{ControlKeepalive}))

	var kinds []FrameKind
	dispatchFrames(in, func(kind FrameKind, body []byte) {
		kinds = append(kinds, kind)
	})

	require.Len(t, kinds, 1)
	assert.Equal(t, FrameControl, kinds[0])
}
