package session

import "encoding/binary"

// FrameKind identifies the body of a wire frame. See spec.md §3.
type FrameKind uint8

const (
	FrameHandshake FrameKind = 0x01
	FrameCipher    FrameKind = 0x02
	FramePlaintext FrameKind = 0x03
	FrameControl   FrameKind = 0x04
)

// FrameHeaderSize is the {kind:u8, length:u16_le} prefix on every frame.
const FrameHeaderSize = 3

// MaxFrameBody is the largest body a frame may carry; larger declared
// lengths are a protocol error per spec.md §4.2.
const MaxFrameBody = 2048

// EncodeFrame prepends a frame header to body and returns the full wire
// representation, ready to push onto the outbound ring.
func EncodeFrame(kind FrameKind, body []byte) []byte {
	out := make([]byte, FrameHeaderSize+len(body))
	out[0] = byte(kind)
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(body)))
	copy(out[3:], body)
	return out
}

// dispatchFrames repeatedly peeks a header off in, and on finding a
// complete frame, drains it and invokes handle(kind, body). It returns once
// the ring no longer holds a complete frame. Oversized bodies are drained
// and discarded without resynchronizing the stream, matching spec.md §4.2:
// the underlying transport is assumed reliable, so an oversized length is a
// protocol error, not a framing desync to recover from.
func dispatchFrames(in *ByteRing, handle func(kind FrameKind, body []byte)) {
	for {
		header, ok := in.Peek(FrameHeaderSize)
		if !ok {
			return
		}
		kind := FrameKind(header[0])
		length := int(binary.LittleEndian.Uint16(header[1:3]))

		total := FrameHeaderSize + length
		if in.Len() < total {
			return
		}
		frame := in.Drain(total)
		if length > MaxFrameBody {
			continue
		}
		handle(kind, frame[FrameHeaderSize:])
	}
}
