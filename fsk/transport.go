package fsk

import (
	"encoding/binary"
	"io"
)

// Transport adapts an io.ReadWriter carrying 16-bit little-endian PCM audio
// samples into an io.ReadWriter carrying the session's framed byte stream,
// by modulating outbound bytes into 4-FSK tones and demodulating inbound
// tones back into bytes. This is the wiring point for spec.md §1/§4.7's
// "reference 4-FSK audio-band modem used when the underlying link cannot
// carry binary bytes": a host selects it instead of a raw byte stream when
// fsk_enabled is set.
type Transport struct {
	audio io.ReadWriter

	mod   Modulator
	demod *Demodulator

	sampleBuf []byte // undecoded PCM bytes left over from a short Read
	pending   []byte // demodulated bytes not yet delivered to the caller
}

// NewTransport wraps an audio stream (PCM16LE bytes in both directions) in
// a Transport.
func NewTransport(audioStream io.ReadWriter) *Transport {
	return &Transport{
		audio: audioStream,
		demod: NewDemodulator(),
	}
}

// Write modulates p into a 4-FSK tone burst and writes the resulting PCM16LE
// bytes to the underlying audio stream. It reports len(p) on success, since
// the caller's byte count, not the larger audio byte count, is what matters
// to the session's framing layer.
func (t *Transport) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	samples := t.mod.Modulate(nil, p)
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	if _, err := t.audio.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read demodulates PCM16LE audio from the underlying stream into p,
// buffering both undecoded audio bytes and decoded-but-undelivered protocol
// bytes across calls.
func (t *Transport) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		buf := make([]byte, 4096)
		n, err := t.audio.Read(buf)
		if n > 0 {
			t.sampleBuf = append(t.sampleBuf, buf[:n]...)
			usable := len(t.sampleBuf) - len(t.sampleBuf)%(2*SamplesPerSymbol)
			samples := make([]int16, usable/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(t.sampleBuf[i*2:]))
			}
			t.sampleBuf = t.sampleBuf[usable:]
			t.pending = t.demod.Demodulate(t.pending, samples)
		}
		if err != nil {
			return 0, err
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Reset returns both the modulator and demodulator to their initial state,
// per spec.md §4.7's "state reset on session start".
func (t *Transport) Reset() {
	t.mod.Reset()
	t.demod.Reset()
	t.sampleBuf = nil
	t.pending = nil
}
