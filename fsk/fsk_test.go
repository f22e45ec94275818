package fsk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulateDemodulateRoundTrip(t *testing.T) {
	var mod Modulator
	samples := mod.Modulate(nil, []byte{0xC3})
	require.Len(t, samples, SamplesPerSymbol*4)

	demod := NewDemodulator()
	out := demod.Demodulate(nil, samples)
	require.Len(t, out, 1)
	assert.Equal(t, byte(0xC3), out[0])
}

func TestModulateDemodulateMultiByte(t *testing.T) {
	var mod Modulator
	msg := []byte("hi!")
	samples := mod.Modulate(nil, msg)

	demod := NewDemodulator()
	out := demod.Demodulate(nil, samples)
	assert.Equal(t, msg, out)
}

func TestDetectSymbolRejectsSilence(t *testing.T) {
	demod := NewDemodulator()
	silence := make([]int16, SamplesPerSymbol)
	_, ok := demod.DetectSymbol(silence)
	assert.False(t, ok)
}

func TestResetClearsPartialNibble(t *testing.T) {
	var mod Modulator
	samples := mod.modulateSymbol(nil, 3)

	demod := NewDemodulator()
	out := demod.Demodulate(nil, samples)
	assert.Len(t, out, 0)

	demod.Reset()
	assert.Equal(t, byte(0), demod.nibbleBuf)
	assert.Equal(t, 0, demod.nibbleBits)
}
