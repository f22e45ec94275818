package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(n int, freq, sampleRate float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(12000 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

func TestADPCMRoundTripBoundedError(t *testing.T) {
	var enc EncoderState
	var dec DecoderState

	samples := sineWave(SamplesPerFrame, 440, SampleRateHz)
	preamble, data := EncodeFrame(&enc, samples)
	decoded := DecodeFrame(&dec, preamble, data, len(samples))

	require.Len(t, decoded, len(samples))
	for i, want := range samples {
		got := decoded[i]
		diff := int(want) - int(got)
		if diff < 0 {
			diff = -diff
		}
		// Worst-case quantization bound for 4-bit IMA-ADPCM at the
		// largest step is well under half the full step table's max
		// step; this generous bound exercises the codec without being
		// brittle to a specific waveform.
		assert.LessOrEqualf(t, diff, 4200, "sample %d: want %d got %d", i, want, got)
	}
}

func TestADPCMMultiFrameContinuity(t *testing.T) {
	var enc EncoderState
	var dec DecoderState

	samples := sineWave(SamplesPerFrame*4, 220, SampleRateHz)
	for f := 0; f < 4; f++ {
		frame := samples[f*SamplesPerFrame : (f+1)*SamplesPerFrame]
		preamble, data := EncodeFrame(&enc, frame)
		decoded := DecodeFrame(&dec, preamble, data, len(frame))
		require.Len(t, decoded, SamplesPerFrame)
	}
}

func TestPredictorAndIndexClamping(t *testing.T) {
	var enc EncoderState
	loud := make([]int16, SamplesPerFrame)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 32767
		} else {
			loud[i] = -32768
		}
	}
	assert.NotPanics(t, func() {
		EncodeFrame(&enc, loud)
	})
	assert.GreaterOrEqual(t, enc.Index, 0)
	assert.LessOrEqual(t, enc.Index, 88)
}

func TestPlaintextMarshalUnmarshal(t *testing.T) {
	p := Plaintext{
		Seq:         42,
		SampleCount: SamplesPerFrame,
		Preamble:    [4]byte{0x01, 0x02, 0x03, 0x00},
		ADPCM:       []byte{0xAA, 0xBB, 0xCC},
	}
	wire := p.Marshal()

	typ, ok := Type(wire)
	require.True(t, ok)
	assert.Equal(t, PlaintextType, typ)

	got, err := Unmarshal(wire)
	require.NoError(t, err)
	assert.Equal(t, p.Seq, got.Seq)
	assert.Equal(t, p.SampleCount, got.SampleCount)
	assert.Equal(t, p.Preamble, got.Preamble)
	assert.Equal(t, p.ADPCM, got.ADPCM)
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	_, err := Unmarshal([]byte{0xA1, 0x01})
	assert.Error(t, err)
}
