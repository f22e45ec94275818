// Package audio implements the IMA-ADPCM voice codec and audio-cipher
// plaintext framing from spec.md §4.5, plus the small collaborator
// interfaces the session's four-thread pipeline drives.
package audio

// SamplesPerFrame is 20ms at 16kHz mono, per spec.md §3.
const SamplesPerFrame = 320

// SampleRateHz is the fixed audio sample rate for mic/speaker PCM.
const SampleRateHz = 16000

var stepTable = [89]int16{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var indexTable = [16]int8{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

// EncoderState is the persistent IMA-ADPCM encode state carried across
// audio frames (the predictor and step index travel in the per-frame
// preamble on the wire, not as codec side-channel state).
type EncoderState struct {
	Predictor int32
	Index     int
}

// DecoderState mirrors EncoderState on the decode side.
type DecoderState struct {
	Predictor int32
	Index     int
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i > 88 {
		return 88
	}
	return i
}

// EncodeFrame compresses exactly len(samples) int16 PCM samples (normally
// SamplesPerFrame) into 4-bit IMA-ADPCM nibbles, two per output byte. State
// carries across calls with the same *EncoderState so a stream encodes
// continuously; the preamble (initial predictor/index) reflects the state
// *before* this frame, so a receiver can resync every frame.
func EncodeFrame(st *EncoderState, samples []int16) (preamble [4]byte, data []byte) {
	putPreamble(&preamble, st.Predictor, st.Index)

	data = make([]byte, (len(samples)+1)/2)
	predictor := st.Predictor
	index := st.Index

	for i, sample := range samples {
		nibble := encodeSample(int32(sample), &predictor, &index)
		if i%2 == 0 {
			data[i/2] = nibble
		} else {
			data[i/2] |= nibble << 4
		}
	}

	st.Predictor = predictor
	st.Index = index
	return preamble, data
}

// DecodeFrame expands ADPCM data back into sampleCount PCM samples
// (clamped to SamplesPerFrame per spec.md §4.5), resuming from the state
// encoded in preamble so each frame is independently decodable.
func DecodeFrame(st *DecoderState, preamble [4]byte, data []byte, sampleCount int) []int16 {
	if sampleCount > SamplesPerFrame {
		sampleCount = SamplesPerFrame
	}
	predictor, index := parsePreamble(preamble)
	st.Predictor = predictor
	st.Index = index

	out := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		byteIdx := i / 2
		if byteIdx >= len(data) {
			break
		}
		var nibble byte
		if i%2 == 0 {
			nibble = data[byteIdx] & 0x0F
		} else {
			nibble = data[byteIdx] >> 4
		}
		out[i] = decodeSample(nibble, &predictor, &index)
	}
	st.Predictor = predictor
	st.Index = index
	return out
}

func encodeSample(sample int32, predictor *int32, index *int) byte {
	step := int32(stepTable[*index])
	diff := sample - *predictor

	nibble := byte(0)
	if diff < 0 {
		nibble = 8
		diff = -diff
	}

	vpdiff := step >> 3
	mask := byte(4)
	for mask > 0 {
		if diff >= step {
			nibble |= mask
			diff -= step
			vpdiff += step
		}
		step >>= 1
		mask >>= 1
	}

	if nibble&8 != 0 {
		*predictor -= vpdiff
	} else {
		*predictor += vpdiff
	}
	*predictor = int32(clampInt16(*predictor))

	*index = clampIndex(*index + int(indexTable[nibble]))
	return nibble
}

func decodeSample(nibble byte, predictor *int32, index *int) int16 {
	step := int32(stepTable[*index])

	vpdiff := step >> 3
	if nibble&1 != 0 {
		vpdiff += step >> 2
	}
	if nibble&2 != 0 {
		vpdiff += step >> 1
	}
	if nibble&4 != 0 {
		vpdiff += step
	}

	if nibble&8 != 0 {
		*predictor -= vpdiff
	} else {
		*predictor += vpdiff
	}
	*predictor = int32(clampInt16(*predictor))

	*index = clampIndex(*index + int(indexTable[nibble]))
	return clampInt16(*predictor)
}

func putPreamble(p *[4]byte, predictor int32, index int) {
	v := clampInt16(predictor)
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(clampIndex(index))
	p[3] = 0 // reserved
}

func parsePreamble(p [4]byte) (predictor int32, index int) {
	predictor = int32(int16(uint16(p[0]) | uint16(p[1])<<8))
	index = clampIndex(int(p[2]))
	return predictor, index
}
