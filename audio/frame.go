package audio

import (
	"encoding/binary"
	"errors"
)

// PlaintextType is the fixed type byte of an audio-cipher plaintext body.
const PlaintextType uint8 = 0xA1

// CodecVersion identifies the ADPCM framing below; bumped if the preamble
// or nibble packing ever changes shape.
const CodecVersion uint8 = 1

// plaintextHeaderSize is the 8-byte header preceding the ADPCM payload.
const plaintextHeaderSize = 8

var errPlaintextTooShort = errors.New("audio: plaintext shorter than header")

// Plaintext is the decoded form of an audio-cipher plaintext body
// (spec.md §3): an 8-byte header plus the ADPCM preamble+nibbles.
type Plaintext struct {
	Seq         uint16
	SampleCount uint16
	Preamble    [4]byte
	ADPCM       []byte
}

// Marshal encodes p into the wire layout:
// {type:u8, codec_version:u8, seq:u16_le, sample_count:u16_le,
//  adpcm_len:u16_le, preamble[4], adpcm[...]}.
//
// The 4-byte preamble is logically the first bytes of the ADPCM payload
// (spec.md §4.5 carries it "in the 4-byte per-frame preamble on the
// wire"); it is placed immediately after the header and counted in
// adpcm_len.
func (p *Plaintext) Marshal() []byte {
	body := make([]byte, len(p.Preamble)+len(p.ADPCM))
	copy(body, p.Preamble[:])
	copy(body[len(p.Preamble):], p.ADPCM)

	out := make([]byte, plaintextHeaderSize+len(body))
	out[0] = PlaintextType
	out[1] = CodecVersion
	binary.LittleEndian.PutUint16(out[2:4], p.Seq)
	binary.LittleEndian.PutUint16(out[4:6], p.SampleCount)
	binary.LittleEndian.PutUint16(out[6:8], uint16(len(body)))
	copy(out[8:], body)
	return out
}

// Unmarshal parses the layout Marshal produces. It does not require
// Type/CodecVersion to match; callers check those before trusting the
// result, matching spec.md §4.5 ("Payloads with type == 0xA1 are handed to
// the decoder").
func Unmarshal(b []byte) (Plaintext, error) {
	var p Plaintext
	if len(b) < plaintextHeaderSize {
		return p, errPlaintextTooShort
	}
	p.Seq = binary.LittleEndian.Uint16(b[2:4])
	p.SampleCount = binary.LittleEndian.Uint16(b[4:6])
	adpcmLen := int(binary.LittleEndian.Uint16(b[6:8]))
	if len(b) < plaintextHeaderSize+adpcmLen {
		return p, errPlaintextTooShort
	}
	body := b[plaintextHeaderSize : plaintextHeaderSize+adpcmLen]
	if len(body) < len(p.Preamble) {
		return p, errPlaintextTooShort
	}
	copy(p.Preamble[:], body[:4])
	p.ADPCM = append([]byte(nil), body[4:]...)
	return p, nil
}

// Type reports the raw type byte without a full Unmarshal, used to filter
// frames before paying for allocation.
func Type(b []byte) (uint8, bool) {
	if len(b) < 1 {
		return 0, false
	}
	return b[0], true
}

// MicSource is the platform mic-capture collaborator: it fills buf with up
// to len(buf) fresh samples and reports how many were written.
type MicSource interface {
	ReadPCM(buf []int16) (n int, err error)
}

// SpeakerSink is the platform playback collaborator.
type SpeakerSink interface {
	WritePCM(buf []int16) error
}
