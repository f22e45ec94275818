// Package fsk implements the reference 4-FSK audio-band modem from
// spec.md §4.7: a fallback physical layer carrying the same byte stream
// over a plain audio channel when no digital Bluetooth RFCOMM link is
// available. It is a reference implementation, not a production-grade
// modem — no adaptive equalization, no clock recovery beyond per-symbol
// resampling at a fixed rate.
package fsk

import "math"

const (
	// SampleRateHz is the fixed audio sample rate the modem operates at.
	SampleRateHz = 8000
	// BaudRate is the symbol rate; each symbol carries 2 bits (4-FSK).
	BaudRate = 100
	// SamplesPerSymbol is SampleRateHz/BaudRate.
	SamplesPerSymbol = SampleRateHz / BaudRate
	// Amplitude is the fixed output amplitude for modulated tones.
	Amplitude = 16000

	// DefaultPowerThreshold is the initial value of
	// Demodulator.PowerThreshold, the minimum Goertzel power a carrier must
	// show to be considered present; tunable per spec.md §9's "FSK threshold
	// tuning" open question rather than hardcoded into the detector.
	DefaultPowerThreshold = 1e6
)

// carrierHz are the four tone frequencies, one per 2-bit symbol value.
var carrierHz = [4]float64{1200, 1600, 2000, 2400}

// Modulator turns a byte stream into a continuous-phase 4-FSK audio
// signal, two bits per symbol, LSB-first within each byte.
type Modulator struct {
	phase float64
}

// Reset returns the modulator to its initial phase, per spec.md §4.7's
// "state reset on session start".
func (m *Modulator) Reset() {
	m.phase = 0
}

// Modulate appends SamplesPerSymbol*4*len(data) samples (one symbol per 2
// bits, 4 symbols per byte) encoding data to out, returning the grown slice.
func (m *Modulator) Modulate(out []int16, data []byte) []int16 {
	for _, b := range data {
		for shift := 0; shift < 8; shift += 2 {
			symbol := (b >> shift) & 0x03
			out = m.modulateSymbol(out, symbol)
		}
	}
	return out
}

func (m *Modulator) modulateSymbol(out []int16, symbol byte) []int16 {
	freq := carrierHz[symbol]
	omega := 2 * math.Pi * freq / SampleRateHz
	for i := 0; i < SamplesPerSymbol; i++ {
		out = append(out, int16(Amplitude*math.Sin(m.phase)))
		m.phase += omega
		if m.phase >= 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}
	return out
}

// Demodulator recovers symbols from a 4-FSK signal using a per-carrier
// Goertzel power detector over each SamplesPerSymbol-sample window.
type Demodulator struct {
	PowerThreshold float64

	nibbleBuf  byte
	nibbleBits int
}

// NewDemodulator constructs a Demodulator with the default power threshold.
func NewDemodulator() *Demodulator {
	return &Demodulator{PowerThreshold: DefaultPowerThreshold}
}

// Reset clears in-progress symbol accumulation, per spec.md §4.7's state
// reset on session start.
func (d *Demodulator) Reset() {
	d.nibbleBuf = 0
	d.nibbleBits = 0
}

// goertzelPower computes the Goertzel power of samples at freq.
func goertzelPower(samples []int16, freq float64) float64 {
	omega := 2 * math.Pi * freq / SampleRateHz
	coeff := 2 * math.Cos(omega)
	var s0, s1, s2 float64
	for _, sample := range samples {
		s0 = coeff*s1 - s2 + float64(sample)
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// DetectSymbol returns the dominant carrier's symbol value (0-3) across
// exactly SamplesPerSymbol samples, and whether any carrier exceeded
// PowerThreshold (false means the window looks like silence/noise).
func (d *Demodulator) DetectSymbol(samples []int16) (symbol byte, ok bool) {
	var bestPower float64
	var bestSymbol byte
	for i, freq := range carrierHz {
		p := goertzelPower(samples, freq)
		if p > bestPower {
			bestPower = p
			bestSymbol = byte(i)
		}
	}
	if bestPower < d.PowerThreshold {
		return 0, false
	}
	return bestSymbol, true
}

// Demodulate consumes consecutive SamplesPerSymbol-sample windows from
// samples, reassembling bytes LSB-first (2 bits per symbol, 4 symbols per
// byte), appending completed bytes to out. Symbols of a byte that is not yet
// complete are carried in the Demodulator's internal state for the next
// call; trailing samples that do not fill a whole SamplesPerSymbol window
// are neither demodulated nor kept.
func (d *Demodulator) Demodulate(out []byte, samples []int16) []byte {
	for off := 0; off+SamplesPerSymbol <= len(samples); off += SamplesPerSymbol {
		symbol, ok := d.DetectSymbol(samples[off : off+SamplesPerSymbol])
		if !ok {
			continue
		}
		d.nibbleBuf |= symbol << d.nibbleBits
		d.nibbleBits += 2
		if d.nibbleBits >= 8 {
			out = append(out, d.nibbleBuf)
			d.nibbleBuf = 0
			d.nibbleBits = 0
		}
	}
	return out
}
