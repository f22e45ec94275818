package rs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRejectsBadLength(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrDataLen)

	big := make([]byte, MaxDataLen+1)
	_, err = Encode(big)
	assert.ErrorIs(t, err, ErrDataLen)
}

func TestRoundTripNoErrors(t *testing.T) {
	for _, n := range []int{1, 3, 100, 223} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		codeword, err := Encode(data)
		require.NoError(t, err)
		require.Len(t, codeword, n+ParitySymbols)

		got, corrected, err := Decode(codeword)
		require.NoError(t, err)
		assert.Equal(t, 0, corrected)
		assert.Equal(t, data, got)
	}
}

func TestSingleBitFlipIsCorrected(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33}
	codeword, err := Encode(data)
	require.NoError(t, err)

	codeword[1] ^= 0x01

	got, corrected, err := Decode(codeword)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)
	assert.Equal(t, data, got)
}

func TestSixteenErrorsAreCorrected(t *testing.T) {
	data := make([]byte, 100)
	codeword, err := Encode(data)
	require.NoError(t, err)

	for i := 0; i < MaxCorrectable; i++ {
		codeword[i*7] ^= byte(0x80 + i)
	}

	got, corrected, err := Decode(codeword)
	require.NoError(t, err)
	assert.Equal(t, MaxCorrectable, corrected)
	assert.Equal(t, data, got)
}

func TestSeventeenErrorsFailUncorrectably(t *testing.T) {
	data := make([]byte, 100)
	codeword, err := Encode(data)
	require.NoError(t, err)

	for i := 0; i < MaxCorrectable+1; i++ {
		codeword[i*7] ^= 0xFF
	}

	_, _, err = Decode(codeword)
	assert.ErrorIs(t, err, ErrUncorrectable)
}

func TestDecodeRejectsShortOrLongCodeword(t *testing.T) {
	_, _, err := Decode(make([]byte, ParitySymbols))
	assert.ErrorIs(t, err, ErrCodewordLen)

	_, _, err = Decode(make([]byte, N+1))
	assert.ErrorIs(t, err, ErrCodewordLen)
}
