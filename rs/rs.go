package rs

import "errors"

// N is the full RS(255,223) codeword length; ParitySymbols is fixed at 32,
// so the maximum systematic data length is N-ParitySymbols = 223 bytes.
const (
	N              = 255
	ParitySymbols  = 32
	MaxDataLen     = N - ParitySymbols
	MaxCorrectable = ParitySymbols / 2
)

var (
	// ErrDataLen is returned by Encode when data is empty or exceeds MaxDataLen.
	ErrDataLen = errors.New("rs: data length must be in [1,223]")
	// ErrCodewordLen is returned by Decode when codeword is too short or too long.
	ErrCodewordLen = errors.New("rs: codeword length out of range")
	// ErrUncorrectable is returned by Decode when the codeword carries more
	// errors than the code's 16-symbol correction bound, or the corrected
	// result still fails verification.
	ErrUncorrectable = errors.New("rs: uncorrectable codeword")
)

// Encode appends 32 parity bytes to data, producing a systematic RS(255,223)
// codeword shortened to len(data)+32 bytes. data must be 1..223 bytes.
func Encode(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxDataLen {
		return nil, ErrDataLen
	}
	return encodeMsg(data, ParitySymbols), nil
}

// Decode corrects up to MaxCorrectable byte errors in codeword and returns
// the data portion (codeword without its trailing 32 parity bytes) plus the
// number of symbols corrected. It returns ErrUncorrectable if the codeword
// cannot be corrected to a valid RS codeword.
func Decode(codeword []byte) (data []byte, corrected int, err error) {
	if len(codeword) <= ParitySymbols || len(codeword) > N {
		return nil, 0, ErrCodewordLen
	}
	dataLen := len(codeword) - ParitySymbols

	synd := calcSyndromes(codeword)
	if allZero(synd) {
		return append([]byte(nil), codeword[:dataLen]...), 0, nil
	}

	sigma, errCount := berlekampMassey(synd)
	if errCount == 0 || errCount > MaxCorrectable {
		return nil, 0, ErrUncorrectable
	}

	positions, xinvs, ok := chienSearch(sigma, errCount, len(codeword))
	if !ok {
		return nil, 0, ErrUncorrectable
	}

	fixed := append([]byte(nil), codeword...)
	if err := forneyCorrect(fixed, synd, sigma, positions, xinvs); err != nil {
		return nil, 0, ErrUncorrectable
	}

	verify := calcSyndromes(fixed)
	if !allZero(verify) {
		return nil, 0, ErrUncorrectable
	}

	return fixed[:dataLen], len(positions), nil
}

// generatorPoly builds the degree-nsym generator polynomial (x-alpha^1)...
// (x-alpha^nsym), high-to-low coefficient order, monic.
func generatorPoly(nsym int) []byte {
	g := []byte{1}
	for i := 1; i <= nsym; i++ {
		root := expTable[i%255]
		next := make([]byte, len(g)+1)
		for j, c := range g {
			next[j] ^= c
			next[j+1] ^= gfMul(c, root)
		}
		g = next
	}
	return g
}

// encodeMsg performs systematic synthetic division of msg*x^nsym by the
// generator polynomial, leaving the nsym-byte remainder (parity) in the
// trailing bytes of the result.
func encodeMsg(msg []byte, nsym int) []byte {
	gen := generatorPoly(nsym)
	out := make([]byte, len(msg)+nsym)
	copy(out, msg)
	for i := 0; i < len(msg); i++ {
		coef := out[i]
		if coef != 0 {
			for j := 0; j < len(gen); j++ {
				out[i+j] ^= gfMul(gen[j], coef)
			}
		}
	}
	copy(out, msg)
	return out
}

// calcSyndromes evaluates the received codeword at alpha^1..alpha^32.
func calcSyndromes(codeword []byte) []byte {
	synd := make([]byte, ParitySymbols)
	for k := 0; k < ParitySymbols; k++ {
		synd[k] = polyEvalHorner(codeword, expTable[(k+1)%255])
	}
	return synd
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// berlekampMassey finds the shortest-LFSR error locator sigma (ascending,
// sigma[0]=1) satisfying the syndromes, returning sigma trimmed to its
// discovered degree L and L itself (the error count).
func berlekampMassey(synd []byte) (sigma []byte, errCount int) {
	n := len(synd)
	C := make([]byte, 1, n+1)
	C[0] = 1
	B := make([]byte, 1, n+1)
	B[0] = 1
	L := 0
	m := 1
	b := byte(1)

	for i := 0; i < n; i++ {
		delta := synd[i]
		for j := 1; j <= L && j < len(C); j++ {
			delta ^= gfMul(C[j], synd[i-j])
		}
		switch {
		case delta == 0:
			m++
		case 2*L <= i:
			T := append([]byte(nil), C...)
			coef := gfDiv(delta, b)
			needed := m + len(B)
			if needed > len(C) {
				grown := make([]byte, needed)
				copy(grown, C)
				C = grown
			}
			for k, bc := range B {
				C[k+m] ^= gfMul(coef, bc)
			}
			L = i + 1 - L
			B = T
			b = delta
			m = 1
		default:
			coef := gfDiv(delta, b)
			needed := m + len(B)
			if needed > len(C) {
				grown := make([]byte, needed)
				copy(grown, C)
				C = grown
			}
			for k, bc := range B {
				C[k+m] ^= gfMul(coef, bc)
			}
			m++
		}
	}

	if L+1 > len(C) {
		L = len(C) - 1
	}
	return C[:L+1], L
}

// chienSearch tests every codeword position for a root of sigma, returning
// the (high-to-low) byte positions in error and, for each, alpha^-i (the
// inverse error locator value Forney needs). Only positions actually present
// in the (possibly shortened) codeword are searched, per spec.md §4.6.
func chienSearch(sigma []byte, errCount, codeLen int) (positions []int, xinvs []byte, ok bool) {
	for i := 0; i < codeLen; i++ {
		xinv := expTable[(255-i)%255]
		if polyEvalAsc(sigma, xinv) == 0 {
			positions = append(positions, codeLen-1-i)
			xinvs = append(xinvs, xinv)
		}
	}
	return positions, xinvs, len(positions) == errCount
}

// formalDerivative computes sigma'(x); in characteristic 2 only odd-degree
// terms survive differentiation.
func formalDerivative(p []byte) []byte {
	if len(p) <= 1 {
		return []byte{0}
	}
	out := make([]byte, len(p)-1)
	for k := 1; k < len(p); k++ {
		if k%2 == 1 {
			out[k-1] = p[k]
		}
	}
	return out
}

// forneyCorrect computes each error magnitude via Forney's algorithm and
// XORs the corrections into codeword in place. Because the roots used here
// are consecutive starting at alpha^1 (fcr=1), the X_l^(1-fcr) factor in the
// general Forney formula collapses to 1 and drops out.
func forneyCorrect(codeword []byte, synd, sigma []byte, positions []int, xinvs []byte) error {
	omegaFull := polyMulAsc(synd, sigma)
	omega := omegaFull
	if len(omega) > ParitySymbols {
		omega = omega[:ParitySymbols]
	}
	sigmaDeriv := formalDerivative(sigma)

	for idx, pos := range positions {
		xinv := xinvs[idx]
		omegaVal := polyEvalAsc(omega, xinv)
		derivVal := polyEvalAsc(sigmaDeriv, xinv)
		if derivVal == 0 {
			return ErrUncorrectable
		}
		codeword[pos] ^= gfDiv(omegaVal, derivVal)
	}
	return nil
}
