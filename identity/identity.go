// Package identity derives the long-term X25519 keypair a session is built
// on: a 32-byte seed in, a private scalar and its public point out.
package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/curve25519"
)

const KeySize = 32

// ErrInvalidSeed is returned when a seed is not exactly KeySize bytes.
var ErrInvalidSeed = errors.New("identity: seed must be 32 bytes")

// PrivateKey is an X25519 scalar stored as given (unclamped);
// curve25519.X25519 clamps it on every use.
type PrivateKey [KeySize]byte

// PublicKey is an X25519 point.
type PublicKey [KeySize]byte

// New derives a PrivateKey from a 32-byte seed. The seed is carried as-is;
// curve25519.X25519 performs RFC 7748 clamping whenever the key is used, so
// the same seed always yields the same keypair.
func New(seed []byte) (PrivateKey, error) {
	var sk PrivateKey
	if len(seed) != KeySize {
		return sk, ErrInvalidSeed
	}
	copy(sk[:], seed)
	return sk, nil
}

// Public computes the X25519 public point for sk.
func (sk PrivateKey) Public() (PublicKey, error) {
	var pk PublicKey
	out, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return pk, err
	}
	copy(pk[:], out)
	return pk, nil
}

// SharedSecret computes the X25519 shared point between sk and peer.
func (sk PrivateKey) SharedSecret(peer PublicKey) ([KeySize]byte, error) {
	var out [KeySize]byte
	shared, err := curve25519.X25519(sk[:], peer[:])
	if err != nil {
		return out, err
	}
	copy(out[:], shared)
	return out, nil
}

// Zero wipes the private scalar in place. Callers must do this on every exit
// path that holds ephemeral or derived key material.
func (sk *PrivateKey) Zero() {
	for i := range sk {
		sk[i] = 0
	}
}

// IsZero reports whether pk is the all-zero key, used by the wire protocol
// as a sentinel for "accept any peer".
func (pk PublicKey) IsZero() bool {
	var zero PublicKey
	return subtle.ConstantTimeCompare(pk[:], zero[:]) == 1
}

// Equal reports whether two public keys are the same, in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk[:], other[:]) == 1
}

// Fingerprint returns the first n bytes of sha256(pk). The handshake
// payload carries it next to the static key itself, so a receiver can check
// that the two agree.
func (pk PublicKey) Fingerprint(n int) []byte {
	sum := sha256.Sum256(pk[:])
	return sum[:n]
}
