package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/Icing-Project/BT-Call-sub000/identity"
)

// HandshakeVersion is the only version this implementation speaks.
// Payloads with a different version are ignored per spec.md §4.1.
const HandshakeVersion = 1

// Capability bits carried in the handshake payload.
const (
	CapWillEncryptOutbound  uint8 = 0x01
	CapRequireEncryptedIn   uint8 = 0x02
)

// HandshakePayloadSize is the fixed 84-byte wire size from spec.md §3.
const HandshakePayloadSize = 1 + 1 + 1 + 1 + 32 + 32 + 16

var errHandshakeSize = errors.New("session: handshake payload must be 84 bytes")

// HandshakePayload is the fixed handshake message exchanged by both roles.
type HandshakePayload struct {
	Version      uint8
	Role         uint8
	Capabilities uint8
	Reserved     uint8
	Ephemeral    identity.PublicKey
	Static       identity.PublicKey
	StaticHash   [16]byte
}

// newHandshakePayload builds the payload this side sends, stamping the
// fingerprint of its own static key.
func newHandshakePayload(role Role, caps uint8, ephemeral, static identity.PublicKey) HandshakePayload {
	var p HandshakePayload
	p.Version = HandshakeVersion
	p.Role = uint8(role)
	p.Capabilities = caps
	p.Ephemeral = ephemeral
	p.Static = static
	copy(p.StaticHash[:], static.Fingerprint(16))
	return p
}

func (p *HandshakePayload) Marshal() []byte {
	b := make([]byte, HandshakePayloadSize)
	b[0] = p.Version
	b[1] = p.Role
	b[2] = p.Capabilities
	b[3] = p.Reserved
	off := 4
	copy(b[off:], p.Ephemeral[:])
	off += identity.KeySize
	copy(b[off:], p.Static[:])
	off += identity.KeySize
	copy(b[off:], p.StaticHash[:])
	return b
}

func (p *HandshakePayload) Unmarshal(b []byte) error {
	if len(b) != HandshakePayloadSize {
		return errHandshakeSize
	}
	p.Version = b[0]
	p.Role = b[1]
	p.Capabilities = b[2]
	p.Reserved = b[3]
	off := 4
	copy(p.Ephemeral[:], b[off:off+identity.KeySize])
	off += identity.KeySize
	copy(p.Static[:], b[off:off+identity.KeySize])
	off += identity.KeySize
	copy(p.StaticHash[:], b[off:off+16])
	return nil
}

// fingerprintValid reports whether the embedded static-key hash matches the
// embedded static key itself, a cheap sanity check before trusting either.
func (p *HandshakePayload) fingerprintValid() bool {
	want := p.Static.Fingerprint(16)
	return subtle.ConstantTimeCompare(want, p.StaticHash[:]) == 1
}

const (
	hkdfSalt   = "NADEv1"
	hkdfInfo   = "NADE_SESS"
	hkdfOutLen = 96
)

// keySchedule holds the direction-assigned material produced by deriveKeys.
type keySchedule struct {
	txKey       [32]byte
	rxKey       [32]byte
	txNonceBase [12]byte
	rxNonceBase [12]byte
}

// deriveKeys computes the three-DH handshake key schedule from spec.md
// §4.3. local is this side's ephemeral and static private keys; remote is
// the peer's ephemeral and static public keys observed on the wire.
func deriveKeys(role Role, localEphemeral, localStatic identity.PrivateKey, remoteEphemeral, remoteStatic identity.PublicKey) (keySchedule, error) {
	var ks keySchedule

	dhEE, err := localEphemeral.SharedSecret(remoteEphemeral)
	if err != nil {
		return ks, err
	}
	defer zero32(&dhEE)

	var dhES, dhSE [32]byte
	switch role {
	case RoleClient:
		dhES, err = localEphemeral.SharedSecret(remoteStatic)
		if err != nil {
			return ks, err
		}
		dhSE, err = localStatic.SharedSecret(remoteEphemeral)
		if err != nil {
			return ks, err
		}
	case RoleServer:
		dhES, err = localStatic.SharedSecret(remoteEphemeral)
		if err != nil {
			return ks, err
		}
		dhSE, err = localEphemeral.SharedSecret(remoteStatic)
		if err != nil {
			return ks, err
		}
	default:
		return ks, errors.New("session: unknown role in key schedule")
	}
	defer zero32(&dhES)
	defer zero32(&dhSE)

	ikm := make([]byte, 0, 96)
	ikm = append(ikm, dhEE[:]...)
	ikm = append(ikm, dhES[:]...)
	ikm = append(ikm, dhSE[:]...)
	defer zeroBytes(ikm)

	h := hkdf.New(sha256.New, ikm, []byte(hkdfSalt), []byte(hkdfInfo))
	out := make([]byte, hkdfOutLen)
	if _, err := io.ReadFull(h, out); err != nil {
		return ks, err
	}
	defer zeroBytes(out)

	var clientKey, serverKey [32]byte
	var clientNonceBase, serverNonceBase [12]byte
	copy(clientKey[:], out[0:32])
	copy(serverKey[:], out[32:64])
	copy(clientNonceBase[:], out[64:76])
	copy(serverNonceBase[:], out[76:88])

	if role == RoleClient {
		ks.txKey, ks.rxKey = clientKey, serverKey
		ks.txNonceBase, ks.rxNonceBase = clientNonceBase, serverNonceBase
	} else {
		ks.txKey, ks.rxKey = serverKey, clientKey
		ks.txNonceBase, ks.rxNonceBase = serverNonceBase, clientNonceBase
	}
	return ks, nil
}

func zero32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// nonceFor builds the 12-byte AEAD nonce for a frame: the per-direction
// base with its lower 8 bytes XOR'd against the little-endian counter, per
// spec.md §4.4. The first 4 bytes of the base are left untouched.
func nonceFor(base [12]byte, counter uint64) [12]byte {
	var nonce [12]byte
	copy(nonce[:4], base[:4])
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], counter)
	for i := 0; i < 8; i++ {
		nonce[4+i] = base[4+i] ^ ctr[i]
	}
	return nonce
}
