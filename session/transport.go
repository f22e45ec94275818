package session

import "golang.org/x/crypto/chacha20poly1305"

// sealFrame encrypts plaintext with the given key/nonce-base/counter,
// producing ciphertext_body||tag per spec.md §4.4. Associated data is
// always empty.
func sealFrame(key [32]byte, base [12]byte, counter uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(base, counter)
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// openFrame decrypts a cipher-frame body. Per spec.md §4.1/§9, the caller
// is responsible for advancing the rx counter unconditionally, even when
// this returns an error: the counter must never be rewound.
func openFrame(key [32]byte, base [12]byte, counter uint64, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(base, counter)
	return aead.Open(nil, nonce[:], ciphertext, nil)
}
