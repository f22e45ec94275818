package session

import "fmt"

// Stage identifies where in the pipeline an error originated, mirroring the
// (stage, message) pair the host's event stream is expected to surface per
// spec.md §7.
type Stage string

const (
	StageConfig    Stage = "config"
	StageHandshake Stage = "handshake"
	StageFrame     Stage = "frame"
	StageCrypto    Stage = "crypto"
	StageTransport Stage = "transport"
)

// ConfigError signals bad initialization input: a malformed seed or
// configuration payload. Always fatal to the call that produced it.
type ConfigError struct {
	Stage Stage
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error [%s]: %v", e.Stage, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// ProtocolError signals a recoverable framing or handshake problem: a
// malformed or oversized frame, an unknown kind, a bad handshake version,
// or a peer-static mismatch. The session remains usable; the event is
// logged and the offending data is skipped.
type ProtocolError struct {
	Stage Stage
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%s]: %v", e.Stage, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// CryptoError signals a hard cryptographic failure: an AEAD decrypt
// failure or a failed key derivation. Per spec.md §4.1 and §9, the rx
// counter is never rewound after one of these; the session is considered
// session-fatal and the host must call Stop.
type CryptoError struct {
	Stage Stage
	Err   error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("crypto error [%s]: %v", e.Stage, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// TransportError signals that the underlying byte stream failed or
// reached EOF. Treated identically to a remote hangup.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
