package session

import (
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Icing-Project/BT-Call-sub000/audio"
	"github.com/Icing-Project/BT-Call-sub000/identity"
)

// Role identifies which side of the handshake a session plays.
type Role uint8

const (
	RoleClient Role = 0
	RoleServer Role = 1
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// State is the session's position in the state machine from spec.md §4.1.
type State uint8

const (
	StateIdle State = iota
	StateHandshakeReady
	StateKeysDerived
	// StateAcknowledged is named in the state diagram but the prose
	// transition ("on first successful AEAD decrypt: set
	// handshake_acknowledged, move to Active") collapses it into the same
	// step as StateActive; it is never observed as a resting state.
	StateAcknowledged
	StateActive
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshakeReady:
		return "handshake_ready"
	case StateKeysDerived:
		return "keys_derived"
	case StateAcknowledged:
		return "acknowledged"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Config is the atomically-swapped runtime configuration from spec.md §6's
// set_config operation.
type Config struct {
	Encrypt    bool
	Decrypt    bool
	FSKEnabled bool
}

const (
	handshakeIntervalMin = 500 * time.Millisecond
	keepaliveInterval    = time.Second
)

var (
	errUnknownFrameKind   = errors.New("session: unknown frame kind")
	errBadVersion         = errors.New("session: unsupported handshake version")
	errBadFingerprint     = errors.New("session: handshake static-key fingerprint mismatch")
	errPeerStaticMismatch = errors.New("session: peer static key does not match expected")
	errCipherTooShort     = errors.New("session: cipher frame shorter than AEAD tag")
	errControlEmpty       = errors.New("session: control frame has no subtype")
)

// Session is the core state machine from spec.md §3/§4.1: one handshake,
// one key schedule, one pair of audio rings, driven entirely through the
// exported methods below under a single mutex.
type Session struct {
	mu  sync.Mutex
	log *logrus.Entry

	identityKey identity.PrivateKey
	staticPub   identity.PublicKey

	role  Role
	state State

	expectedPeerStatic identity.PublicKey

	localEphemeralPriv identity.PrivateKey
	localEphemeralPub  identity.PublicKey
	remoteEphemeral    identity.PublicKey
	remoteStatic       identity.PublicKey

	txKey       [32]byte
	rxKey       [32]byte
	txNonceBase [12]byte
	rxNonceBase [12]byte
	txCounter   uint64
	rxCounter   uint64

	audioSeq uint16

	lastHandshakeAt time.Time
	lastKeepaliveAt time.Time

	handshakeComplete     bool
	handshakeAcknowledged bool
	peerAcceptsEncrypt    bool
	peerSendsEncrypt      bool
	remoteHangupRequested bool

	encodeState audio.EncoderState
	decodeState audio.DecoderState

	mic      *SampleRing
	speaker  *SampleRing
	outbound *ByteRing
	inbound  *ByteRing

	config  atomic.Pointer[Config]
	running atomic.Bool
}

// NewSession derives the long-term identity keypair from seed and returns a
// Session ready to start as either role. log receives role/state fields on
// every state transition.
func NewSession(seed []byte, log *logrus.Entry) (*Session, error) {
	sk, err := identity.New(seed)
	if err != nil {
		return nil, &ConfigError{Stage: StageConfig, Err: err}
	}
	pub, err := sk.Public()
	if err != nil {
		return nil, &ConfigError{Stage: StageConfig, Err: err}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Session{
		identityKey: sk,
		staticPub:   pub,
		log:         log,
		mic:         NewSampleRing(MicRingCapacitySamples),
		speaker:     NewSampleRing(SpeakerRingCapacitySamples),
		outbound:    NewByteRing(OutboundRingCapacityBytes),
		inbound:     NewByteRing(InboundRingCapacityBytes),
	}
	s.config.Store(&Config{Encrypt: true, Decrypt: true})
	return s, nil
}

// DerivePublicKey implements the Core API's stateless derive_public_key
// operation.
func DerivePublicKey(seed []byte) (identity.PublicKey, error) {
	sk, err := identity.New(seed)
	if err != nil {
		return identity.PublicKey{}, &ConfigError{Stage: StageConfig, Err: err}
	}
	return sk.Public()
}

// PublicKey returns this session's static public key.
func (s *Session) PublicKey() identity.PublicKey {
	return s.staticPub
}

// StartAsServer resets the session and begins a fresh handshake as the
// server role. A zero peerStatic means "accept any peer".
func (s *Session) StartAsServer(peerStatic identity.PublicKey) error {
	return s.start(RoleServer, peerStatic)
}

// StartAsClient is StartAsServer's client-role counterpart.
func (s *Session) StartAsClient(peerStatic identity.PublicKey) error {
	return s.start(RoleClient, peerStatic)
}

func (s *Session) start(role Role, peerStatic identity.PublicKey) error {
	ephPriv, err := identity.New(randomSeed())
	if err != nil {
		return &ConfigError{Stage: StageConfig, Err: err}
	}
	ephPub, err := ephPriv.Public()
	if err != nil {
		return &ConfigError{Stage: StageConfig, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.role = role
	s.expectedPeerStatic = peerStatic
	s.localEphemeralPriv = ephPriv
	s.localEphemeralPub = ephPub
	s.remoteEphemeral = identity.PublicKey{}
	s.remoteStatic = identity.PublicKey{}
	s.txKey, s.rxKey = [32]byte{}, [32]byte{}
	s.txNonceBase, s.rxNonceBase = [12]byte{}, [12]byte{}
	s.txCounter, s.rxCounter = 0, 0
	s.audioSeq = 0
	s.handshakeComplete = false
	s.handshakeAcknowledged = false
	s.peerAcceptsEncrypt = false
	s.peerSendsEncrypt = false
	s.remoteHangupRequested = false
	s.encodeState = audio.EncoderState{}
	s.decodeState = audio.DecoderState{}
	s.mic.Clear()
	s.speaker.Clear()
	s.outbound.Clear()
	s.inbound.Clear()

	now := time.Now()
	s.lastHandshakeAt = now.Add(-handshakeIntervalMin)
	s.lastKeepaliveAt = now
	s.state = StateHandshakeReady
	s.running.Store(true)

	s.log = s.log.WithFields(logrus.Fields{"role": role.String()})
	s.log.WithField("state", s.state.String()).Info("session started")
	return nil
}

// randomSeed is the ephemeral-key entropy source, isolated into its own
// function so tests can't accidentally depend on identity seeding being
// predictable.
func randomSeed() []byte {
	seed := make([]byte, identity.KeySize)
	if _, err := rand.Read(seed); err != nil {
		panic(err)
	}
	return seed
}

// Stop tears the session down: wipes ephemeral and derived key material,
// clears every ring, and returns the state machine to Idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateTerminating
	s.running.Store(false)

	s.localEphemeralPriv.Zero()
	zero32(&s.txKey)
	zero32(&s.rxKey)
	s.txNonceBase = [12]byte{}
	s.rxNonceBase = [12]byte{}

	s.mic.Clear()
	s.speaker.Clear()
	s.outbound.Clear()
	s.inbound.Clear()

	s.log.WithField("state", StateIdle.String()).Info("session stopped")
	s.state = StateIdle
}

// SetConfig atomically swaps the runtime configuration; it takes effect on
// the next outbound/inbound audio frame, per spec.md §5.
func (s *Session) SetConfig(cfg Config) {
	c := cfg
	s.config.Store(&c)
}

func (s *Session) currentConfig() Config {
	if c := s.config.Load(); c != nil {
		return *c
	}
	return Config{}
}

func (s *Session) localCapabilities() uint8 {
	cfg := s.currentConfig()
	var caps uint8
	if cfg.Encrypt {
		caps |= CapWillEncryptOutbound
	}
	if cfg.Decrypt {
		caps |= CapRequireEncryptedIn
	}
	return caps
}

// FeedMic pushes captured PCM samples onto the mic ring. Never blocks.
func (s *Session) FeedMic(pcm []int16) {
	s.mic.Push(pcm)
}

// PullSpeaker drains up to len(buf) decoded PCM samples into buf, returning
// the count delivered.
func (s *Session) PullSpeaker(buf []int16) int {
	return s.speaker.Pop(buf)
}

// SendHangup clears any pending outbound bytes, enqueues a single
// {control, 0xDD} frame, and moves the session to Terminating. It does not
// itself stop the session; the caller drains GenerateOutgoing and then
// calls Stop.
func (s *Session) SendHangup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbound.Clear()
	s.outbound.Push(EncodeFrame(FrameControl, encodeControl(ControlHangup)))
	s.state = StateTerminating
	s.log.WithField("state", s.state.String()).Info("hangup sent")
}

// ConsumeRemoteHangup reports and clears the remote-hangup flag, so a
// caller that polls it observes true exactly once per hangup.
func (s *Session) ConsumeRemoteHangup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.remoteHangupRequested
	s.remoteHangupRequested = false
	return v
}

// HandleTransportError reports a transport read/write failure, including
// io.EOF, to the session. Per spec.md §4.8/§7 this is treated identically to
// a remote hangup: both rings are drained, the remote-hangup flag is set so
// a polling host observes it the same way it would a 0xDD control frame, and
// the session moves to Terminating. Pipeline's tx/rx goroutines call this on
// any stream I/O error instead of exiting silently.
func (s *Session) HandleTransportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateTerminating {
		return
	}

	s.outbound.Clear()
	s.inbound.Clear()
	s.remoteHangupRequested = true
	s.state = StateTerminating
	s.log.WithError(&TransportError{Err: err}).Warn("transport error, session terminating")
}

// OutboundPending reports how many bytes are still queued for tx to write,
// used by Pipeline.Stop to bound its hangup-drain wait.
func (s *Session) OutboundPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound.Len()
}

// GenerateOutgoing advances the egress state machine (handshake cadence,
// keepalives, audio encode/encrypt) and copies up to len(buf) ready bytes
// into buf, returning the count copied.
func (s *Session) GenerateOutgoing(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateTerminating {
		return s.outbound.Pop(buf), nil
	}

	now := time.Now()

	if !s.handshakeAcknowledged && now.Sub(s.lastHandshakeAt) >= handshakeIntervalMin {
		p := newHandshakePayload(s.role, s.localCapabilities(), s.localEphemeralPub, s.staticPub)
		s.outbound.Push(EncodeFrame(FrameHandshake, p.Marshal()))
		s.lastHandshakeAt = now
	}

	if s.handshakeComplete && now.Sub(s.lastKeepaliveAt) >= keepaliveInterval {
		if err := s.sealAndQueue(encodeControl(ControlKeepalive)); err != nil {
			return 0, &CryptoError{Stage: StageCrypto, Err: err}
		}
		s.lastKeepaliveAt = now
	}

	if s.handshakeComplete && s.mic.Len() >= audio.SamplesPerFrame {
		samples := make([]int16, audio.SamplesPerFrame)
		s.mic.Pop(samples)

		preamble, data := audio.EncodeFrame(&s.encodeState, samples)
		pt := audio.Plaintext{
			Seq:         s.audioSeq,
			SampleCount: uint16(len(samples)),
			Preamble:    preamble,
			ADPCM:       data,
		}
		body := pt.Marshal()
		s.audioSeq++

		cfg := s.currentConfig()
		if cfg.Encrypt && s.peerAcceptsEncrypt {
			if err := s.sealAndQueue(body); err != nil {
				return 0, &CryptoError{Stage: StageCrypto, Err: err}
			}
		} else {
			s.outbound.Push(EncodeFrame(FramePlaintext, body))
		}
	}

	return s.outbound.Pop(buf), nil
}

// sealAndQueue encrypts plaintext under the session's tx key/counter and
// pushes the resulting cipher frame onto the outbound ring.
func (s *Session) sealAndQueue(plaintext []byte) error {
	ciphertext, err := sealFrame(s.txKey, s.txNonceBase, s.txCounter, plaintext)
	if err != nil {
		return err
	}
	s.txCounter++
	s.outbound.Push(EncodeFrame(FrameCipher, ciphertext))
	return nil
}

// HandleIncoming appends data to the inbound ring and dispatches every
// complete frame it now contains. A ProtocolError is logged and skipped; a
// CryptoError is fatal and moves the session to Terminating.
func (s *Session) HandleIncoming(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return nil
	}

	s.inbound.Push(data)

	var fatal error
	dispatchFrames(s.inbound, func(kind FrameKind, body []byte) {
		if fatal != nil {
			return
		}
		err := s.handleFrame(kind, body)
		if err == nil {
			return
		}
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			s.log.WithError(err).Warn("protocol error, frame skipped")
			return
		}
		fatal = err
	})

	if fatal != nil {
		s.log.WithError(fatal).Error("session-fatal error")
		s.state = StateTerminating
	}
	return fatal
}

func (s *Session) handleFrame(kind FrameKind, body []byte) error {
	switch kind {
	case FrameHandshake:
		return s.handleHandshakeFrame(body)
	case FrameCipher:
		return s.handleCipherFrame(body)
	case FramePlaintext:
		return s.decodeAudioPayload(body)
	case FrameControl:
		return s.handleControlFrame(body)
	default:
		return &ProtocolError{Stage: StageFrame, Err: errUnknownFrameKind}
	}
}

func (s *Session) handleHandshakeFrame(body []byte) error {
	var p HandshakePayload
	if err := p.Unmarshal(body); err != nil {
		return &ProtocolError{Stage: StageHandshake, Err: err}
	}
	if p.Version != HandshakeVersion {
		return &ProtocolError{Stage: StageHandshake, Err: errBadVersion}
	}
	if !p.fingerprintValid() {
		return &ProtocolError{Stage: StageHandshake, Err: errBadFingerprint}
	}
	if !s.expectedPeerStatic.IsZero() && !p.Static.Equal(s.expectedPeerStatic) {
		return &ProtocolError{Stage: StageHandshake, Err: errPeerStaticMismatch}
	}

	if s.state != StateHandshakeReady {
		// Already converged (or further along); a retransmitted
		// handshake from a peer that hasn't seen our AEAD frame yet
		// needs no response — re-deriving keys here would reset
		// tx_counter/rx_counter, which spec.md §3 forbids.
		return nil
	}

	s.remoteEphemeral = p.Ephemeral
	s.remoteStatic = p.Static
	s.peerSendsEncrypt = p.Capabilities&CapWillEncryptOutbound != 0
	s.peerAcceptsEncrypt = p.Capabilities&CapRequireEncryptedIn != 0

	ks, err := deriveKeys(s.role, s.localEphemeralPriv, s.identityKey, s.remoteEphemeral, s.remoteStatic)
	if err != nil {
		return &CryptoError{Stage: StageHandshake, Err: err}
	}
	s.txKey, s.rxKey = ks.txKey, ks.rxKey
	s.txNonceBase, s.rxNonceBase = ks.txNonceBase, ks.rxNonceBase
	s.txCounter, s.rxCounter = 0, 0
	s.handshakeComplete = true
	s.state = StateKeysDerived
	// Force an immediate keepalive: handshake_acknowledged only becomes
	// true via a successful AEAD decrypt, so the peer needs one as soon
	// as possible rather than waiting out a full keepalive interval
	// (spec.md §9, "Handshake ack via first successful decrypt").
	s.lastKeepaliveAt = time.Time{}

	resp := newHandshakePayload(s.role, s.localCapabilities(), s.localEphemeralPub, s.staticPub)
	s.outbound.Push(EncodeFrame(FrameHandshake, resp.Marshal()))

	s.log.WithField("state", s.state.String()).Info("handshake keys derived")
	return nil
}

func (s *Session) handleCipherFrame(body []byte) error {
	if len(body) < 16 {
		return &ProtocolError{Stage: StageFrame, Err: errCipherTooShort}
	}
	counter := s.rxCounter
	s.rxCounter++

	plaintext, err := openFrame(s.rxKey, s.rxNonceBase, counter, body)
	if err != nil {
		return &CryptoError{Stage: StageCrypto, Err: err}
	}

	if !s.handshakeAcknowledged {
		s.handshakeAcknowledged = true
		s.state = StateActive
		s.log.WithField("state", s.state.String()).Info("handshake acknowledged")
	}

	return s.decodeAudioPayload(plaintext)
}

func (s *Session) decodeAudioPayload(body []byte) error {
	typ, ok := audio.Type(body)
	if !ok || typ != audio.PlaintextType {
		return nil
	}
	pt, err := audio.Unmarshal(body)
	if err != nil {
		return &ProtocolError{Stage: StageFrame, Err: err}
	}
	samples := audio.DecodeFrame(&s.decodeState, pt.Preamble, pt.ADPCM, int(pt.SampleCount))
	s.speaker.Push(samples)
	return nil
}

func (s *Session) handleControlFrame(body []byte) error {
	if len(body) < 1 {
		return &ProtocolError{Stage: StageFrame, Err: errControlEmpty}
	}
	if body[0] == ControlHangup {
		s.remoteHangupRequested = true
		s.log.Info("remote hangup received")
	}
	return nil
}

// State reports the session's current state under the session mutex.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the session has been started and not yet Stopped.
func (s *Session) Running() bool {
	return s.running.Load()
}
