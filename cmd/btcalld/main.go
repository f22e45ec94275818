// Command btcalld is a minimal host binary demonstrating how to wire a
// session.Session to a real byte stream and a JSON identity/peer config. It
// is illustrative, not a production Bluetooth host: device discovery and
// platform audio capture/playback remain external collaborators per
// spec.md §1.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Icing-Project/BT-Call-sub000/fsk"
	"github.com/Icing-Project/BT-Call-sub000/identity"
	"github.com/Icing-Project/BT-Call-sub000/session"
)

// Config is the on-disk shape of a btcalld identity/peer directory, encoded
// the way the teacher's manager.Config encodes WireGuard keys: base64
// strings over the wire, decoded into fixed-size keys at load time.
type Config struct {
	IdentitySeedB64 string         `json:"identity_seed"`
	Role            string         `json:"role"` // "server" or "client"
	DialAddr        string         `json:"dial_addr"`
	ListenAddr      string         `json:"listen_addr"`
	Peer            *PeerRecord    `json:"peer,omitempty"`
	RuntimeConfig   session.Config `json:"runtime"`
}

// PeerRecord names the single peer this demo host expects to talk to.
type PeerRecord struct {
	StaticPubB64 string `json:"static_pub"`
}

// LoadConfig reads and decodes a btcalld config file, matching the
// teacher's manager.LoadConfig pattern (read file, json.Unmarshal, return a
// pointer) minus the on-disk default-bootstrap behavior this demo doesn't
// need.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("btcalld: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("btcalld: parse config: %w", err)
	}
	return &cfg, nil
}

func decodeSeed(b64 string) ([]byte, error) {
	seed, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("btcalld: decode identity seed: %w", err)
	}
	return seed, nil
}

func decodePeerStatic(rec *PeerRecord) (identity.PublicKey, error) {
	var pub identity.PublicKey
	if rec == nil {
		return pub, nil // all-zero: accept any peer
	}
	raw, err := base64.StdEncoding.DecodeString(rec.StaticPubB64)
	if err != nil {
		return pub, fmt.Errorf("btcalld: decode peer static key: %w", err)
	}
	if len(raw) != identity.KeySize {
		return pub, fmt.Errorf("btcalld: peer static key must be %d bytes", identity.KeySize)
	}
	copy(pub[:], raw)
	return pub, nil
}

func run(cfg *Config) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	seed, err := decodeSeed(cfg.IdentitySeedB64)
	if err != nil {
		return err
	}
	peerStatic, err := decodePeerStatic(cfg.Peer)
	if err != nil {
		return err
	}

	s, err := session.NewSession(seed, log)
	if err != nil {
		return fmt.Errorf("btcalld: new session: %w", err)
	}
	s.SetConfig(cfg.RuntimeConfig)

	var conn net.Conn
	switch cfg.Role {
	case "server":
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("btcalld: listen: %w", err)
		}
		defer ln.Close()
		log.WithField("addr", cfg.ListenAddr).Info("waiting for peer")
		conn, err = ln.Accept()
		if err != nil {
			return fmt.Errorf("btcalld: accept: %w", err)
		}
		if err := s.StartAsServer(peerStatic); err != nil {
			return err
		}
	case "client":
		conn, err = net.Dial("tcp", cfg.DialAddr)
		if err != nil {
			return fmt.Errorf("btcalld: dial: %w", err)
		}
		if err := s.StartAsClient(peerStatic); err != nil {
			return err
		}
	default:
		return fmt.Errorf("btcalld: unknown role %q", cfg.Role)
	}
	defer conn.Close()
	defer s.Stop()

	// When the link can only carry audio (cfg.RuntimeConfig.FSKEnabled),
	// wrap conn in the reference 4-FSK modem so the framed byte stream
	// rides PCM16LE tones instead of raw bytes; see spec.md §1/§4.7.
	var stream io.ReadWriter = conn
	if cfg.RuntimeConfig.FSKEnabled {
		stream = fsk.NewTransport(conn)
		log.Info("fsk modem enabled for this call")
	}

	pipeline := session.NewPipeline(s, silentMic{}, silentSpeaker{}, stream)
	pipeline.Start()
	defer pipeline.Stop()

	lastState := s.State()
	for s.State() != session.StateTerminating {
		if cur := s.State(); cur != lastState {
			log.WithField("state", cur.String()).Info("state changed")
			lastState = cur
		}
		if s.ConsumeRemoteHangup() {
			log.Info("remote hangup observed")
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// silentMic and silentSpeaker stand in for the platform audio collaborators
// this demo doesn't implement; a real host supplies its own MicSource and
// SpeakerSink.
type silentMic struct{}

func (silentMic) ReadPCM(buf []int16) (int, error) {
	time.Sleep(20 * time.Millisecond)
	return len(buf), nil
}

type silentSpeaker struct{}

func (silentSpeaker) WritePCM(buf []int16) error { return nil }

func main() {
	configPath := flag.String("config", "btcalld.json", "path to the identity/peer config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("btcalld: failed to load config")
	}
	if err := run(cfg); err != nil {
		logrus.WithError(err).Fatal("btcalld: fatal error")
	}
}
