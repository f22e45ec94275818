package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Icing-Project/BT-Call-sub000/audio"
)

// pollInterval is the sleep between empty polls on the mic/speaker sides,
// within spec.md §5's 4-10 ms suspension-point guidance.
const pollInterval = 5 * time.Millisecond

// hangupDrainTimeout bounds how long Stop waits for a queued 0xDD control
// frame (or any other still-outbound bytes) to reach the wire before tx/rx
// are torn down, per spec.md §5's "bounded hangup-drain wait (~200 ms)".
const hangupDrainTimeout = 200 * time.Millisecond

// Pipeline drives a *Session across the four goroutines spec.md §5
// describes: mic-capture, tx, rx, speaker-playback. It never touches the
// session mutex itself — every interaction goes through Session's exported,
// independently-locked methods, mirroring the teacher's separation between
// a Peer (owns state) and its Routine* goroutines (drive state through
// exported methods).
type Pipeline struct {
	session *Session
	mic     audio.MicSource
	speaker audio.SpeakerSink
	stream  io.ReadWriter

	wg      sync.WaitGroup
	done    chan struct{}
	running atomic.Bool
}

// NewPipeline wires a Session to its platform audio collaborators and byte
// stream transport.
func NewPipeline(s *Session, mic audio.MicSource, speaker audio.SpeakerSink, stream io.ReadWriter) *Pipeline {
	return &Pipeline{
		session: s,
		mic:     mic,
		speaker: speaker,
		stream:  stream,
	}
}

// Start spawns the four goroutines. The Session must already have been
// started via StartAsServer/StartAsClient.
func (p *Pipeline) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.done = make(chan struct{})

	p.wg.Add(4)
	go p.runMicCapture()
	go p.runTx()
	go p.runRx()
	go p.runSpeakerPlayback()
}

// Stop signals all four goroutines to exit and waits for them to finish.
// Before doing so it allows up to hangupDrainTimeout for the outbound ring
// to empty, so a 0xDD control frame queued by SendHangup reaches the wire
// instead of being dropped when tx is cut off mid-write. It does not itself
// call Session.Stop; callers decide when to tear down session state versus
// just pausing the pipeline.
func (p *Pipeline) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	deadline := time.Now().Add(hangupDrainTimeout)
	for p.session.OutboundPending() > 0 && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
	close(p.done)
	p.wg.Wait()
}

func (p *Pipeline) runMicCapture() {
	defer p.wg.Done()
	buf := make([]int16, audio.SamplesPerFrame)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		n, err := p.mic.ReadPCM(buf)
		if err != nil {
			return
		}
		if n > 0 {
			p.session.FeedMic(buf[:n])
		}
	}
}

func (p *Pipeline) runTx() {
	defer p.wg.Done()
	buf := make([]byte, MaxFrameBody*2)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		n, err := p.session.GenerateOutgoing(buf)
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(pollInterval)
			continue
		}
		if _, err := p.stream.Write(buf[:n]); err != nil {
			p.session.HandleTransportError(err)
			return
		}
	}
}

func (p *Pipeline) runRx() {
	defer p.wg.Done()
	buf := make([]byte, MaxFrameBody*2)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		n, err := p.stream.Read(buf)
		if err != nil {
			p.session.HandleTransportError(err)
			return
		}
		if n == 0 {
			continue
		}
		if err := p.session.HandleIncoming(buf[:n]); err != nil {
			return
		}
	}
}

func (p *Pipeline) runSpeakerPlayback() {
	defer p.wg.Done()
	buf := make([]int16, audio.SamplesPerFrame)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		n := p.session.PullSpeaker(buf)
		if n == 0 {
			time.Sleep(pollInterval)
			continue
		}
		if err := p.speaker.WritePCM(buf[:n]); err != nil {
			return
		}
	}
}
