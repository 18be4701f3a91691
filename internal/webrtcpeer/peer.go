package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
	"github.com/yashikakaushik06/whiteboard-app/internal/signaling"
)

var (
	// ErrUnexpectedEnvelope is returned for envelopes that do not fit the
	// current state, e.g. an answer while idle. They are otherwise ignored.
	ErrUnexpectedEnvelope = errors.New("webrtcpeer: unexpected envelope")
	// ErrInvalidState is returned by Call when negotiation already started.
	ErrInvalidState = errors.New("webrtcpeer: invalid state")
)

// Signaler transmits envelopes to the other peer. signaling.Client
// implements it.
type Signaler interface {
	Send(signaling.Envelope) error
}

type Config struct {
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Signaler   Signaler
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// LocalTracks are added before negotiation.
	LocalTracks []webrtc.TrackLocal
	// OnTrack receives remote media tracks.
	OnTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	// OnDrawChannel is called once with the draw channel, whether this peer
	// created it or received it. It must not call back into the Peer
	// synchronously.
	OnDrawChannel func(*webrtc.DataChannel)
	// OnConnected is called each time the PeerConnection reaches the
	// connected state.
	OnConnected func()
}

type Peer struct {
	cfg Config
	log *slog.Logger
	pc  *webrtc.PeerConnection

	// mu serializes Call, HandleEnvelope and the pion callbacks that touch
	// negotiation state.
	mu    sync.Mutex
	state State
	err   error
	// descriptionSent is set once the local description envelope went out;
	// until then local candidates wait in candBuf.
	descriptionSent bool
	candBuf         []webrtc.ICECandidateInit
	remoteCands     []webrtc.ICECandidateInit
	draw            *webrtc.DataChannel

	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*Peer, error) {
	if cfg.Signaler == nil {
		return nil, errors.New("webrtcpeer: signaler is required")
	}
	if cfg.API == nil {
		api, err := NewAPI(APIOptions{})
		if err != nil {
			return nil, err
		}
		cfg.API = api
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	pc, err := cfg.API.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	p := &Peer{
		cfg:  cfg,
		log:  log,
		pc:   pc,
		done: make(chan struct{}),
	}

	for _, track := range cfg.LocalTracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		go drainRTCP(sender)
	}

	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnDataChannel(p.onRemoteDataChannel)
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.log.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType, "ssrc", uint32(track.SSRC()))
		if cfg.OnTrack != nil {
			cfg.OnTrack(track, receiver)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Info("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if cfg.OnConnected != nil {
				cfg.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.markDone()
		}
	})

	return p, nil
}

// drainRTCP keeps interceptors (NACK, reports) running for a sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) PeerConnection() *webrtc.PeerConnection { return p.pc }

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the negotiation failure that stalled this peer, if any.
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the PeerConnection fails or closes.
func (p *Peer) Done() <-chan struct{} { return p.done }

// DrawChannel returns the draw channel once one exists.
func (p *Peer) DrawChannel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draw
}

// Call starts negotiation as the caller: open the draw channel, set the
// local offer, then transmit it.
func (p *Peer) Call(ctx context.Context) error {
	p.mu.Lock()
	dc, err := p.callLocked(ctx)
	p.mu.Unlock()

	if dc != nil && p.cfg.OnDrawChannel != nil {
		p.cfg.OnDrawChannel(dc)
	}
	return err
}

func (p *Peer) callLocked(ctx context.Context) (*webrtc.DataChannel, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.state != StateIdle {
		return nil, fmt.Errorf("%w: call in state %s", ErrInvalidState, p.state)
	}

	dc, err := p.pc.CreateDataChannel(DataChannelLabelDraw, drawDataChannelInit())
	if err != nil {
		return nil, p.failLocked("create draw channel", err)
	}
	p.draw = dc

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return dc, p.failLocked("create offer", err)
	}
	if err := ctx.Err(); err != nil {
		return dc, p.failLocked("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return dc, p.failLocked("set local description", err)
	}
	p.transitionLocked(StateOfferCreated)

	if err := p.cfg.Signaler.Send(signaling.OfferEnvelope(offer)); err != nil {
		return dc, p.failLocked("send offer", err)
	}
	p.transitionLocked(StateAwaitingAnswer)
	p.flushLocalCandidatesLocked()
	return dc, nil
}

// HandleEnvelope applies an envelope relayed from the other peer. Failures
// are logged and returned; the caller does not need to act on them.
func (p *Peer) HandleEnvelope(env signaling.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	switch env.Kind() {
	case signaling.KindOffer:
		if p.state != StateIdle {
			return p.unexpectedLocked(env)
		}
		return p.answerLocked(*env.Offer)
	case signaling.KindAnswer:
		if !p.state.awaitingAnswer() {
			return p.unexpectedLocked(env)
		}
		desc, err := env.Answer.ToPion()
		if err != nil {
			return p.failLocked("decode answer", err)
		}
		if err := p.pc.SetRemoteDescription(desc); err != nil {
			return p.failLocked("set remote description", err)
		}
		p.transitionLocked(StateConnected)
		p.applyQueuedCandidatesLocked()
		return nil
	case signaling.KindICE:
		init := env.ICE.ToPion()
		if !p.state.hasRemoteDescription() {
			p.remoteCands = append(p.remoteCands, init)
			p.cfg.Metrics.Inc(metrics.PeerCandidatesQueued)
			p.log.Debug("queued remote candidate until remote description is set", "queued", len(p.remoteCands))
			return nil
		}
		return p.addRemoteCandidateLocked(init)
	default:
		p.log.Warn("ignoring malformed envelope")
		return fmt.Errorf("%w: kind %s", signaling.ErrInvalidEnvelope, env.Kind())
	}
}

func (p *Peer) answerLocked(offerWire signaling.SessionDescription) error {
	offer, err := offerWire.ToPion()
	if err != nil {
		return p.failLocked("decode offer", err)
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return p.failLocked("set remote description", err)
	}
	p.transitionLocked(StateRemoteDescriptionSet)
	p.applyQueuedCandidatesLocked()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return p.failLocked("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return p.failLocked("set local description", err)
	}
	if err := p.cfg.Signaler.Send(signaling.AnswerEnvelope(answer)); err != nil {
		return p.failLocked("send answer", err)
	}
	p.transitionLocked(StateAnswering)
	p.flushLocalCandidatesLocked()
	return nil
}

func (p *Peer) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		// End of gathering; browsers do not need an explicit marker.
		return
	}
	init := c.ToJSON()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.descriptionSent {
		p.candBuf = append(p.candBuf, init)
		return
	}
	p.sendCandidateLocked(init)
}

func (p *Peer) flushLocalCandidatesLocked() {
	p.descriptionSent = true
	buf := p.candBuf
	p.candBuf = nil
	for _, init := range buf {
		p.sendCandidateLocked(init)
	}
}

func (p *Peer) sendCandidateLocked(init webrtc.ICECandidateInit) {
	if err := p.cfg.Signaler.Send(signaling.ICEEnvelope(init)); err != nil {
		p.log.Warn("failed to send local candidate", "err", err)
	}
}

func (p *Peer) applyQueuedCandidatesLocked() {
	queued := p.remoteCands
	p.remoteCands = nil
	for _, init := range queued {
		_ = p.addRemoteCandidateLocked(init)
	}
}

// addRemoteCandidateLocked logs bad candidates without stalling: one bad
// route does not break negotiation.
func (p *Peer) addRemoteCandidateLocked(init webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(init); err != nil {
		p.log.Warn("failed to add remote candidate", "candidate", init.Candidate, "err", err)
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *Peer) onRemoteDataChannel(dc *webrtc.DataChannel) {
	if err := validateDrawDataChannel(dc); err != nil {
		p.log.Warn("rejecting datachannel",
			"label", dc.Label(),
			"ordered", dc.Ordered(),
			"err", err,
		)
		_ = dc.Close()
		return
	}

	p.mu.Lock()
	if p.draw != nil {
		p.mu.Unlock()
		p.log.Warn("rejecting second draw datachannel")
		_ = dc.Close()
		return
	}
	p.draw = dc
	p.mu.Unlock()

	if p.cfg.OnDrawChannel != nil {
		p.cfg.OnDrawChannel(dc)
	}
}

func (p *Peer) unexpectedLocked(env signaling.Envelope) error {
	p.cfg.Metrics.Inc(metrics.PeerUnexpectedEnvelopes)
	p.log.Warn("ignoring envelope out of place", "kind", env.Kind().String(), "state", p.state.String())
	return fmt.Errorf("%w: %s in state %s", ErrUnexpectedEnvelope, env.Kind(), p.state)
}

// failLocked stalls negotiation. There is no retry; the user reconnects.
func (p *Peer) failLocked(step string, err error) error {
	p.err = fmt.Errorf("%s: %w", step, err)
	p.cfg.Metrics.Inc(metrics.PeerNegotiationErrors)
	p.log.Error("negotiation failed", "step", step, "state", p.state.String(), "err", err)
	return p.err
}

func (p *Peer) transitionLocked(to State) {
	if !canTransition(p.state, to) {
		// Only reachable through a bug in this package.
		panic(fmt.Sprintf("webrtcpeer: invalid transition %s -> %s", p.state, to))
	}
	p.log.Debug("negotiation state", "from", p.state.String(), "to", to.String())
	p.state = to
}

func (p *Peer) markDone() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Close() error {
	err := p.pc.Close()
	p.markDone()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
