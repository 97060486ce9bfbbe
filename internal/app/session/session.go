// Package session is the negotiation and recovery engine of one two-party call. A Session
// owns the transport session, the media lines and the candidate buffer, and mutates them
// only from its event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDebounce   = 800 * time.Millisecond
	DefaultRetryDelay = time.Second

	eventBuffer = 256
)

var (
	ErrClosed = errors.New("session closed")
	ErrFatal  = errors.New("fatal rendezvous error")
)

type Options struct {
	Room domain.RoomID
	// Create marks the room creator, which takes the Initiator role.
	Create bool
	// Quality is announced on join by the creator.
	Quality    domain.Quality
	Debounce   time.Duration
	RetryDelay time.Duration
}

// Snapshot is a consistent read of the loop-owned state.
type Snapshot struct {
	Negotiation  NegotiationState
	Connection   domain.ConnectionState
	Topology     []domain.MediaKind
	Verification string
	PeerPresent  bool
	ChannelOpen  bool
	Facts        domain.SessionFacts
}

type Session struct {
	room domain.RoomID
	role domain.Role
	// quality is announced by the creator on every join and never changes after New.
	quality *domain.Quality

	signal   core.Signaler
	factory  core.PeerConnectionFactory
	observer core.Observer
	log      zerolog.Logger

	events chan event
	done   chan struct{}

	// Everything below belongs to the loop goroutine.
	state        NegotiationState
	pc           core.PeerConnection
	epoch        uint64
	generation   uint64
	lines        *LineRegistry
	candidates   *CandidateBuffer
	sched        *scheduler
	pending      bool
	channelOpen  bool
	peerPresent  bool
	facts        domain.SessionFacts
	roomQuality  *domain.Quality
	conn         domain.ConnectionState
	verification string
	finished     bool
	err          error
}

func New(opts Options, signal core.Signaler, factory core.PeerConnectionFactory, observer core.Observer) (*Session, error) {
	room, err := domain.ParseRoomID(string(opts.Room))
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	role := domain.RoleFor(opts.Create)
	s := &Session{
		room:     room,
		role:     role,
		signal:   signal,
		factory:  factory,
		observer: observer,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		lines:    NewLineRegistry(),
		conn:     domain.StateWaitingPeer,
		log: log.With().
			Str("module", "session").
			Str("room", string(room)).
			Str("role", role.String()).
			Logger(),
	}
	if opts.Create {
		q := opts.Quality
		if err := q.Validate(); err != nil {
			return nil, err
		}
		s.quality = &q
	}

	s.candidates = NewCandidateBuffer(s.addCandidate, s.log)

	// The polite side waits one extra window so that an offer from the other side, which
	// also covers its own change, usually lands first.
	window := opts.Debounce
	if role.Polite() {
		window *= 2
	}
	s.sched = newScheduler(window, opts.RetryDelay,
		func() { s.post(renegotiateEvent{}) },
		func() { s.post(retryEvent{}) },
	)
	return s, nil
}

func (s *Session) Room() domain.RoomID { return s.room }
func (s *Session) Role() domain.Role   { return s.role }

// Run drives the session until Leave, a remote hangup, a fatal server error or ctx
// cancellation. A fatal server error is returned wrapped in ErrFatal.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	if err := s.openPeerConnection(); err != nil {
		s.finish(err)
		return fmt.Errorf("open peer connection: %w", err)
	}
	s.log.Info().Msg("session started")

	for {
		select {
		case <-ctx.Done():
			s.finish(nil)
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
			if s.finished {
				return s.err
			}
		}
	}
}

func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) dispatch(ev event) {
	switch e := ev.(type) {
	case inboundEvent:
		s.onMessage(e.msg)
	case channelOpenEvent:
		s.onChannelOpen()
	case channelCloseEvent:
		s.onChannelClose(e.err)
	case localTrackEvent:
		s.onLocalTrack(e.kind, e.track)
	case factsEvent:
		s.onLocalFacts(e.facts)
	case renegotiateEvent:
		s.negotiate("scheduled")
	case retryEvent:
		s.negotiate("retry")
	case offerCreatedEvent:
		s.onOfferCreated(e)
	case pcCandidateEvent:
		if e.epoch == s.epoch && s.state != Recovering {
			s.send(core.CandidateMessage(e.candidate))
		}
	case pcTrackEvent:
		if e.epoch == s.epoch {
			s.onRemoteTrack(e.line, e.track)
		}
	case pcStateEvent:
		if e.epoch == s.epoch {
			s.onPeerState(e.state)
		}
	case pcNegotiationNeededEvent:
		if e.epoch == s.epoch {
			s.sched.Trigger()
		}
	case leaveEvent:
		s.send(core.Message{Type: core.TypeLeave})
		s.finish(nil)
	case queryEvent:
		e.fn()
		close(e.done)
	}
}

// AttachLocalTrack puts track on the line of kind, replacing what was there. The track
// is kept and re-attached after recovery.
func (s *Session) AttachLocalTrack(kind domain.MediaKind, track webrtc.TrackLocal) error {
	if !kind.Valid() {
		return fmt.Errorf("attach: unknown media kind %d", kind)
	}
	if !s.post(localTrackEvent{kind: kind, track: track}) {
		return ErrClosed
	}
	return nil
}

// DetachLocalTrack empties the line of kind. The line itself stays.
func (s *Session) DetachLocalTrack(kind domain.MediaKind) error {
	return s.AttachLocalTrack(kind, nil)
}

func (s *Session) SetFacts(f domain.SessionFacts) error {
	if !s.post(factsEvent{facts: f}) {
		return ErrClosed
	}
	return nil
}

// Leave tells the peer and ends Run.
func (s *Session) Leave() {
	s.post(leaveEvent{})
}

// Snapshot reads the session state through the loop.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.query(func() {
		snap = Snapshot{
			Negotiation:  s.state,
			Connection:   s.conn,
			Topology:     s.lines.Topology(),
			Verification: s.verification,
			PeerPresent:  s.peerPresent,
			ChannelOpen:  s.channelOpen,
			Facts:        s.facts,
		}
	})
	return snap, err
}

func (s *Session) query(fn func()) error {
	done := make(chan struct{})
	if !s.post(queryEvent{fn: fn, done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Hello, OnOpen, OnClose and OnMessage make the session the handler of its rendezvous
// channel.

func (s *Session) Hello() core.Message {
	return core.JoinMessage(s.room, s.quality)
}

func (s *Session) OnOpen() { s.post(channelOpenEvent{}) }

func (s *Session) OnClose(err error) { s.post(channelCloseEvent{err: err}) }

func (s *Session) OnMessage(msg core.Message) { s.post(inboundEvent{msg: msg}) }

func (s *Session) send(m core.Message) {
	m.Room = s.room
	s.signal.Send(m)
}

func (s *Session) setConn(state domain.ConnectionState) {
	if s.conn == state {
		return
	}
	s.conn = state
	s.observer.OnConnectionState(state)
}

func (s *Session) onMessage(msg core.Message) {
	switch msg.Type {
	case core.TypeJoined:
		s.log.Info().Msg("joined room")
	case core.TypeReady:
		s.onReady(msg.Quality)
	case core.TypePeerReplaced:
		s.onPeerReplaced()
	case core.TypeOffer:
		if msg.Offer == nil {
			s.log.Warn().Msg("offer without description")
			return
		}
		s.onRemoteOffer(*msg.Offer)
	case core.TypeAnswer:
		if msg.Answer == nil {
			s.log.Warn().Msg("answer without description")
			return
		}
		s.onRemoteAnswer(*msg.Answer)
	case core.TypeCandidate:
		if msg.Candidate == nil || s.state == Recovering {
			return
		}
		s.candidates.Offer(*msg.Candidate)
	case core.TypeState:
		s.observer.OnSessionFacts(msg.Facts())
	case core.TypeLeave, core.TypeHangup:
		s.log.Info().Str("type", string(msg.Type)).Msg("peer ended the call")
		s.finish(nil)
	case core.TypeError:
		if !msg.Fatal {
			s.log.Warn().Str("reason", msg.Message).Msg("rendezvous error")
			return
		}
		s.fail(msg.Message)
	default:
		s.log.Warn().Str("type", string(msg.Type)).Msg("unknown message")
	}
}

func (s *Session) onReady(q *domain.Quality) {
	if q != nil {
		cp := *q
		s.roomQuality = &cp
	}
	s.peerPresent = true
	s.setConn(domain.StateConnecting)
	s.resendFacts()

	if s.role != domain.Initiator || s.state == Recovering {
		return
	}
	if s.state == MakingOffer {
		s.log.Info().Msg("peer arrived with an unanswered offer outstanding, starting over")
		s.abandonOffer()
	}
	s.sched.Trigger()
}

func (s *Session) onChannelOpen() {
	s.channelOpen = true
	if s.state == Recovering {
		s.completeRecovery()
	}
}

func (s *Session) onChannelClose(err error) {
	s.channelOpen = false
	s.peerPresent = false
	s.log.Warn().Err(err).Msg("rendezvous channel lost")
	s.enterRecovery("channel lost")
}

func (s *Session) onLocalTrack(kind domain.MediaKind, track webrtc.TrackLocal) {
	if !s.lines.SetLocal(kind, track) {
		return
	}
	if s.pc != nil && s.state != Recovering {
		if err := s.lines.Apply(s.pc, kind); err != nil {
			s.log.Error().Err(err).Str("kind", kind.String()).Msg("apply local track")
		}
	}
	s.sched.Trigger()
}

func (s *Session) onRemoteTrack(line int, track core.RemoteTrack) {
	kind, ok := s.lines.SetRemote(line, track)
	if !ok {
		s.log.Warn().Int("line", line).Msg("track on unknown line")
		return
	}
	s.log.Info().Str("kind", kind.String()).Int("line", line).Msg("remote track")
	s.observer.OnRemoteTrack(kind, track)
}

func (s *Session) onPeerState(state webrtc.PeerConnectionState) {
	s.log.Debug().Str("state", state.String()).Msg("peer connection state")
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		s.setConn(domain.StateConnecting)
	case webrtc.PeerConnectionStateConnected:
		s.setConn(domain.StateConnected)
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		s.setConn(domain.StateDisconnected)
	}
}

func (s *Session) addCandidate(c webrtc.ICECandidateInit) error {
	if s.pc == nil {
		return errors.New("no transport session")
	}
	return s.pc.AddICECandidate(c)
}

// openPeerConnection builds a transport session under a new epoch. The creator lays out
// the lines right away; the joiner discovers them from the first offer.
func (s *Session) openPeerConnection() error {
	s.epoch++
	epoch := s.epoch
	pc, err := s.factory.NewPeerConnection(core.PeerEvents{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.post(pcCandidateEvent{epoch: epoch, candidate: c})
		},
		OnTrack: func(line int, track core.RemoteTrack) {
			s.post(pcTrackEvent{epoch: epoch, line: line, track: track})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			s.post(pcStateEvent{epoch: epoch, state: state})
		},
		OnNegotiationNeeded: func() {
			s.post(pcNegotiationNeededEvent{epoch: epoch})
		},
	})
	if err != nil {
		return err
	}
	s.pc = pc
	s.candidates.Reset()
	s.verification = ""

	if s.role != domain.Initiator {
		return nil
	}
	if err := s.lines.Install(pc); err != nil {
		return err
	}
	if err := s.lines.ApplyAll(pc); err != nil {
		s.log.Error().Err(err).Msg("reattach local tracks")
	}
	return nil
}

func (s *Session) closePeerConnection() {
	if s.pc == nil {
		return
	}
	if err := s.pc.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close peer connection")
	}
	s.pc = nil
	s.lines.Unbind()
}

func (s *Session) fail(reason string) {
	s.log.Error().Str("reason", reason).Msg("fatal error")
	s.observer.OnFatalError(reason)
	s.finish(fmt.Errorf("%w: %s", ErrFatal, reason))
}

func (s *Session) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.sched.Cancel()
	s.closePeerConnection()
	s.setConn(domain.StateClosed)
	s.log.Info().Err(err).Msg("session finished")
}
