package session

import (
	"strings"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/dkeye/o2o/internal/sdpx"
	"github.com/pion/webrtc/v4"
)

type NegotiationState int

const (
	Stable NegotiationState = iota
	MakingOffer
	HaveRemoteOffer
	Recovering
)

func (s NegotiationState) String() string {
	switch s {
	case Stable:
		return "stable"
	case MakingOffer:
		return "making-offer"
	case HaveRemoteOffer:
		return "have-remote-offer"
	case Recovering:
		return "recovering"
	}
	return "unknown"
}

// negotiate starts an offer round when nothing stands in the way. A request that cannot
// run yet is remembered and replayed when the blocking round settles.
func (s *Session) negotiate(reason string) {
	switch {
	case s.finished:
		return
	case s.state != Stable:
		s.pending = true
	case !s.channelOpen:
		s.log.Debug().Str("reason", reason).Msg("channel down, retry armed")
		s.sched.ArmRetry()
	case !s.peerPresent, !s.lines.Bound():
		s.pending = true
	default:
		s.beginOffer(reason)
	}
}

// beginOffer creates the offer off-loop. The result is matched against the generation and
// epoch captured here; anything else that happened meanwhile makes it stale.
func (s *Session) beginOffer(reason string) {
	s.generation++
	s.pending = false
	s.state = MakingOffer
	s.candidates.Hold()

	gen, epoch, pc := s.generation, s.epoch, s.pc
	s.log.Debug().Str("reason", reason).Uint64("generation", gen).Msg("creating offer")
	go func() {
		desc, err := pc.CreateOffer()
		s.post(offerCreatedEvent{generation: gen, epoch: epoch, desc: desc, err: err})
	}()
}

func (s *Session) onOfferCreated(e offerCreatedEvent) {
	if e.generation != s.generation || e.epoch != s.epoch || s.state != MakingOffer {
		s.log.Debug().Uint64("generation", e.generation).Msg("stale offer discarded")
		return
	}
	if e.err != nil {
		s.log.Error().Err(e.err).Msg("create offer")
		s.settle()
		return
	}
	desc := e.desc
	desc.SDP = s.preferCodec(desc.SDP)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		s.log.Error().Err(err).Msg("set local offer")
		s.settle()
		return
	}
	s.send(core.OfferMessage(desc))
}

// abandonOffer rolls an outstanding local offer back and keeps it from ever leaving.
func (s *Session) abandonOffer() {
	s.generation++
	s.signal.Discard(core.TypeOffer)
	if s.pc != nil && s.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if err := s.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			s.log.Error().Err(err).Msg("rollback")
		}
	}
	s.state = Stable
}

func (s *Session) onRemoteOffer(desc webrtc.SessionDescription) {
	if s.state == Recovering || s.pc == nil {
		s.log.Debug().Msg("offer while recovering ignored")
		return
	}
	collision := s.state == MakingOffer || s.pc.SignalingState() != webrtc.SignalingStateStable
	if collision {
		if !s.role.Polite() {
			s.log.Info().Msg("offer collision, ignoring remote offer")
			return
		}
		s.log.Info().Msg("offer collision, rolling back local offer")
		s.abandonOffer()
	}

	s.state = HaveRemoteOffer
	s.candidates.Hold()
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.log.Error().Err(err).Msg("set remote offer")
		s.settle()
		return
	}

	if !s.lines.Bound() {
		if err := s.lines.Bind(s.pc.LineKinds()); err != nil {
			s.fail(err.Error())
			return
		}
		if err := s.lines.ApplyAll(s.pc); err != nil {
			s.log.Error().Err(err).Msg("attach local tracks")
		}
	}
	s.candidates.Flush()

	if st := s.pc.SignalingState(); st != webrtc.SignalingStateHaveRemoteOffer {
		s.log.Error().Str("signaling", st.String()).Msg("not answering, unexpected signaling state")
		s.settle()
		return
	}
	answer, err := s.pc.CreateAnswer()
	if err != nil {
		s.log.Error().Err(err).Msg("create answer")
		s.settle()
		return
	}
	answer.SDP = s.preferCodec(answer.SDP)
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.log.Error().Err(err).Msg("set local answer")
		s.settle()
		return
	}
	s.send(core.AnswerMessage(answer))

	// Every line is offered send/receive, so the answer already carries local changes
	// made before it.
	s.pending = false
	s.sched.Cancel()
	s.settle()
}

func (s *Session) onRemoteAnswer(desc webrtc.SessionDescription) {
	if s.state == Recovering || s.pc == nil {
		return
	}
	if s.state != MakingOffer || s.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		if s.role == domain.Initiator {
			s.recover("stale answer")
			return
		}
		s.log.Warn().Str("state", s.state.String()).Msg("stale answer ignored")
		return
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		if s.role == domain.Initiator && staleConnectivity(err) {
			s.log.Warn().Err(err).Msg("answer rejected")
			s.recover("answer rejected")
			return
		}
		s.log.Error().Err(err).Msg("set remote answer")
		s.settle()
		return
	}
	s.settle()
}

// settle ends a round: back to Stable, release held candidates, replay a request that
// arrived meanwhile.
func (s *Session) settle() {
	s.state = Stable
	if s.pc != nil && s.pc.RemoteDescription() != nil {
		s.candidates.Flush()
	}
	s.refreshVerification()
	if s.pending {
		s.pending = false
		s.sched.Trigger()
	}
}

func (s *Session) refreshVerification() {
	if s.pc == nil {
		return
	}
	local, remote := s.pc.LocalDescription(), s.pc.RemoteDescription()
	if local == nil || remote == nil {
		return
	}
	code, err := sdpx.VerificationCode(local.SDP, remote.SDP)
	if err != nil {
		s.log.Debug().Err(err).Msg("no verification code")
		return
	}
	if code != s.verification {
		s.verification = code
		s.log.Info().Str("code", code).Msg("verification code")
	}
}

func (s *Session) preferCodec(raw string) string {
	codec := domain.DefaultCodec
	switch {
	case s.roomQuality != nil && s.roomQuality.Codec != "":
		codec = s.roomQuality.Codec
	case s.quality != nil && s.quality.Codec != "":
		codec = s.quality.Codec
	}
	out, err := sdpx.PreferCodec(raw, codec)
	if err != nil {
		s.log.Warn().Err(err).Msg("codec preference not applied")
		return raw
	}
	return out
}

// staleConnectivity reports errors caused by a description produced for an older
// transport session or a signaling state that moved on.
func staleConnectivity(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"ufrag", "pwd", "fragment", "credential", "fingerprint", "mismatch", "signaling state", "invalid state"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
