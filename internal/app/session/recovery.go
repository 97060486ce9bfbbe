package session

import (
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
)

// enterRecovery drops the transport session and every piece of round state tied to it.
// Room, role, local tracks and facts are kept. A second trigger while recovering is a
// no-op.
func (s *Session) enterRecovery(reason string) bool {
	if s.state == Recovering || s.finished {
		return false
	}
	s.log.Warn().Str("reason", reason).Msg("recovering")
	s.state = Recovering
	s.generation++
	s.pending = false
	s.sched.Cancel()
	s.signal.Discard(core.TypeOffer, core.TypeAnswer, core.TypeCandidate)
	s.candidates.Reset()
	s.closePeerConnection()
	s.setConn(domain.StateReconnecting)
	return true
}

// completeRecovery rebuilds the transport session with the same line layout. The creator
// offers at once when the peer is there; the joiner waits for that offer.
func (s *Session) completeRecovery() {
	if s.state != Recovering {
		return
	}
	if err := s.openPeerConnection(); err != nil {
		s.log.Error().Err(err).Msg("rebuild peer connection")
		return
	}
	s.state = Stable
	s.log.Info().Uint64("epoch", s.epoch).Msg("transport session rebuilt")
	if s.role == domain.Initiator && s.peerPresent && s.channelOpen {
		s.beginOffer("recovery")
	}
}

// recover handles triggers that do not depend on the channel coming back.
func (s *Session) recover(reason string) {
	if s.enterRecovery(reason) {
		s.completeRecovery()
	}
}

func (s *Session) onPeerReplaced() {
	s.log.Info().Msg("peer replaced")
	s.peerPresent = true
	s.recover("peer replaced")
	if s.state != Recovering {
		s.setConn(domain.StateConnecting)
	}
	s.resendFacts()
}
