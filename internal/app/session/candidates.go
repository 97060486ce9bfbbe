package session

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// CandidateBuffer holds remote connectivity candidates until the remote description of
// the current round is applied. Loop-owned; not safe for concurrent use.
type CandidateBuffer struct {
	ready   bool
	pending []webrtc.ICECandidateInit
	apply   func(webrtc.ICECandidateInit) error
	log     zerolog.Logger
}

func NewCandidateBuffer(apply func(webrtc.ICECandidateInit) error, log zerolog.Logger) *CandidateBuffer {
	return &CandidateBuffer{apply: apply, log: log}
}

// Offer applies c right away when the round's remote description is in place, otherwise
// queues it.
func (b *CandidateBuffer) Offer(c webrtc.ICECandidateInit) {
	if !b.ready {
		b.pending = append(b.pending, c)
		return
	}
	b.applyOne(c)
}

// Hold marks the start of a round: candidates queue until the next Flush.
func (b *CandidateBuffer) Hold() { b.ready = false }

// Flush applies queued candidates in arrival order and lets later ones through directly.
func (b *CandidateBuffer) Flush() {
	b.ready = true
	pending := b.pending
	b.pending = nil
	for _, c := range pending {
		b.applyOne(c)
	}
}

// Reset forgets everything; used when the transport session is replaced.
func (b *CandidateBuffer) Reset() {
	b.ready = false
	b.pending = nil
}

func (b *CandidateBuffer) Len() int { return len(b.pending) }

func (b *CandidateBuffer) applyOne(c webrtc.ICECandidateInit) {
	if err := b.apply(c); err != nil {
		b.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("dropping remote candidate")
	}
}
