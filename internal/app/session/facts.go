package session

import (
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
)

func (s *Session) onLocalFacts(f domain.SessionFacts) {
	s.facts = f
	s.send(core.StateMessage(f))
}

// resendFacts brings a new or returning peer up to date. Last write wins on the other side.
func (s *Session) resendFacts() {
	if s.facts == (domain.SessionFacts{}) {
		return
	}
	s.send(core.StateMessage(s.facts))
}
