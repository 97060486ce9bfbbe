package rendezvous

import "github.com/dkeye/o2o/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room *Room, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks a member that cannot keep up. Its client reconnects and reclaims the
// slot, which is cheaper than relaying into a stalled socket.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Room, core.MemberSession) BackpressureAction {
	return KickMember
}
