package domain

// Role decides who wins an offer collision. It is fixed for the life of a session.
type Role int

const (
	// Initiator created the room. It is the impolite peer: its own offer wins.
	Initiator Role = iota
	// Responder joined an existing room. It is the polite peer: it rolls back.
	Responder
)

// RoleFor maps the join action onto a role.
func RoleFor(createdRoom bool) Role {
	if createdRoom {
		return Initiator
	}
	return Responder
}

func (r Role) Polite() bool { return r == Responder }

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}
