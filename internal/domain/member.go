package domain

// Member is one occupied slot of a rendezvous room.
// No transport or lifecycle logic here.
type Member struct {
	ClientID ClientID
	Role     Role
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id ClientID, role Role) *Member {
	return &Member{ClientID: id, Role: role}
}
