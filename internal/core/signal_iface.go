package core

// Frame is a raw encoded signaling payload.
type Frame []byte

// SignalConnection abstracts a server-side messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaler is the client-side outbound half of the rendezvous channel as seen by a session.
// Send never blocks: messages are queued while the channel is down.
type Signaler interface {
	Send(Message)
	// Discard drops queued, not yet written messages of the given types.
	Discard(types ...MessageType)
}
