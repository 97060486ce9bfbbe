package core

import (
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the read-only view of an inbound track handed to the UI layer.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// PeerEvents are the transport session callbacks. Implementations may invoke them from
// any goroutine.
type PeerEvents struct {
	OnICECandidate      func(webrtc.ICECandidateInit)
	OnTrack             func(line int, track RemoteTrack)
	OnConnectionState   func(webrtc.PeerConnectionState)
	OnNegotiationNeeded func()
}

// PeerConnection is the transport session owned by one call. Lines are addressed by
// their fixed position, never by transport-assigned identifiers.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	// SetLocalDescription also accepts webrtc.SDPTypeRollback.
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	SignalingState() webrtc.SignalingState
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription

	// AddLine appends a send/receive line of the given kind after the existing ones.
	AddLine(kind domain.MediaKind) error
	// LineKinds reports the codec type of every line in position order.
	LineKinds() []webrtc.RTPCodecType
	// SetLineTrack replaces the outgoing track of a line; nil leaves the line empty.
	SetLineTrack(index int, track webrtc.TrackLocal) error

	// Close detaches every PeerEvents callback and releases the transport.
	Close() error
}

// PeerConnectionFactory builds a fresh transport session, used at session start and on
// every recovery.
type PeerConnectionFactory interface {
	NewPeerConnection(events PeerEvents) (PeerConnection, error)
}
