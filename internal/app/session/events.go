package session

import (
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
)

// event is the closed set of inputs of the session loop.
type event interface{ isEvent() }

type (
	inboundEvent struct{ msg core.Message }

	channelOpenEvent  struct{}
	channelCloseEvent struct{ err error }

	localTrackEvent struct {
		kind  domain.MediaKind
		track webrtc.TrackLocal
	}
	factsEvent struct{ facts domain.SessionFacts }

	renegotiateEvent struct{}
	retryEvent       struct{}

	offerCreatedEvent struct {
		generation uint64
		epoch      uint64
		desc       webrtc.SessionDescription
		err        error
	}

	pcCandidateEvent struct {
		epoch     uint64
		candidate webrtc.ICECandidateInit
	}
	pcTrackEvent struct {
		epoch uint64
		line  int
		track core.RemoteTrack
	}
	pcStateEvent struct {
		epoch uint64
		state webrtc.PeerConnectionState
	}
	pcNegotiationNeededEvent struct{ epoch uint64 }

	leaveEvent struct{}

	queryEvent struct {
		fn   func()
		done chan struct{}
	}
)

func (inboundEvent) isEvent()             {}
func (channelOpenEvent) isEvent()         {}
func (channelCloseEvent) isEvent()        {}
func (localTrackEvent) isEvent()          {}
func (factsEvent) isEvent()               {}
func (renegotiateEvent) isEvent()         {}
func (retryEvent) isEvent()               {}
func (offerCreatedEvent) isEvent()        {}
func (pcCandidateEvent) isEvent()         {}
func (pcTrackEvent) isEvent()             {}
func (pcStateEvent) isEvent()             {}
func (pcNegotiationNeededEvent) isEvent() {}
func (leaveEvent) isEvent()               {}
func (queryEvent) isEvent()               {}
