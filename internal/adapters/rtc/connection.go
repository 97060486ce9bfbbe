package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var ErrNoLine = errors.New("no such media line")

// PeerConnection is the pion-backed transport session. Lines are transceivers addressed by
// their position in GetTransceivers, which pion keeps in m-line order.
type PeerConnection struct {
	api *webrtc.API
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu     sync.Mutex
	events core.PeerEvents
}

var _ core.PeerConnection = (*PeerConnection)(nil)

func newPeerConnection(api *webrtc.API, cfg webrtc.Configuration, events core.PeerEvents, log zerolog.Logger) (*PeerConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &PeerConnection{api: api, pc: pc, events: events, log: log}
	c.start()
	return c, nil
}

func (c *PeerConnection) handlers() core.PeerEvents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *PeerConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if h := c.handlers().OnConnectionState; h != nil {
			h(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if h := c.handlers().OnICECandidate; h != nil {
			h(cand.ToJSON())
		}
	})

	c.pc.OnNegotiationNeeded(func() {
		if h := c.handlers().OnNegotiationNeeded; h != nil {
			h()
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		line := c.lineOf(receiver)
		c.log.Info().
			Int("line", line).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if line < 0 {
			return
		}
		if h := c.handlers().OnTrack; h != nil {
			h(line, track)
		}
	})
}

func (c *PeerConnection) lineOf(receiver *webrtc.RTPReceiver) int {
	for i, t := range c.pc.GetTransceivers() {
		if t.Receiver() == receiver {
			return i
		}
	}
	return -1
}

func (c *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	if desc.Type == webrtc.SDPTypeRollback && desc.SDP == "" {
		// pion fills an empty SDP from the last created offer or answer only.
		if pending := c.pc.PendingLocalDescription(); pending != nil {
			desc.SDP = pending.SDP
		}
	}
	return c.pc.SetLocalDescription(desc)
}

func (c *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *PeerConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *PeerConnection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func codecType(k domain.MediaKind) webrtc.RTPCodecType {
	if k.IsVideo() {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func (c *PeerConnection) AddLine(kind domain.MediaKind) error {
	t, err := c.pc.AddTransceiverFromKind(codecType(kind), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return err
	}
	if s := t.Sender(); s != nil {
		go c.drainRTCP(s)
	}
	return nil
}

func (c *PeerConnection) LineKinds() []webrtc.RTPCodecType {
	ts := c.pc.GetTransceivers()
	out := make([]webrtc.RTPCodecType, len(ts))
	for i, t := range ts {
		out[i] = t.Kind()
	}
	return out
}

// SetLineTrack swaps the outgoing track of a line. A line discovered from a remote offer
// has no sender yet; one is created on first use.
func (c *PeerConnection) SetLineTrack(index int, track webrtc.TrackLocal) error {
	ts := c.pc.GetTransceivers()
	if index < 0 || index >= len(ts) {
		return fmt.Errorf("%w: %d", ErrNoLine, index)
	}
	t := ts[index]
	if s := t.Sender(); s != nil {
		return s.ReplaceTrack(track)
	}
	if track == nil {
		return nil
	}
	sender, err := c.api.NewRTPSender(track, c.pc.SCTP().Transport())
	if err != nil {
		return fmt.Errorf("new sender: %w", err)
	}
	if err := t.SetSender(sender, track); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	go c.drainRTCP(sender)
	return nil
}

// drainRTCP keeps interceptors fed; pion needs inbound RTCP read for NACK and reports.
func (c *PeerConnection) drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}

// Close detaches the session's callbacks first so nothing fires into a discarded epoch.
func (c *PeerConnection) Close() error {
	c.mu.Lock()
	c.events = core.PeerEvents{}
	c.mu.Unlock()
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
		return err
	}
	c.log.Info().Msg("closed")
	return nil
}
