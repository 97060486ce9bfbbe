package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeReady        MessageType = "ready"
	TypeJoined       MessageType = "joined"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeCandidate    MessageType = "candidate"
	TypeLeave        MessageType = "leave"
	TypeHangup       MessageType = "hangup"
	TypeState        MessageType = "state"
	TypeError        MessageType = "error"
	TypePeerReplaced MessageType = "peer-replaced"
)

// Relayed reports whether the rendezvous server forwards this type to the other peer untouched.
func (t MessageType) Relayed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeLeave, TypeHangup, TypeState:
		return true
	}
	return false
}

// Negotiation reports whether the type belongs to a description exchange and is
// meaningless once the transport session it was produced for is gone.
func (t MessageType) Negotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}

// Message is the single wire envelope of the rendezvous channel. Type discriminates which
// of the optional fields are meaningful.
type Message struct {
	Type MessageType   `json:"type"`
	Room domain.RoomID `json:"room"`

	Quality   *domain.Quality            `json:"quality,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	MicMute bool `json:"micMute,omitempty"`
	Cam     bool `json:"cam,omitempty"`
	Screen  bool `json:"screen,omitempty"`

	Message string `json:"message,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func JoinMessage(room domain.RoomID, quality *domain.Quality) Message {
	return Message{Type: TypeJoin, Room: room, Quality: quality}
}

func OfferMessage(desc webrtc.SessionDescription) Message {
	return Message{Type: TypeOffer, Offer: &desc}
}

func AnswerMessage(desc webrtc.SessionDescription) Message {
	return Message{Type: TypeAnswer, Answer: &desc}
}

func CandidateMessage(c webrtc.ICECandidateInit) Message {
	return Message{Type: TypeCandidate, Candidate: &c}
}

func StateMessage(f domain.SessionFacts) Message {
	return Message{Type: TypeState, MicMute: f.Muted, Cam: f.CameraOn, Screen: f.ScreenOn}
}

func ErrorMessage(room domain.RoomID, text string, fatal bool) Message {
	return Message{Type: TypeError, Room: room, Message: text, Fatal: fatal}
}

// Facts extracts the session facts carried by a state message.
func (m Message) Facts() domain.SessionFacts {
	return domain.SessionFacts{Muted: m.MicMute, CameraOn: m.Cam, ScreenOn: m.Screen}
}

func (m Message) Encode() (Frame, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}
