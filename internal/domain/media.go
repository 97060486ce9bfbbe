package domain

import "fmt"

// MediaKind names one of the four logical media lines. The numeric value is the line index.
type MediaKind int

const (
	Audio MediaKind = iota
	Camera
	ScreenVideo
	ScreenAudio
)

// LineCount is the fixed number of media lines in every session.
const LineCount = 4

// MediaKinds lists the kinds in line order.
func MediaKinds() []MediaKind {
	return []MediaKind{Audio, Camera, ScreenVideo, ScreenAudio}
}

func (k MediaKind) Valid() bool { return k >= Audio && k <= ScreenAudio }

// Index is the position of the line for this kind.
func (k MediaKind) Index() int { return int(k) }

func (k MediaKind) IsVideo() bool { return k == Camera || k == ScreenVideo }

func (k MediaKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Camera:
		return "camera"
	case ScreenVideo:
		return "screen-video"
	case ScreenAudio:
		return "screen-audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindAt returns the kind assigned to a line position.
func KindAt(index int) (MediaKind, bool) {
	k := MediaKind(index)
	return k, k.Valid()
}

// SessionFacts are small idempotent facts about a participant, exchanged with
// last-write-wins semantics.
type SessionFacts struct {
	Muted    bool `json:"micMute"`
	CameraOn bool `json:"cam"`
	ScreenOn bool `json:"screen"`
}

// ConnectionState is what the UI layer is told about the call.
type ConnectionState string

const (
	StateWaitingPeer  ConnectionState = "waiting"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateReconnecting ConnectionState = "reconnecting"
	StateClosed       ConnectionState = "closed"
)
