package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

const (
	MinRoomIDLen     = 16
	MaxRoomIDLen     = 32
	DefaultRoomIDLen = 16

	roomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrInvalidQuality = errors.New("invalid quality")
)

// RoomID is the rendezvous key shared by both peers. It is also the URL path segment.
type RoomID string

// NewRoomID draws n symbols from the room alphabet using crypto/rand.
func NewRoomID(n int) (RoomID, error) {
	if n < MinRoomIDLen || n > MaxRoomIDLen {
		return "", fmt.Errorf("%w: length %d", ErrInvalidRoomID, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("room id entropy: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = roomAlphabet[int(b)%len(roomAlphabet)]
	}
	return RoomID(out), nil
}

// ParseRoomID validates a code received from the wire or the URL.
func ParseRoomID(s string) (RoomID, error) {
	s = strings.Trim(s, "/ ")
	if len(s) < MinRoomIDLen || len(s) > MaxRoomIDLen {
		return "", fmt.Errorf("%w: length %d", ErrInvalidRoomID, len(s))
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(roomAlphabet, s[i]) < 0 {
			return "", fmt.Errorf("%w: symbol %q", ErrInvalidRoomID, s[i])
		}
	}
	return RoomID(s), nil
}

func (id RoomID) String() string { return string(id) }

// Quality is the media profile chosen by the room creator and echoed by the server in "ready".
type Quality struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Fps     int    `json:"fps"`
	Bitrate int    `json:"bitrate"`
	Codec   string `json:"codec"`
}

// EstimateBitrate mirrors the creator-side heuristic: pixels per second times 0.065 bits.
func EstimateBitrate(width, height, fps int) int {
	return int(float64(width) * float64(height) * float64(fps) * 0.065)
}

const DefaultCodec = "H264"

func DefaultQuality() Quality {
	return Quality{
		Width:   1920,
		Height:  1080,
		Fps:     30,
		Bitrate: EstimateBitrate(1920, 1080, 30),
		Codec:   DefaultCodec,
	}
}

// Validate is what the rendezvous server requires of a creator's join.
func (q Quality) Validate() error {
	if q.Bitrate <= 0 {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidQuality, q.Bitrate)
	}
	if q.Width < 0 || q.Height < 0 || q.Fps < 0 {
		return fmt.Errorf("%w: negative dimension", ErrInvalidQuality)
	}
	return nil
}
