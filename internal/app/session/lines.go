package session

import (
	"errors"
	"fmt"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrTopologyMismatch = errors.New("media topology mismatch")

// MediaLine is one fixed send/receive slot. Index never changes once assigned.
type MediaLine struct {
	Kind   domain.MediaKind
	Index  int
	Local  webrtc.TrackLocal
	Remote core.RemoteTrack
}

// LineRegistry maps media kinds onto transceiver positions. Local tracks survive a
// transport session swap; binding and remote tracks do not.
type LineRegistry struct {
	lines [domain.LineCount]MediaLine
	bound bool
}

func NewLineRegistry() *LineRegistry {
	r := &LineRegistry{}
	for _, k := range domain.MediaKinds() {
		r.lines[k.Index()] = MediaLine{Kind: k, Index: k.Index()}
	}
	return r
}

func codecTypeOf(k domain.MediaKind) webrtc.RTPCodecType {
	if k.IsVideo() {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// Install creates the lines on pc in fixed order. Used by the side that creates the room.
func (r *LineRegistry) Install(pc core.PeerConnection) error {
	for _, k := range domain.MediaKinds() {
		if err := pc.AddLine(k); err != nil {
			return fmt.Errorf("add %s line: %w", k, err)
		}
	}
	return r.Bind(pc.LineKinds())
}

// Bind checks the kind-by-position layout reported by the transport session.
func (r *LineRegistry) Bind(kinds []webrtc.RTPCodecType) error {
	if len(kinds) < domain.LineCount {
		return fmt.Errorf("%w: %d lines, want %d", ErrTopologyMismatch, len(kinds), domain.LineCount)
	}
	for i := range r.lines {
		if want := codecTypeOf(r.lines[i].Kind); kinds[i] != want {
			return fmt.Errorf("%w: line %d is %s, want %s", ErrTopologyMismatch, i, kinds[i], want)
		}
	}
	r.bound = true
	return nil
}

func (r *LineRegistry) Bound() bool { return r.bound }

// Unbind detaches the registry from a discarded transport session.
func (r *LineRegistry) Unbind() {
	r.bound = false
	for i := range r.lines {
		r.lines[i].Remote = nil
	}
}

// SetLocal records the local track of a kind and reports whether it changed.
func (r *LineRegistry) SetLocal(k domain.MediaKind, track webrtc.TrackLocal) bool {
	l := &r.lines[k.Index()]
	if l.Local == track {
		return false
	}
	l.Local = track
	return true
}

func (r *LineRegistry) Local(k domain.MediaKind) webrtc.TrackLocal {
	return r.lines[k.Index()].Local
}

// SetRemote records an inbound track arriving on a position and returns the kind of it.
func (r *LineRegistry) SetRemote(index int, track core.RemoteTrack) (domain.MediaKind, bool) {
	k, ok := domain.KindAt(index)
	if !ok {
		return 0, false
	}
	r.lines[index].Remote = track
	return k, true
}

// Apply pushes the recorded local track of k onto the bound transport session.
func (r *LineRegistry) Apply(pc core.PeerConnection, k domain.MediaKind) error {
	if !r.bound {
		return nil
	}
	l := r.lines[k.Index()]
	if err := pc.SetLineTrack(l.Index, l.Local); err != nil {
		return fmt.Errorf("set %s track: %w", k, err)
	}
	return nil
}

// ApplyAll re-attaches every known local track; empty lines are left alone.
func (r *LineRegistry) ApplyAll(pc core.PeerConnection) error {
	var errs []error
	for _, l := range r.lines {
		if l.Local == nil {
			continue
		}
		if err := r.Apply(pc, l.Kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Topology lists line kinds in position order, or nil while unbound.
func (r *LineRegistry) Topology() []domain.MediaKind {
	if !r.bound {
		return nil
	}
	out := make([]domain.MediaKind, len(r.lines))
	for i, l := range r.lines {
		out[i] = l.Kind
	}
	return out
}

func (r *LineRegistry) Line(k domain.MediaKind) MediaLine {
	return r.lines[k.Index()]
}
