package rendezvous

import (
	"time"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
)

// slot keeps the owner id even while its connection is gone, so the owner can come back.
type slot struct {
	id   domain.ClientID
	sess core.MemberSession
}

func (s *slot) present() bool { return s != nil && s.sess != nil }

// Room is one creator/viewer pair. All fields are guarded by the hub mutex.
type Room struct {
	ID      domain.RoomID
	Quality domain.Quality

	creator    *slot
	viewer     *slot
	viewerLeft bool
	// lastViewer is the id of the viewer that left most recently.
	lastViewer domain.ClientID
	grace      *time.Timer
}

// Info is the public view of a room.
type Info struct {
	Room    domain.RoomID  `json:"room"`
	Exists  bool           `json:"exists"`
	Creator bool           `json:"creator"`
	Viewer  bool           `json:"viewer"`
	Quality domain.Quality `json:"quality"`
}

func (r *Room) info() Info {
	return Info{
		Room:    r.ID,
		Exists:  true,
		Creator: r.creator.present(),
		Viewer:  r.viewer.present(),
		Quality: r.Quality,
	}
}

// peerOf returns the other present member, if any.
func (r *Room) peerOf(sess core.MemberSession) core.MemberSession {
	switch {
	case r.creator.present() && r.creator.sess == sess:
		if r.viewer.present() {
			return r.viewer.sess
		}
	case r.viewer.present() && r.viewer.sess == sess:
		if r.creator.present() {
			return r.creator.sess
		}
	}
	return nil
}

func (r *Room) holds(sess core.MemberSession) bool {
	return (r.creator.present() && r.creator.sess == sess) || (r.viewer.present() && r.viewer.sess == sess)
}

func (r *Room) stopGrace() {
	if r.grace != nil {
		r.grace.Stop()
		r.grace = nil
	}
}
