// Package rendezvous pairs exactly two clients per room and relays their negotiation
// messages. It never looks inside descriptions or candidates.
package rendezvous

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomBusy      = errors.New("room busy")
	ErrCreatorAbsent = errors.New("creator not yet joined")
	ErrNotInRoom     = errors.New("not in room")
)

type Hub struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]*Room
	byClient map[domain.ClientID]domain.RoomID

	grace  time.Duration
	policy Policy
	log    zerolog.Logger
}

// NewHub returns an empty hub. grace is how long a room outlives its creator's connection.
func NewHub(grace time.Duration, policy Policy) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		rooms:    make(map[domain.RoomID]*Room),
		byClient: make(map[domain.ClientID]domain.RoomID),
		grace:    grace,
		policy:   policy,
		log:      log.With().Str("module", "app.rendezvous").Logger(),
	}
}

// Join places sess into the room named by msg. A join with a valid quality creates the
// room; any other join takes the viewer slot. A client whose id already owns a slot takes
// it back, and the other side is told its peer was replaced.
func (h *Hub) Join(sess core.MemberSession, msg core.Message) error {
	id := sess.Meta().ClientID
	l := h.log.With().Str("room", string(msg.Room)).Str("client", string(id)).Logger()

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[msg.Room]
	if !ok {
		if msg.Quality == nil || msg.Quality.Validate() != nil {
			return ErrRoomNotFound
		}
		r = &Room{ID: msg.Room, Quality: *msg.Quality, creator: &slot{id: id, sess: sess}}
		h.rooms[msg.Room] = r
		h.byClient[id] = r.ID
		sess.Meta().Role = domain.Initiator
		l.Info().Msg("creator join room")
		h.send(r, sess, core.Message{Type: core.TypeJoined, Room: r.ID})
		return nil
	}

	switch {
	case r.creator.id == id:
		r.stopGrace()
		h.replace(r, r.creator, sess)
		sess.Meta().Role = domain.Initiator
		l.Info().Msg("creator rejoined")
		h.send(r, sess, core.Message{Type: core.TypeJoined, Room: r.ID})
		if r.viewer.present() {
			h.send(r, r.viewer.sess, core.Message{Type: core.TypePeerReplaced, Room: r.ID})
			h.sendReady(r, sess)
		}
		return nil

	case r.viewer != nil && r.viewer.id == id:
		h.replace(r, r.viewer, sess)
		r.viewerLeft = true

	case r.viewer.present():
		return ErrRoomBusy

	case !r.creator.present():
		return ErrCreatorAbsent

	default:
		r.viewer = &slot{id: id, sess: sess}
	}

	h.byClient[id] = r.ID
	sess.Meta().Role = domain.Responder
	l.Info().Bool("replaced", r.viewerLeft).Msg("viewer join room")
	h.send(r, sess, core.Message{Type: core.TypeJoined, Room: r.ID})
	if !r.creator.present() {
		return nil
	}
	if r.viewerLeft {
		h.send(r, r.creator.sess, core.Message{Type: core.TypePeerReplaced, Room: r.ID})
	} else {
		h.sendReady(r, r.creator.sess)
	}
	h.sendReady(r, sess)
	r.viewerLeft = false
	return nil
}

// replace moves a slot to a new connection and closes the old one.
func (h *Hub) replace(r *Room, s *slot, sess core.MemberSession) {
	if s.sess != nil && s.sess != sess {
		s.sess.Signal().Close()
	}
	s.sess = sess
}

func (h *Hub) sendReady(r *Room, to core.MemberSession) {
	q := r.Quality
	h.send(r, to, core.Message{Type: core.TypeReady, Room: r.ID, Quality: &q})
}

// Relay forwards a negotiation message to the other member. Messages are dropped while
// the room is not full, or when the sender no longer holds its slot.
func (h *Hub) Relay(sess core.MemberSession, msg core.Message, frame core.Frame) error {
	id := sess.Meta().ClientID
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID, ok := h.byClient[id]
	if !ok {
		return ErrNotInRoom
	}
	r, ok := h.rooms[roomID]
	if !ok || !r.holds(sess) {
		return ErrNotInRoom
	}
	to := r.peerOf(sess)
	if to == nil {
		h.log.Debug().Str("room", string(roomID)).Str("type", string(msg.Type)).Msg("relay: peer absent")
		return nil
	}
	h.deliver(r, to, frame)
	return nil
}

// Disconnect releases whatever slot sess holds. A creator's room is destroyed after the
// grace period unless the creator comes back first.
func (h *Hub) Disconnect(sess core.MemberSession) {
	id := sess.Meta().ClientID
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID, ok := h.byClient[id]
	if !ok {
		return
	}
	r, ok := h.rooms[roomID]
	if !ok {
		delete(h.byClient, id)
		return
	}
	l := h.log.With().Str("room", string(roomID)).Str("client", string(id)).Logger()

	switch {
	case r.creator.present() && r.creator.sess == sess:
		r.creator.sess = nil
		if h.grace <= 0 {
			l.Info().Msg("creator destroyed room, initiator: disconnected")
			h.destroy(r)
			return
		}
		l.Info().Dur("grace", h.grace).Msg("creator disconnected")
		r.grace = time.AfterFunc(h.grace, func() { h.expire(roomID) })
	case r.viewer.present() && r.viewer.sess == sess:
		l.Info().Msg("viewer left")
		delete(h.byClient, id)
		r.lastViewer = id
		r.viewer = nil
		r.viewerLeft = true
	}
}

// Member reports whether id already belongs to room: its creator, its viewer, or the
// viewer that left last. Joins from members are reconnects, not fresh attempts.
func (h *Hub) Member(room domain.RoomID, id domain.ClientID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[room]
	if !ok {
		return false
	}
	return r.creator.id == id || (r.viewer != nil && r.viewer.id == id) || (r.viewerLeft && r.lastViewer == id)
}

func (h *Hub) expire(id domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok || r.creator.present() {
		return
	}
	h.log.Info().Str("room", string(id)).Msg("creator destroyed room, initiator: grace expired")
	h.destroy(r)
}

// DestroyByCreator handles the creator's teardown beacon.
func (h *Hub) DestroyByCreator(id domain.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		return false
	}
	h.log.Info().Str("room", string(id)).Msg("creator destroyed room, initiator: event")
	if r.creator.present() {
		r.creator.sess.Signal().Close()
	}
	h.destroy(r)
	return true
}

// destroy tells a present viewer the call is over and forgets the room.
func (h *Hub) destroy(r *Room) {
	r.stopGrace()
	if r.viewer.present() {
		h.send(r, r.viewer.sess, core.Message{Type: core.TypeLeave, Room: r.ID})
		r.viewer.sess.Signal().Close()
		delete(h.byClient, r.viewer.id)
	}
	delete(h.byClient, r.creator.id)
	delete(h.rooms, r.ID)
}

func (h *Hub) Info(id domain.RoomID) Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r.info()
	}
	return Info{Room: id}
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) send(r *Room, to core.MemberSession, m core.Message) {
	frame, err := m.Encode()
	if err != nil {
		h.log.Error().Err(err).Msg("encode")
		return
	}
	h.deliver(r, to, frame)
}

func (h *Hub) deliver(r *Room, to core.MemberSession, frame core.Frame) {
	if err := to.Signal().TrySend(frame); err != nil {
		switch h.policy.OnBackPressure(r, to) {
		case KickMember:
			h.log.Warn().Err(err).Str("room", string(r.ID)).Str("client", string(to.Meta().ClientID)).Msg("kick slow member")
			to.Signal().Close()
		case DropFrame, NoAction:
			h.log.Warn().Err(err).Str("room", string(r.ID)).Msg("frame dropped")
		}
	}
}
