package signal

import (
	"errors"

	"github.com/dkeye/o2o/internal/app/rendezvous"
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/rs/zerolog/log"
)

var errJoinRate = errors.New("too many join attempts")

// handleJoin answers a refused join with an error and hangs up. Only throttling is
// non-fatal; the client does not retry the other refusals.
func (ctl *SignalWSController) handleJoin(sess core.MemberSession, conn *WsSignalConn, msg core.Message) {
	id := sess.Meta().ClientID
	l := log.With().Str("module", "signal").Str("client", string(id)).Str("room", string(msg.Room)).Logger()

	reject := func(err error, fatal bool) {
		l.Warn().Err(err).Bool("fatal", fatal).Msg("join rejected")
		ctl.sendMessage(conn, core.ErrorMessage(msg.Room, joinErrorText(err), fatal))
		conn.Close()
	}
	fail := func(err error) { reject(err, true) }

	if _, err := domain.ParseRoomID(string(msg.Room)); err != nil {
		fail(err)
		return
	}
	// Members coming back are never throttled. A throttled stranger is told to retry
	// later; its client reconnects on its own.
	if ctl.Limiter != nil && !ctl.Hub.Member(msg.Room, id) && !ctl.Limiter.Allow(id) {
		reject(errJoinRate, false)
		return
	}
	if err := ctl.Hub.Join(sess, msg); err != nil {
		fail(err)
		return
	}
	l.Info().Str("role", sess.Meta().Role.String()).Msg("join")
}

func (ctl *SignalWSController) handleRelay(sess core.MemberSession, msg core.Message, data []byte) {
	if err := ctl.Hub.Relay(sess, msg, data); err != nil {
		log.Warn().Err(err).Str("module", "signal").
			Str("client", string(sess.Meta().ClientID)).
			Str("type", string(msg.Type)).
			Msg("relay dropped")
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, rendezvous.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, rendezvous.ErrRoomBusy):
		return "room busy"
	case errors.Is(err, rendezvous.ErrCreatorAbsent):
		return "creator not yet joined"
	case errors.Is(err, domain.ErrInvalidRoomID):
		return "invalid room"
	default:
		return err.Error()
	}
}
