package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/o2o/internal/app/rendezvous"
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Options are the per-connection limits of the signaling socket.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  512 * 1024,
		PingPeriod: 10 * time.Second,
		PongWait:   30 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 64,
	}
}

type SignalWSController struct {
	Hub     *rendezvous.Hub
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(hub *rendezvous.Hub, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{Hub: hub, Limiter: limiter, opts: opts}
}

// WsSignalConn is the server half of one signaling socket. Frames go through a bounded
// queue drained by writePump; Close ends the queue and writePump closes the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientID prefers the id the page sends on every reconnect over the cookie token, so a
// reloaded tab and a reconnecting socket both keep their slot.
func clientID(c *gin.Context) (domain.ClientID, error) {
	if id := c.Query("id"); id != "" {
		return domain.ParseClientID(id)
	}
	return domain.ParseClientID(c.GetString("client_token"))
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id, err := clientID(c)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("reject ws connection")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	sess := core.NewMemberSession(domain.NewMember(id, domain.Responder), conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
