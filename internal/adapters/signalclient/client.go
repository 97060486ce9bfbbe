// Package signalclient is the client side of the rendezvous channel: a websocket that
// reconnects on a fixed delay and an outbound queue that survives the gaps.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/o2o/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultWriteWait      = 10 * time.Second
)

// Handler is the party that owns the channel. Callbacks run on the client's goroutines
// and must not block.
type Handler interface {
	// Hello returns the message written first on every open.
	Hello() core.Message
	OnOpen()
	OnClose(err error)
	OnMessage(msg core.Message)
}

type Options struct {
	URL            string
	Header         http.Header
	ReconnectDelay time.Duration
	WriteWait      time.Duration
	QueueLimit     int
	Dialer         *websocket.Dialer
}

// Client is safe for concurrent use. It implements core.Signaler.
type Client struct {
	opts  Options
	queue *Queue
	wake  chan struct{}
	log   zerolog.Logger
}

var _ core.Signaler = (*Client)(nil)

func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:  opts,
		queue: NewQueue(opts.QueueLimit),
		wake:  make(chan struct{}, 1),
		log:   log.With().Str("module", "signalclient").Logger(),
	}
}

// Send queues m for delivery. It never blocks.
func (c *Client) Send(m core.Message) {
	if c.queue.Push(m) {
		c.log.Warn().Msg("outbound queue full, oldest message evicted")
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) Discard(types ...core.MessageType) {
	if n := c.queue.Discard(types...); n > 0 {
		c.log.Debug().Int("count", n).Msg("discarded queued messages")
	}
}

// Run keeps the channel open until ctx is done. Each lost connection is reported to h and
// retried after the reconnect delay, without limit. On cancellation the queue is written
// out once more before the socket is closed.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		conn, err := backoff.RetryNotifyWithData(
			func() (*websocket.Conn, error) { return c.dial(ctx) },
			backoff.WithContext(backoff.NewConstantBackOff(c.opts.ReconnectDelay), ctx),
			func(err error, d time.Duration) {
				c.log.Warn().Err(err).Dur("retry_in", d).Msg("dial failed")
			},
		)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("signal dial: %w", err)
		}

		err = c.serve(ctx, conn, h)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("channel closed")
		h.OnClose(err)

		t := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn, h Handler) error {
	defer conn.Close()

	if err := c.write(conn, h.Hello()); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}
	c.log.Info().Str("url", c.opts.URL).Msg("channel open")
	h.OnOpen()

	readErr := make(chan error, 1)
	go c.readPump(conn, h, readErr)

	if err := c.drain(conn); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			if err := c.drain(conn); err != nil {
				c.log.Warn().Err(err).Msg("final drain")
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-c.wake:
			if err := c.drain(conn); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn, h Handler, done chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		msg, err := core.DecodeMessage(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad inbound message")
			continue
		}
		h.OnMessage(msg)
	}
}

func (c *Client) drain(conn *websocket.Conn) error {
	msgs := c.queue.Flush()
	for i, m := range msgs {
		err := c.write(conn, m)
		if err == nil {
			continue
		}
		var encErr *encodeError
		if errors.As(err, &encErr) {
			c.log.Error().Err(err).Msg("dropping unencodable message")
			continue
		}
		c.queue.Requeue(msgs[i:])
		return err
	}
	return nil
}

type encodeError struct{ err error }

func (e *encodeError) Error() string { return e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

func (c *Client) write(conn *websocket.Conn, m core.Message) error {
	frame, err := m.Encode()
	if err != nil {
		return &encodeError{err}
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
