// Package stun answers STUN Binding requests so peers can learn their reflexive address
// from the same host that serves signaling.
package stun

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pion/stun/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxPacket = 1500

type Server struct {
	conn net.PacketConn
	log  zerolog.Logger
}

func Listen(addr string) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("stun listen %s: %w", addr, err)
	}
	return &Server{
		conn: conn,
		log:  log.With().Str("module", "adapters.stun").Logger(),
	}, nil
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve answers requests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.log.Info().Str("addr", s.conn.LocalAddr().String()).Msg("stun listening")
	buf := make([]byte, maxPacket)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("read")
			continue
		}
		resp, err := s.handle(buf[:n], addr)
		if err != nil {
			s.log.Debug().Err(err).Str("from", addr.String()).Msg("ignored packet")
			continue
		}
		if _, err := s.conn.WriteTo(resp, addr); err != nil {
			s.log.Warn().Err(err).Str("to", addr.String()).Msg("write")
		}
	}
}

func (s *Server) handle(packet []byte, from net.Addr) ([]byte, error) {
	m := &stun.Message{Raw: append([]byte(nil), packet...)}
	if err := m.Decode(); err != nil {
		return nil, err
	}
	if m.Type != stun.BindingRequest {
		return nil, fmt.Errorf("unexpected %s", m.Type)
	}
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected address %T", from)
	}
	resp, err := stun.Build(
		stun.BindingSuccess,
		stun.NewTransactionIDSetter(m.TransactionID),
		&stun.XORMappedAddress{IP: udp.IP, Port: udp.Port},
		stun.Fingerprint,
	)
	if err != nil {
		return nil, err
	}
	return resp.Raw, nil
}
