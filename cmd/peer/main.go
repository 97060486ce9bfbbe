// Command peer is a headless participant: it joins a room, publishes Opus silence on the
// primary audio line and drains whatever the other side sends.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/o2o/internal/adapters/rtc"
	"github.com/dkeye/o2o/internal/adapters/signalclient"
	"github.com/dkeye/o2o/internal/app/session"
	"github.com/dkeye/o2o/internal/config"
	"github.com/dkeye/o2o/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadPeer(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("peer stopped")
	}
}

func run(ctx context.Context, cfg *config.PeerConfig) error {
	room := domain.RoomID(cfg.Room)
	if room == "" {
		if !cfg.Create {
			return errors.New("--room is required to join")
		}
		id, err := domain.NewRoomID(domain.DefaultRoomIDLen)
		if err != nil {
			return err
		}
		room = id
	}
	log.Info().Str("module", "peer").Str("room", string(room)).Bool("create", cfg.Create).Msg("starting")

	url, err := signalclient.SignalingURL(cfg.Server, domain.NewClientID())
	if err != nil {
		return err
	}
	factory, err := rtc.NewFactory(cfg.ICEServers)
	if err != nil {
		return err
	}

	client := signalclient.New(signalclient.Options{URL: url})
	sess, err := session.New(session.Options{
		Room:   room,
		Create: cfg.Create,
		Quality: domain.Quality{
			Width:   cfg.Width,
			Height:  cfg.Height,
			Fps:     cfg.FPS,
			Bitrate: domain.EstimateBitrate(cfg.Width, cfg.Height, cfg.FPS),
			Codec:   cfg.Codec,
		},
		Debounce:   cfg.Debounce,
		RetryDelay: cfg.RetryDelay,
	}, client, factory, &observer{})
	if err != nil {
		return err
	}

	silence, err := newSilenceTrack()
	if err != nil {
		return err
	}
	if err := sess.AttachLocalTrack(domain.Audio, silence); err != nil {
		return err
	}

	// The loop outlives the signal context so that an interrupt still says goodbye.
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	g.Go(func() error { return client.Run(gctx, sess) })
	g.Go(func() error { return writeSilence(gctx, silence) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			sess.Leave()
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}
