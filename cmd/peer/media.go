package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

func newSilenceTrack() (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "o2o-peer",
	)
}

// writeSilence feeds the track until ctx is done. Writes before the line is bound are
// discarded by pion.
func writeSilence(ctx context.Context, track *webrtc.TrackLocalStaticSample) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				return err
			}
		}
	}
}

// observer logs what the session reports and drains remote media.
type observer struct{}

func (o *observer) OnRemoteTrack(kind domain.MediaKind, track core.RemoteTrack) {
	l := log.With().Str("module", "peer").Str("kind", kind.String()).Str("track", track.ID()).Logger()
	l.Info().Msg("remote track")
	tr, ok := track.(*webrtc.TrackRemote)
	if !ok {
		return
	}
	go func() {
		var packets int
		for {
			if _, _, err := tr.ReadRTP(); err != nil {
				l.Info().Int("packets", packets).Msg("remote track ended")
				return
			}
			packets++
		}
	}()
}

func (o *observer) OnConnectionState(state domain.ConnectionState) {
	log.Info().Str("module", "peer").Str("state", string(state)).Msg("connection")
}

func (o *observer) OnSessionFacts(f domain.SessionFacts) {
	log.Info().Str("module", "peer").Bool("muted", f.Muted).Bool("cam", f.CameraOn).Bool("screen", f.ScreenOn).Msg("remote facts")
}

func (o *observer) OnFatalError(reason string) {
	log.Error().Str("module", "peer").Str("reason", reason).Msg("fatal")
}
