// Package rtc realizes transport sessions with pion/webrtc.
package rtc

import (
	"fmt"

	"github.com/dkeye/o2o/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

// Factory builds peer connections that share one API: default codecs, the default
// interceptor chain and pion logging routed through zerolog.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
	seq int
}

var _ core.PeerConnectionFactory = (*Factory)(nil)

func NewFactory(iceServers []string) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(log.Logger)

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(reg),
			webrtc.WithSettingEngine(se),
		),
		cfg: DefaultWebRTCConfig(iceServers),
	}, nil
}

// NewPeerConnection is called from the session loop only.
func (f *Factory) NewPeerConnection(events core.PeerEvents) (core.PeerConnection, error) {
	f.seq++
	l := log.With().Str("module", "webrtc").Int("pc", f.seq).Logger()
	pc, err := newPeerConnection(f.api, f.cfg, events, l)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return pc, nil
}
