package core

import "github.com/dkeye/o2o/internal/domain"

//go:generate mockgen -destination=mock/observer_mock.go -package=mock github.com/dkeye/o2o/internal/core Observer

// Observer receives the engine's outward notifications. All methods are called from the
// session loop goroutine and must not block.
type Observer interface {
	OnRemoteTrack(kind domain.MediaKind, track RemoteTrack)
	OnConnectionState(state domain.ConnectionState)
	OnSessionFacts(facts domain.SessionFacts)
	OnFatalError(reason string)
}
