package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// LoggerFactory hands pion a zerolog child logger per scope.
type LoggerFactory struct {
	base zerolog.Logger
}

var _ logging.LoggerFactory = LoggerFactory{}

func NewLoggerFactory(base zerolog.Logger) LoggerFactory {
	return LoggerFactory{base: base}
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveled{l: f.base.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type leveled struct {
	l zerolog.Logger
}

func (z leveled) Trace(msg string)               { z.l.Trace().Msg(msg) }
func (z leveled) Tracef(format string, a ...any) { z.l.Trace().Msg(fmt.Sprintf(format, a...)) }
func (z leveled) Debug(msg string)               { z.l.Debug().Msg(msg) }
func (z leveled) Debugf(format string, a ...any) { z.l.Debug().Msg(fmt.Sprintf(format, a...)) }
func (z leveled) Info(msg string)                { z.l.Info().Msg(msg) }
func (z leveled) Infof(format string, a ...any)  { z.l.Info().Msg(fmt.Sprintf(format, a...)) }
func (z leveled) Warn(msg string)                { z.l.Warn().Msg(msg) }
func (z leveled) Warnf(format string, a ...any)  { z.l.Warn().Msg(fmt.Sprintf(format, a...)) }
func (z leveled) Error(msg string)               { z.l.Error().Msg(msg) }
func (z leveled) Errorf(format string, a ...any) { z.l.Error().Msg(fmt.Sprintf(format, a...)) }
