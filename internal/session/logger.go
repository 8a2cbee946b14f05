package session

import (
	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
)

// sessionLogger tags every event with the session id.
type sessionLogger struct {
	logger.Logger
	id string
}

func (l *sessionLogger) Debug() *logger.LogEvent { return l.tag(l.Logger.Debug()) }
func (l *sessionLogger) Info() *logger.LogEvent  { return l.tag(l.Logger.Info()) }
func (l *sessionLogger) Warn() *logger.LogEvent  { return l.tag(l.Logger.Warn()) }
func (l *sessionLogger) Error() *logger.LogEvent { return l.tag(l.Logger.Error()) }

func (l *sessionLogger) ErrorWithCode(err errors.Error) *logger.LogEvent {
	return l.tag(l.Logger.ErrorWithCode(err))
}

func (l *sessionLogger) tag(ev *logger.LogEvent) *logger.LogEvent {
	ev.Str("session", l.id)
	return ev
}
