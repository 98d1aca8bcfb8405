// Package obs centralizes structured logging field conventions so every
// package logs with the same keys (session_id, phase, agent_name, node),
// matching the teacher codebase's pervasive use of github.com/sirupsen/logrus
// with structured fields rather than format-string logging.
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-wide logrus instance. Callers should prefer
// Session(...) over the bare logger so every log line carries session
// context.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	if lvl, err := logrus.ParseLevel(os.Getenv("SREFORGE_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Fields is a typed alias kept local so call sites don't import logrus
// directly.
type Fields = logrus.Fields

// Session returns a logger entry scoped to a session id.
func Session(sessionID string) *logrus.Entry {
	return Logger.WithField("session_id", sessionID)
}

// WithPhase adds a phase field to an existing entry.
func WithPhase(e *logrus.Entry, phase string) *logrus.Entry {
	return e.WithField("phase", phase)
}

// WithAgent adds an agent_name field to an existing entry.
func WithAgent(e *logrus.Entry, agent string) *logrus.Entry {
	return e.WithField("agent_name", agent)
}

// WithNode adds a node field to an existing entry.
func WithNode(e *logrus.Entry, node string) *logrus.Entry {
	return e.WithField("node", node)
}
