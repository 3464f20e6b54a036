package sim

import (
	"github.com/sirupsen/logrus"
)

// EventLogger is a hook that logs every event that fires.
type EventLogger struct {
	Logger logrus.FieldLogger
}

// NewEventLogger returns a new EventLogger that writes into the logger. A nil
// logger means the logrus standard logger.
func NewEventLogger(logger logrus.FieldLogger) *EventLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &EventLogger{Logger: logger}
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(EventInfo)
	if !ok {
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"time": evt.Time.Seconds(),
		"seq":  evt.Seq,
	}).Debug("event")
}
