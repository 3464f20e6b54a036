package flow

import (
	"github.com/sarchlab/flowsim/sim"
	"github.com/sirupsen/logrus"
)

// AnomalyLogger is a Monitor hook that logs new flows, lost packets and
// odd receptions.
type AnomalyLogger struct {
	Logger logrus.FieldLogger
}

// NewAnomalyLogger creates an AnomalyLogger. A nil logger means the logrus
// standard logger.
func NewAnomalyLogger(logger logrus.FieldLogger) *AnomalyLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &AnomalyLogger{Logger: logger}
}

// Func logs the hook item.
func (h *AnomalyLogger) Func(ctx sim.HookCtx) {
	switch item := ctx.Item.(type) {
	case FlowStats:
		h.Logger.WithFields(logrus.Fields{
			"flow": item.FlowID,
			"key":  item.Key.String(),
		}).Info("new flow")
	case LostPacket:
		h.Logger.WithFields(logrus.Fields{
			"flow":   item.FlowID,
			"packet": item.PacketID,
			"age":    item.Age,
		}).Debug("packet lost")
	case PacketDescriptor:
		entry := h.Logger.WithFields(logrus.Fields{
			"packet": item.ID,
			"key":    KeyOf(item).String(),
		})

		switch ctx.Pos {
		case HookPosDuplicateRx:
			entry.Warn("duplicate reception")
		case HookPosUnmatchedRx:
			entry.Warn("reception of a packet not in flight")
		}
	}
}
