package conversation

import (
	"context"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// ReplySender delivers a reply to the customer through the messaging
// platform.
type ReplySender interface {
	SendReply(ctx context.Context, key events.ConversationKey, reply Reply) error
}

// LogSender logs replies instead of sending them.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendReply(_ context.Context, key events.ConversationKey, reply Reply) error {
	labels := make([]string, 0, len(reply.Options))
	for _, o := range reply.Options {
		labels = append(labels, o.Label)
	}
	s.logger.WithConversation(key.SalonID, key.CustomerHandle).Info("outbound reply",
		"kind", reply.Kind,
		"body", reply.Body,
		"options", labels,
	)
	return nil
}
