package messaging

import (
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/games"
	"time"
)

// Messenger implements games.Messenger by publishing one
// event.PlayerMessage per recipient.
type Messenger struct {
	outbox *Outbox
	now    func() time.Time
}

// NewMessenger creates a new Messenger that publishes via the given Outbox.
func NewMessenger(outbox *Outbox) *Messenger {
	return &Messenger{
		outbox: outbox,
		now:    time.Now,
	}
}

// Broadcast the message to all recipients.
func (m *Messenger) Broadcast(recipients []games.PlayerID, message games.MessageKey, placeholders games.Placeholders) {
	timestamp := m.now()
	for _, recipient := range recipients {
		m.outbox.Enqueue(TopicPlayerMessages(string(recipient)), event.PlayerMessage{
			PlayerID:     string(recipient),
			Message:      string(message),
			Placeholders: placeholders,
			Timestamp:    timestamp,
		})
	}
}
