// Package message holds the immutable record of a received publish and the
// best-effort decoding used to display it.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InboundMessage is a message as it arrived from the broker. It is never
// mutated after New returns.
type InboundMessage struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	RawPayload []byte    `json:"-"`
	ReceivedAt time.Time `json:"receivedAt"`
	Body       Body      `json:"body"`
}

// New builds an InboundMessage with a fresh random ID. The payload is copied so
// later reuse of the caller's buffer cannot change the message.
func New(topic string, payload []byte, receivedAt time.Time) InboundMessage {
	return NewWithID(uuid.NewString(), topic, payload, receivedAt)
}

// NewWithID is New with a caller-supplied ID
func NewWithID(id, topic string, payload []byte, receivedAt time.Time) InboundMessage {
	raw := make([]byte, len(payload))
	copy(raw, payload)

	return InboundMessage{
		ID:         id,
		Topic:      topic,
		RawPayload: raw,
		ReceivedAt: receivedAt,
		Body:       Decode(raw),
	}
}

// DisplayText renders the message the way the feed shows it
func (m InboundMessage) DisplayText() string {
	return fmt.Sprintf("Topic: %s\nData: %s", m.Topic, m.Body.Render())
}
