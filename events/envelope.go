// Package events publishes conversation activity for downstream consumers.
package events

import (
	"time"

	"github.com/google/uuid"
)

/************************************************
/**** MARK: ROUTING KEYS ****/
/************************************************/
const (
	KEY_MESSAGE_RECEIVED  = "conversation.message.received"
	KEY_REPLY_RECORDED    = "conversation.reply.recorded"
	KEY_REPLY_DELIVERED   = "conversation.reply.delivered"
	KEY_REPLY_UNDELIVERED = "conversation.reply.failed"
	KEY_STATUS_CHANGED    = "conversation.status.changed"
)

const producer = "switchboard"

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	// Event name and version, e.g. conversation.message.received.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps data with a fresh id, the producer name and a v1 type.
func NewEnvelope(key string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: producer,
			Time:     time.Now().UTC(),
			Type:     key + ".v1",
		},
		Data: data,
	}
}

// WithCorrelation sets the correlation id (usually the conversation id).
func (e Envelope) WithCorrelation(id string) Envelope {
	if id != "" {
		e.Meta.CorrelationID = &id
	}
	return e
}

// MessageEvent is the payload of message received/recorded events.
type MessageEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	BusinessID     string `json:"business_id,omitempty"`
	Channel        string `json:"channel"`
	Direction      string `json:"direction"`
	From           string `json:"from"`
}

// DeliveryEvent is the payload of reply delivered/failed events.
type DeliveryEvent struct {
	ConversationID  string `json:"conversation_id"`
	MessageID       string `json:"message_id"`
	Channel         string `json:"channel"`
	Attempts        int    `json:"attempts"`
	ProviderReceipt string `json:"provider_receipt,omitempty"`
	Error           string `json:"error,omitempty"`
}

// StatusEvent is the payload of conversation lifecycle events.
type StatusEvent struct {
	ConversationID string `json:"conversation_id"`
	Action         string `json:"action"`
	Actor          string `json:"actor"`
}
