package models

import "time"

/************************************************
/**** MARK: CHANNELS ****/
/************************************************/
const CHANNEL_SMS = "sms"
const CHANNEL_EMAIL = "email"
const CHANNEL_IN_APP = "in_app"

/************************************************
/**** MARK: CONVERSATION STATUS ****/
/************************************************/
const CONVERSATION_STATUS_ACTIVE = "active"
const CONVERSATION_STATUS_CLOSED = "closed"
const CONVERSATION_STATUS_ARCHIVED = "archived"

// Conversation agrupa todas as mensagens de um cliente (businessId + identidade),
// independente do canal por onde cada mensagem chegou.
type Conversation struct {
	ID               string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	BusinessID       string    `gorm:"not null;index:idx_conversation_route" json:"businessId"`
	CustomerIdentity string    `gorm:"not null;index:idx_conversation_route" json:"customerIdentity"`
	Channel          string    `gorm:"not null" json:"channel"` // canal da última mensagem recebida
	Status           string    `gorm:"not null;default:'active';index" json:"status"`
	Messages         []Message `gorm:"foreignkey:ConversationID" json:"messages"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func IsValidChannel(channel string) bool {
	switch channel {
	case CHANNEL_SMS, CHANNEL_EMAIL, CHANNEL_IN_APP:
		return true
	}
	return false
}

func (c Conversation) IsArchived() bool {
	return c.Status == CONVERSATION_STATUS_ARCHIVED
}

// UnreadCount counts customer messages not yet read by an agent.
func (c Conversation) UnreadCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Direction == DIRECTION_INBOUND && m.Status == MESSAGE_STATUS_UNREAD {
			n++
		}
	}
	return n
}

// Clone returns a deep copy, so callers never share message slices or metadata maps with a store.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}
