package models

import "time"

/************************************************
/**** MARK: MESSAGE STATUS ****/
/************************************************/
const MESSAGE_STATUS_UNREAD = "unread"
const MESSAGE_STATUS_READ = "read"

/************************************************
/**** MARK: MESSAGE DIRECTION ****/
/************************************************/
const DIRECTION_INBOUND = "inbound"   // cliente -> empresa
const DIRECTION_OUTBOUND = "outbound" // empresa -> cliente

/************************************************
/**** MARK: METADATA KEYS ****/
/************************************************/
const META_SUBJECT = "subject"
const META_PROVIDER_MESSAGE_ID = "provider_message_id"
const META_IN_REPLY_TO = "in_reply_to"
const META_RECIPIENT = "recipient"

// Message is immutable once stored, apart from Status going unread -> read.
type Message struct {
	ID             string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversationId"`
	Seq            int64     `gorm:"not null;default:0" json:"-"` // ordem de chegada dentro da conversa
	Channel        string    `gorm:"not null" json:"channel"`
	Direction      string    `gorm:"not null" json:"direction"`
	From           string    `gorm:"column:sender;not null" json:"from"`
	Body           string    `gorm:"type:text" json:"body"`
	Status         string    `gorm:"not null;default:'unread'" json:"status"`
	Metadata       Metadata  `gorm:"type:text" json:"metadata,omitempty"`
	Timestamp      time.Time `gorm:"column:sent_at;not null" json:"timestamp"`
}

func (m Message) Clone() Message {
	out := m
	out.Metadata = m.Metadata.Clone()
	return out
}
