package models

import "time"

/************************************************
/**** MARK: DELIVERY STATUS ****/
/************************************************/
const DELIVERY_STATUS_PENDING = "pending"
const DELIVERY_STATUS_PROCESSING = "processing"
const DELIVERY_STATUS_SENT = "sent"
const DELIVERY_STATUS_FAILED = "failed"

// OutboundDelivery é a fila (outbox) de respostas já gravadas que ainda precisam ser enviadas
// pelo provedor do canal. Entra como "pending" e o worker de entrega processa.
type OutboundDelivery struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	MessageID       string     `gorm:"not null;unique_index" json:"messageId"`
	ConversationID  string     `gorm:"not null;index" json:"conversationId"`
	Channel         string     `gorm:"not null" json:"channel"`
	Recipient       string     `gorm:"not null" json:"recipient"`
	Subject         string     `gorm:"default:''" json:"subject"`
	InReplyTo       string     `gorm:"default:''" json:"inReplyTo"` // Message-ID do email do cliente
	Body            string     `gorm:"type:text" json:"body"`
	Status          string     `gorm:"not null;default:'pending';index" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt   *time.Time `gorm:"index" json:"nextAttemptAt"`
	// ClaimedAt marca o início do lease de um worker sobre a linha "processing".
	ClaimedAt       *time.Time `gorm:"index" json:"claimedAt"`
	ProviderReceipt string     `gorm:"default:''" json:"providerReceipt"`
	LastError       string     `gorm:"type:text" json:"lastError"`
	SentAt          *time.Time `json:"sentAt"`
	CreatedAt       *time.Time `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt"`
}
