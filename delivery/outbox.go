package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/jinzhu/gorm"

	"switchboard/models"
)

// Outbox records replies waiting for physical delivery. The delivery worker drains it.
type Outbox struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

// Enqueue stores a pending delivery of reply to the conversation's customer.
// Enqueuing the same message twice keeps the first row.
func (o *Outbox) Enqueue(_ context.Context, conv models.Conversation, reply models.Message) (models.OutboundDelivery, error) {
	var existing models.OutboundDelivery
	err := o.db.Where("message_id = ?", reply.ID).First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return models.OutboundDelivery{}, err
	}

	now := o.now().UTC()
	row := models.OutboundDelivery{
		MessageID:      reply.ID,
		ConversationID: conv.ID,
		Channel:        reply.Channel,
		Recipient:      conv.CustomerIdentity,
		Body:           reply.Body,
		Status:         models.DELIVERY_STATUS_PENDING,
		NextAttemptAt:  &now,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
	if reply.Channel == models.CHANNEL_EMAIL {
		row.Subject, row.InReplyTo = emailThread(conv)
	}
	if err := o.db.Create(&row).Error; err != nil {
		return models.OutboundDelivery{}, err
	}
	return row, nil
}

// emailThread derives the reply subject and In-Reply-To from the customer's latest email.
func emailThread(conv models.Conversation) (subject, inReplyTo string) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.Direction != models.DIRECTION_INBOUND || m.Channel != models.CHANNEL_EMAIL {
			continue
		}
		subject = strings.TrimSpace(m.Metadata[models.META_SUBJECT])
		inReplyTo = m.Metadata[models.META_PROVIDER_MESSAGE_ID]
		break
	}
	return ReplySubject(subject), inReplyTo
}

// ReplySubject prefixes "Re: " once.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your message"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
