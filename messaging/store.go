// Package messaging holds the conversation store and the message router that
// threads inbound contacts from every channel into one conversation per customer.
package messaging

import (
	"context"
	"sort"
	"strings"

	"switchboard/models"
)

// Transition maps a conversation's current status to the next one, or refuses it.
type Transition func(current string) (string, error)

// Store is the conversation registry. Implementations synchronize internally:
// resolve-or-create is atomic per (businessID, identity) and appends to one
// conversation never interleave.
//
// A Store is process state unless it is backed by a shared database; running
// several instances against MemoryStore splits conversations between them.
type Store interface {
	// AppendInbound attaches msg to the non-archived conversation of
	// (businessID, identity), creating it when absent. A closed conversation
	// becomes active again.
	AppendInbound(ctx context.Context, businessID, identity string, msg models.Message) (models.Message, models.Conversation, error)
	// AppendReply appends a business message on the conversation's current channel.
	AppendReply(ctx context.Context, conversationID string, msg models.Message) (models.Message, models.Conversation, error)
	Get(ctx context.Context, id string) (models.Conversation, error)
	// List returns the non-archived conversations of a business, most recent activity first.
	List(ctx context.Context, businessID string) ([]models.Conversation, error)
	// MarkRead flags every unread customer message as read and returns how many changed.
	MarkRead(ctx context.Context, id string) (int, error)
	UpdateStatus(ctx context.Context, id string, transition Transition) (models.Conversation, error)
}

func routeKey(businessID, identity string) string {
	return businessID + "\x00" + identity
}

// CanonicalIdentity is the routing form of a customer identity: trimmed, and
// lower-cased when it is an email address.
func CanonicalIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if strings.Contains(identity, "@") {
		identity = strings.ToLower(identity)
	}
	return identity
}

// prepareAppend fills the store-owned fields of msg: conversation id, arrival
// sequence and a timestamp that never goes back within the conversation.
// last is the conversation's latest message, nil when there is none.
func prepareAppend(conversationID string, msg models.Message, last *models.Message) models.Message {
	msg.ConversationID = conversationID
	msg.Seq = 1
	if last != nil {
		msg.Seq = last.Seq + 1
		if msg.Timestamp.Before(last.Timestamp) {
			msg.Timestamp = last.Timestamp
		}
	}
	msg.Metadata = msg.Metadata.Clone()
	return msg
}

// checkInReplyTo refuses a reference to a message outside the conversation.
func checkInReplyTo(conv models.Conversation, msg models.Message) error {
	ref := msg.Metadata[models.META_IN_REPLY_TO]
	if ref == "" {
		return nil
	}
	for _, m := range conv.Messages {
		if m.ID == ref {
			return nil
		}
	}
	return ErrInvalidInput
}

func sortByActivity(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
