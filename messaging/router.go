package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"switchboard/models"
)

// Router threads inbound messages into conversations and exposes the agent-side
// operations (replies, read state, lifecycle). Callers validate identities and
// content before calling it; the router only refuses what would corrupt state.
type Router struct {
	store             Store
	logger            *slog.Logger
	defaultBusinessID string
	now               func() time.Time
}

func NewRouter(store Store, logger *slog.Logger, defaultBusinessID string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:             store,
		logger:            logger.With(slog.String("component", "router")),
		defaultBusinessID: defaultBusinessID,
		now:               time.Now,
	}
}

// SetClock replaces the time source (tests).
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Router) businessOrDefault(businessID string) string {
	if b := strings.TrimSpace(businessID); b != "" {
		return b
	}
	return r.defaultBusinessID
}

// HandleIncomingMessage records a customer message on the open conversation of
// (businessID, fromIdentity), creating the conversation on first contact.
func (r *Router) HandleIncomingMessage(ctx context.Context, fromIdentity, content, channel, businessID string, metadata models.Metadata) (models.Message, error) {
	identity := CanonicalIdentity(fromIdentity)
	if identity == "" || strings.TrimSpace(content) == "" {
		return models.Message{}, fmt.Errorf("inbound message: %w", ErrInvalidInput)
	}
	if !models.IsValidChannel(channel) {
		return models.Message{}, fmt.Errorf("inbound channel %q: %w", channel, ErrInvalidInput)
	}
	businessID = r.businessOrDefault(businessID)

	msg := models.Message{
		ID:        uuid.NewString(),
		Channel:   channel,
		Direction: models.DIRECTION_INBOUND,
		From:      identity,
		Body:      content,
		Status:    models.MESSAGE_STATUS_UNREAD,
		Metadata:  metadata.Clone(),
		Timestamp: r.now().UTC(),
	}

	stored, conv, err := r.store.AppendInbound(ctx, businessID, identity, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("append inbound: %w", err)
	}
	r.logger.Debug("inbound message stored",
		slog.String("conversation_id", conv.ID),
		slog.String("message_id", stored.ID),
		slog.String("channel", channel),
		slog.Int("messages", len(conv.Messages)),
	)
	return stored, nil
}

// SendReply records an agent reply on the conversation's current channel. It does
// not deliver it: the caller hands the returned message to the outbound side.
// ErrNotFound and ErrArchived mean there is no live conversation to reply to.
func (r *Router) SendReply(ctx context.Context, conversationID, content, agentIdentity, inReplyToMessageID string) (models.Message, error) {
	agent := strings.TrimSpace(agentIdentity)
	if agent == "" || strings.TrimSpace(content) == "" {
		return models.Message{}, fmt.Errorf("reply: %w", ErrInvalidInput)
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Direction: models.DIRECTION_OUTBOUND,
		From:      agent,
		Body:      content,
		Status:    models.MESSAGE_STATUS_READ,
		Timestamp: r.now().UTC(),
	}
	if ref := strings.TrimSpace(inReplyToMessageID); ref != "" {
		msg.Metadata = models.Metadata{models.META_IN_REPLY_TO: ref}
	}

	stored, _, err := r.store.AppendReply(ctx, conversationID, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("append reply: %w", err)
	}
	r.logger.Debug("reply stored",
		slog.String("conversation_id", conversationID),
		slog.String("message_id", stored.ID),
		slog.String("agent", agent),
	)
	return stored, nil
}

// GetConversation returns ErrNotFound for unknown ids. Archived conversations are returned.
func (r *Router) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	return r.store.Get(ctx, id)
}

// GetActiveConversations lists active and closed conversations of a business, latest activity first.
func (r *Router) GetActiveConversations(ctx context.Context, businessID string) ([]models.Conversation, error) {
	return r.store.List(ctx, r.businessOrDefault(businessID))
}

// MarkConversationAsRead marks every customer message read. Calling it again changes nothing.
func (r *Router) MarkConversationAsRead(ctx context.Context, conversationID, readerIdentity string) error {
	n, err := r.store.MarkRead(ctx, conversationID)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Debug("conversation read",
			slog.String("conversation_id", conversationID),
			slog.String("reader", readerIdentity),
			slog.Int("messages", n),
		)
	}
	return nil
}

// CloseConversation moves an active or closed conversation to closed. It returns
// false when the conversation does not exist or is archived.
func (r *Router) CloseConversation(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, func(current string) (string, error) {
		if current == models.CONVERSATION_STATUS_ARCHIVED {
			return "", ErrArchived
		}
		return models.CONVERSATION_STATUS_CLOSED, nil
	})
}

// ArchiveConversation archives any non-archived conversation. Archiving is terminal.
func (r *Router) ArchiveConversation(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, func(current string) (string, error) {
		if current == models.CONVERSATION_STATUS_ARCHIVED {
			return "", ErrArchived
		}
		return models.CONVERSATION_STATUS_ARCHIVED, nil
	})
}

// ReopenConversation moves a closed conversation back to active.
func (r *Router) ReopenConversation(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, func(current string) (string, error) {
		if current == models.CONVERSATION_STATUS_ARCHIVED {
			return "", ErrArchived
		}
		return models.CONVERSATION_STATUS_ACTIVE, nil
	})
}

func (r *Router) transition(ctx context.Context, id string, t Transition) (bool, error) {
	conv, err := r.store.UpdateStatus(ctx, id, t)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrArchived):
		return false, nil
	case err != nil:
		return false, err
	}
	r.logger.Debug("conversation status",
		slog.String("conversation_id", conv.ID),
		slog.String("status", conv.Status),
	)
	return true, nil
}
