package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"switchboard/channels"
	"switchboard/events"
	"switchboard/messaging"
	"switchboard/models"
	"switchboard/ratelimit"

	"github.com/gin-gonic/gin"
)

/************************************************
/**** MARK: PATCH ACTIONS ****/
/************************************************/
const ACTION_CLOSE = "close"
const ACTION_ARCHIVE = "archive"
const ACTION_MARK_READ = "mark-read"
const ACTION_REOPEN = "reopen"

// ConversationView is a conversation as the dashboard sees it.
type ConversationView struct {
	models.Conversation
	UnreadCount int `json:"unreadCount"`
}

func viewOf(conv models.Conversation) ConversationView {
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return ConversationView{Conversation: conv, UnreadCount: conv.UnreadCount()}
}

type ReplyResponse struct {
	Success        bool           `json:"success"`
	Message        models.Message `json:"message"`
	ConversationID string         `json:"conversationId"`
	// queued, skipped (no outbox) or error (recorded but not queued)
	Delivery string `json:"delivery"`
}

// ReplyToConversation records an agent reply and queues it for delivery.
func ReplyToConversation(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}
	identity, ok := GetIdentity(c)
	if !ok {
		RespondAPIError(c, newAPIError(ErrorAuthenticationRequired, "authentication required", nil))
		return
	}

	var payload channels.InAppPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		rejectPayload(c, svc, err)
		return
	}
	payload.Identity = identity
	reply, err := payload.Normalize(svc.limits())
	if err != nil {
		rejectPayload(c, svc, err)
		return
	}

	if !Admit(c, svc, identity, ratelimit.ClassReply) {
		return
	}
	if !screen(c, svc, identity, "replyContent", reply.Content) {
		return
	}

	ctx := c.Request.Context()
	msg, err := svc.Router.SendReply(ctx, reply.ConversationID, reply.Content, reply.AgentIdentity, reply.InReplyToMessageID)
	switch {
	case errors.Is(err, messaging.ErrNotFound), errors.Is(err, messaging.ErrArchived):
		RespondAPIError(c, newAPIError(ErrorNotFound, "conversation not found", err))
		return
	case errors.Is(err, messaging.ErrInvalidInput):
		RespondAPIError(c, newAPIError(ErrorValidationFailed, "invalid reply", err))
		return
	case err != nil:
		internalFailure(c, svc, "send reply", err)
		return
	}
	svc.publish(events.KEY_REPLY_RECORDED, msg.ConversationID, messageEvent(msg, ""))

	status := "skipped"
	if svc.Outbox != nil {
		status = "queued"
		if err := enqueueReply(c, svc, msg); err != nil {
			// a resposta já foi gravada; a falha de fila não desfaz nada
			svc.Logger.Error("enqueue reply failed",
				slog.String("conversation_id", msg.ConversationID),
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
			status = "error"
		}
	}

	RespondSuccess(c, ReplyResponse{
		Success:        true,
		Message:        msg,
		ConversationID: msg.ConversationID,
		Delivery:       status,
	})
}

func enqueueReply(c *gin.Context, svc *Services, msg models.Message) error {
	conv, err := svc.Router.GetConversation(c.Request.Context(), msg.ConversationID)
	if err != nil {
		return err
	}
	_, err = svc.Outbox.Enqueue(c.Request.Context(), conv, msg)
	return err
}

// ListConversations returns the active and closed conversations of a business.
func ListConversations(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}
	convs, err := svc.Router.GetActiveConversations(c.Request.Context(), c.Query("businessId"))
	if err != nil {
		internalFailure(c, svc, "list conversations", err)
		return
	}

	views := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, viewOf(conv))
	}
	RespondSuccess(c, gin.H{"conversations": views})
}

// GetConversation returns one conversation and marks it read.
func GetConversation(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}
	identity, _ := GetIdentity(c)
	id, ok := ParamConversationID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := svc.Router.MarkConversationAsRead(ctx, id, identity); err != nil {
		if errors.Is(err, messaging.ErrNotFound) {
			RespondAPIError(c, newAPIError(ErrorNotFound, "conversation not found", err))
			return
		}
		internalFailure(c, svc, "mark read", err)
		return
	}

	conv, err := svc.Router.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, messaging.ErrNotFound) {
			RespondAPIError(c, newAPIError(ErrorNotFound, "conversation not found", err))
			return
		}
		internalFailure(c, svc, "get conversation", err)
		return
	}
	RespondSuccess(c, viewOf(conv))
}

type PatchConversationInput struct {
	Action string `json:"action" binding:"required,oneof=close archive mark-read reopen"`
}

// PatchConversation applies a lifecycle action.
func PatchConversation(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}
	identity, _ := GetIdentity(c)
	id, ok := ParamConversationID(c, "id")
	if !ok {
		return
	}

	var input PatchConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondAPIError(c, newAPIError(ErrorValidationFailed, "action must be one of close, archive, mark-read, reopen", err))
		return
	}

	ctx := c.Request.Context()
	var (
		applied bool
		err     error
	)
	switch input.Action {
	case ACTION_CLOSE:
		applied, err = svc.Router.CloseConversation(ctx, id)
	case ACTION_ARCHIVE:
		applied, err = svc.Router.ArchiveConversation(ctx, id)
	case ACTION_REOPEN:
		applied, err = svc.Router.ReopenConversation(ctx, id)
	case ACTION_MARK_READ:
		err = svc.Router.MarkConversationAsRead(ctx, id, identity)
		applied = err == nil
		if errors.Is(err, messaging.ErrNotFound) {
			applied, err = false, nil
		}
	}
	if err != nil {
		internalFailure(c, svc, "patch conversation", err)
		return
	}
	if !applied {
		RespondAPIError(c, newAPIError(ErrorNotFound, "conversation not found", nil))
		return
	}

	conv, err := svc.Router.GetConversation(ctx, id)
	if err != nil {
		internalFailure(c, svc, "get conversation", err)
		return
	}
	svc.publish(events.KEY_STATUS_CHANGED, id, events.StatusEvent{
		ConversationID: id,
		Action:         input.Action,
		Actor:          identity,
	})
	RespondSuccess(c, gin.H{"success": true, "conversation": viewOf(conv)})
}

// Health answers liveness; ping, when given, checks the database.
func Health(ping func() error) gin.HandlerFunc {
	started := time.Now()
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if ping != nil {
			if err := ping(); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status": status,
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	}
}
