package controllers

import (
	"encoding/json"
	"net/http"

	"switchboard/channels"
	"switchboard/events"
	"switchboard/models"
	"switchboard/ratelimit"
	"switchboard/security"

	"github.com/gin-gonic/gin"
)

type EmailWebhookResponse struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// EmailWebhook receives inbound email as JSON from the mail provider.
func EmailWebhook(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		rejectPayload(c, svc, err)
		return
	}
	if secret := svc.Config.Security.EmailWebhookSecret; secret != "" {
		if ok, reason := verifyEmailSignature(c, secret, raw); !ok {
			svc.Auditor.LogSecurityEvent(security.KindInvalidSignature, map[string]string{
				"path":   c.FullPath(),
				"ip":     c.ClientIP(),
				"reason": reason,
			}, security.SeverityHigh)
			RespondAPIError(c, newAPIError(ErrorForbidden, "forbidden: "+reason, nil))
			return
		}
	}

	var payload channels.EmailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rejectPayload(c, svc, err)
		return
	}
	in, err := payload.Normalize(svc.limits())
	if err != nil {
		rejectPayload(c, svc, err)
		return
	}

	if !Admit(c, svc, in.Identity, ratelimit.ClassEmailInbound) {
		return
	}
	if !screen(c, svc, in.Identity, "subject", in.Metadata[models.META_SUBJECT]) ||
		!screen(c, svc, in.Identity, "text", in.Content) {
		return
	}

	msg, err := svc.Router.HandleIncomingMessage(c.Request.Context(), in.Identity, in.Content, in.Channel, in.BusinessID, in.Metadata)
	if err != nil {
		ingestFailure(c, svc, "email ingest", err)
		return
	}
	svc.publish(events.KEY_MESSAGE_RECEIVED, msg.ConversationID, messageEvent(msg, ""))

	c.JSON(http.StatusOK, EmailWebhookResponse{
		Success:        true,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
}
