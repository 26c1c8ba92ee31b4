package controllers

import (
	"net/http"

	"switchboard/channels"
	"switchboard/events"
	"switchboard/ratelimit"

	"github.com/gin-gonic/gin"
)

// ContactForm receives the public in-app contact form.
func ContactForm(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}

	var payload channels.ContactFormPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		rejectPayload(c, svc, err)
		return
	}
	in, err := payload.Normalize(svc.limits())
	if err != nil {
		rejectPayload(c, svc, err)
		return
	}

	if !Admit(c, svc, in.Identity, ratelimit.ClassFormInbound) {
		return
	}
	if !screen(c, svc, in.Identity, "message", in.Content) || !screen(c, svc, in.Identity, "name", in.Metadata["name"]) {
		return
	}

	msg, err := svc.Router.HandleIncomingMessage(c.Request.Context(), in.Identity, in.Content, in.Channel, in.BusinessID, in.Metadata)
	if err != nil {
		ingestFailure(c, svc, "form ingest", err)
		return
	}
	svc.publish(events.KEY_MESSAGE_RECEIVED, msg.ConversationID, messageEvent(msg, in.BusinessID))

	c.JSON(http.StatusOK, EmailWebhookResponse{
		Success:        true,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
}
