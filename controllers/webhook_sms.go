package controllers

import (
	"encoding/xml"
	"net/http"

	"switchboard/channels"
	"switchboard/events"
	"switchboard/models"
	"switchboard/ratelimit"
	"switchboard/security"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// twimlResponse is the acknowledgment Twilio expects; Message is the optional auto-reply.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// SMSWebhook receives Twilio inbound messages (form-encoded).
func SMSWebhook(c *gin.Context) {
	svc, ok := servicesOr500(c)
	if !ok {
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		rejectPayload(c, svc, err)
		return
	}
	if token := svc.Config.Security.TwilioAuthToken; token != "" {
		if ok, reason := verifyTwilioSignature(c, token, svc.Config.Security.PublicBaseURL); !ok {
			svc.Auditor.LogSecurityEvent(security.KindInvalidSignature, map[string]string{
				"path":   c.FullPath(),
				"ip":     c.ClientIP(),
				"reason": reason,
			}, security.SeverityHigh)
			RespondAPIError(c, newAPIError(ErrorForbidden, "forbidden: "+reason, nil))
			return
		}
	}

	var payload channels.SMSPayload
	if err := c.ShouldBindWith(&payload, binding.Form); err != nil {
		rejectPayload(c, svc, err)
		return
	}
	in, err := payload.Normalize(svc.limits())
	if err != nil {
		rejectPayload(c, svc, err)
		return
	}

	if !Admit(c, svc, in.Identity, ratelimit.ClassSMSInbound) {
		return
	}
	if !screen(c, svc, in.Identity, "Body", in.Content) {
		return
	}

	msg, err := svc.Router.HandleIncomingMessage(c.Request.Context(), in.Identity, in.Content, in.Channel, in.BusinessID, in.Metadata)
	if err != nil {
		ingestFailure(c, svc, "sms ingest", err)
		return
	}
	svc.publish(events.KEY_MESSAGE_RECEIVED, msg.ConversationID, messageEvent(msg, ""))

	if err := RespondXML(c, http.StatusOK, twimlResponse{Message: svc.Config.Messaging.AutoReply}); err != nil {
		internalFailure(c, svc, "twiml", err)
	}
}

func messageEvent(msg models.Message, businessID string) events.MessageEvent {
	return events.MessageEvent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		BusinessID:     businessID,
		Channel:        msg.Channel,
		Direction:      msg.Direction,
		From:           msg.From,
	}
}
