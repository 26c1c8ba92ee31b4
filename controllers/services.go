package controllers

import (
	"log/slog"

	"switchboard/channels"
	"switchboard/config"
	"switchboard/delivery"
	"switchboard/events"
	"switchboard/messaging"
	"switchboard/ratelimit"
	"switchboard/security"

	"github.com/gin-gonic/gin"
)

const servicesKey = "services"

// Services are the collaborators every handler reaches through the gin context.
type Services struct {
	Config  config.Configuration
	Router  *messaging.Router
	Limiter *ratelimit.Limiter
	Scanner *security.Scanner
	Auditor *security.Auditor
	// Outbox may be nil: replies are then recorded but never queued for delivery.
	Outbox    *delivery.Outbox
	Publisher events.Publisher
	Logger    *slog.Logger
}

// SetServicesToContext exposes svc to the handlers through the gin context.
func SetServicesToContext(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(servicesKey, svc)
		c.Next()
	}
}

func ServicesInstance(c *gin.Context) *Services {
	v, ok := c.Get(servicesKey)
	if !ok {
		return nil
	}
	svc, _ := v.(*Services)
	return svc
}

func (s *Services) limits() channels.Limits {
	return channels.Limits{
		MaxInboundLength: s.Config.Messaging.MaxInboundLength,
		MaxReplyLength:   s.Config.Messaging.MaxReplyLength,
	}
}

// servicesOr500 aborts with 500 when the services middleware is missing.
func servicesOr500(c *gin.Context) (*Services, bool) {
	svc := ServicesInstance(c)
	if svc == nil {
		RespondError(c, "services não configurados no contexto", 500)
		c.Abort()
		return nil, false
	}
	return svc, true
}
