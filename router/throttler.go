package router

import (
	"switchboard/controllers"

	"github.com/gin-gonic/gin"
)

// Throttler admits authenticated dashboard calls through the rate limiter under class.
// Webhooks are throttled inside their handlers, since the identity lives in the payload.
func Throttler(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := controllers.ServicesInstance(c)
		identity, ok := controllers.GetIdentity(c)
		if svc == nil || !ok {
			controllers.RespondAPIError(c, &controllers.APIError{Code: controllers.ErrorAuthenticationRequired, Reason: "unauthorized"})
			return
		}
		if !controllers.Admit(c, svc, identity, class) {
			return
		}
		c.Next()
	}
}
