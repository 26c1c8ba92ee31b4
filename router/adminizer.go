package router

import (
	"switchboard/controllers"
	"switchboard/security"

	"github.com/gin-gonic/gin"
)

// Adminizer blocks access when the authenticated identity is not in the admin allow-list.
func Adminizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := controllers.ServicesInstance(c)
		identity, ok := controllers.GetIdentity(c)
		if svc == nil || !ok {
			controllers.RespondAPIError(c, &controllers.APIError{Code: controllers.ErrorAuthenticationRequired, Reason: "unauthorized"})
			return
		}
		if !svc.Config.Security.IsAdmin(identity) {
			svc.Auditor.LogSecurityEvent(security.KindForbidden, map[string]string{
				"identity": identity,
				"path":     c.FullPath(),
				"ip":       c.ClientIP(),
			}, security.SeverityMedium)
			controllers.RespondAPIError(c, &controllers.APIError{Code: controllers.ErrorForbidden, Reason: "admin required"})
			return
		}
		c.Next()
	}
}
