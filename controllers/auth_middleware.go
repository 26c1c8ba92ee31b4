package controllers

import (
	"strings"

	"switchboard/security"

	"github.com/gin-gonic/gin"
)

const ctxIdentityKey = "auth_identity"

// AuthRequired validates the Bearer token and stores the caller identity in the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := servicesOr500(c)
		if !ok {
			return
		}

		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			RespondAPIError(c, newAPIError(ErrorAuthenticationRequired, "authentication required", nil))
			return
		}
		token := strings.TrimSpace(h[len("Bearer "):])
		identity, err := parseAgentToken(token, svc.Config.Security.JWTSecret)
		if err != nil {
			svc.Auditor.LogSecurityEvent(security.KindAuthFailure, map[string]string{
				"path":   c.FullPath(),
				"ip":     c.ClientIP(),
				"reason": err.Error(),
			}, security.SeverityLow)
			RespondAPIError(c, newAPIError(ErrorAuthenticationRequired, "invalid token", err))
			return
		}

		c.Set(ctxIdentityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the identity stored by AuthRequired.
func GetIdentity(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxIdentityKey)
	if !ok {
		return "", false
	}
	identity, ok := v.(string)
	return identity, ok && identity != ""
}
