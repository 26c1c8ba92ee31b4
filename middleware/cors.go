package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware libera CORS para o dashboard. Com allowedOrigins vazio qualquer
// origem passa; caso contrário só as origens listadas recebem os headers.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")] = true
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case len(allowed) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[strings.TrimRight(strings.ToLower(origin), "/")]:
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Add("Vary", "Origin")
		}
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		header.Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
