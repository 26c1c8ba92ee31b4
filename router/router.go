package router

import (
	"switchboard/controllers"
	"switchboard/middleware"
	"switchboard/ratelimit"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares: public webhooks, then the
// authenticated dashboard routes behind the admin allow-list.
// ping may be nil (memory store without a database).
func Initialize(r *gin.Engine, svc *controllers.Services, ping func() error) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(svc.Config.Server.CORSOrigins))
	r.Use(controllers.SetServicesToContext(svc))

	r.GET("/health", controllers.Health(ping))

	api := r.Group("/api")
	api.Use(Logger(svc.Logger))

	public := api.Group("")
	public.Use(middleware.BodyLimit(svc.Config.Server.MaxBodyBytes))

	// Webhooks (provedores) - sem token, assinatura opcional
	public.POST("/webhooks/sms", controllers.SMSWebhook)
	public.POST("/webhooks/email", controllers.EmailWebhook)

	// Formulário público de contato (in-app)
	public.POST("/contact", controllers.ContactForm)

	// Authenticated routes (token required)
	auth := api.Group("")
	auth.Use(controllers.AuthRequired())

	// Dashboard (admin allow-list)
	admin := auth.Group("")
	admin.Use(Adminizer())

	admin.POST("/conversations/reply", controllers.ReplyToConversation)
	admin.GET("/conversations", Throttler(ratelimit.ClassAPI), controllers.ListConversations)
	admin.GET("/conversations/:id", Throttler(ratelimit.ClassAPI), controllers.GetConversation)
	admin.PATCH("/conversations/:id", Throttler(ratelimit.ClassAPI), controllers.PatchConversation)

	svc.Logger.Debug("routes initialized")
}
