package api

import (
	"net/http"

	authDelivery "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/delivery"
	authUsecase "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/usecase"
	mailsyncDelivery "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/delivery"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/sse"

	"github.com/gin-gonic/gin"
)

// SetupRoutes mounts the push endpoint and, when authUsecase is set, the admin API.
func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, pushHandler *mailsyncDelivery.PushHandler, mailboxHandler *mailsyncDelivery.MailboxHandler, sseManager *sse.Manager) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pub/Sub push delivery, authenticated by the shared token
		api.POST("/gmail/push", pushHandler.HandlePush)

		if authUsecase == nil {
			return
		}

		// SSE stream of ingest events, optionally filtered by ?mailbox=
		api.GET("/events", authDelivery.AuthMiddleware(authUsecase), func(c *gin.Context) {
			sseManager.ServeHTTP(c, c.Query("mailbox"))
		})

		// Admin routes (protected)
		admin := api.Group("/admin")
		admin.Use(authDelivery.AuthMiddleware(authUsecase))
		{
			admin.GET("/mailboxes", mailboxHandler.ListMailboxes)
			admin.GET("/mailboxes/:mailbox/status", mailboxHandler.GetStatus)
			admin.POST("/mailboxes/:mailbox/sync", mailboxHandler.SyncNow)
			admin.POST("/mailboxes/:mailbox/watch", mailboxHandler.RegisterWatch)
			admin.DELETE("/mailboxes/:mailbox/watch", mailboxHandler.StopWatch)
			admin.GET("/messages/:id", mailboxHandler.GetMessage)
		}
	}
}
