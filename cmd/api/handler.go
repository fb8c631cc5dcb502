package api

import (
	"net/http"
	"time"

	authUsecase "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/usecase"
	mailsyncDelivery "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/delivery"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/logger"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/sse"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Handler struct {
	authUsecase    authUsecase.AuthUsecase
	pushHandler    *mailsyncDelivery.PushHandler
	mailboxHandler *mailsyncDelivery.MailboxHandler
	sseManager     *sse.Manager
	log            zerolog.Logger
}

// NewHandler wires the HTTP surface. A nil authUc leaves the admin API and
// event stream unmounted.
func NewHandler(authUc authUsecase.AuthUsecase, gateway *usecase.NotificationGateway, mailboxUc usecase.MailboxUsecase, sseManager *sse.Manager, log zerolog.Logger) *Handler {
	if authUc == nil {
		log.Warn().Msg("ADMIN_JWT_SECRET not set, admin API and event stream disabled")
	}
	return &Handler{
		authUsecase:    authUc,
		pushHandler:    mailsyncDelivery.NewPushHandler(gateway, logger.Component(log, "push")),
		mailboxHandler: mailsyncDelivery.NewMailboxHandler(mailboxUc),
		sseManager:     sseManager,
		log:            log,
	}
}

// Router builds the gin engine with CORS, request logging and all routes
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(h.log))

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.pushHandler, h.mailboxHandler, h.sseManager)
	return r
}

// Server returns an http.Server for addr; the caller owns ListenAndServe and Shutdown.
// WriteTimeout stays zero so SSE streams are not cut.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
