package delivery

import (
	"errors"
	"net/http"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PushHandler receives Pub/Sub push deliveries of Gmail notifications
type PushHandler struct {
	gateway *usecase.NotificationGateway
	log     zerolog.Logger
}

func NewPushHandler(gateway *usecase.NotificationGateway, log zerolog.Logger) *PushHandler {
	return &PushHandler{gateway: gateway, log: log}
}

// HandlePush acknowledges every delivery it authenticates, including ones it
// cannot parse or fails to sync; Pub/Sub redelivers anything else.
// POST /api/gmail/push?token=<secret>
func (h *PushHandler) HandlePush(c *gin.Context) {
	var env usecase.PushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		// An empty envelope still goes through the token check and is then
		// rejected as malformed.
		env = usecase.PushEnvelope{}
	}

	out, err := h.gateway.HandlePush(c.Request.Context(), c.Query("token"), env)
	switch {
	case errors.Is(err, domain.ErrAuth):
		h.log.Warn().Str("remote", c.ClientIP()).Msg("push rejected: token mismatch")
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	case err != nil:
		h.log.Warn().Err(err).Str("pubsub_message_id", env.Message.MessageID).Msg("push acknowledged without processing")
		c.Status(http.StatusNoContent)
		return
	}

	resp := gin.H{"outcome": out}
	if out.Err != nil {
		resp["error"] = out.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
