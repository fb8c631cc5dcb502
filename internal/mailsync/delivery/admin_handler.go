package delivery

import (
	"errors"
	"net/http"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"

	"github.com/gin-gonic/gin"
)

// MailboxHandler serves the administrative mailbox API
type MailboxHandler struct {
	mailboxUsecase usecase.MailboxUsecase
}

// NewMailboxHandler creates a new MailboxHandler
func NewMailboxHandler(mailboxUsecase usecase.MailboxUsecase) *MailboxHandler {
	return &MailboxHandler{mailboxUsecase: mailboxUsecase}
}

// WatchRequest is the optional body of a watch registration
type WatchRequest struct {
	Topic    string   `json:"topic"`
	LabelIDs []string `json:"label_ids"`
}

// ListMailboxes returns the sync status of every known mailbox
// GET /api/admin/mailboxes
func (h *MailboxHandler) ListMailboxes(c *gin.Context) {
	mailboxes, err := h.mailboxUsecase.ListMailboxes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mailboxes": mailboxes})
}

// GET /api/admin/mailboxes/:mailbox/status
func (h *MailboxHandler) GetStatus(c *gin.Context) {
	status, err := h.mailboxUsecase.GetStatus(c.Request.Context(), c.Param("mailbox"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SyncNow runs a manual catch-up pass
// POST /api/admin/mailboxes/:mailbox/sync
func (h *MailboxHandler) SyncNow(c *gin.Context) {
	result, err := h.mailboxUsecase.SyncNow(c.Request.Context(), c.Param("mailbox"))
	if err != nil {
		respondErrorWith(c, err, gin.H{"result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created_count": result.CreatedCount(),
		"latest_cursor": domain.FormatCursor(result.Cursor),
		"result":        result,
	})
}

// RegisterWatch (re)registers push notifications for a mailbox
// POST /api/admin/mailboxes/:mailbox/watch
func (h *MailboxHandler) RegisterWatch(c *gin.Context) {
	var req WatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.mailboxUsecase.RegisterWatch(c.Request.Context(), c.Param("mailbox"), req.Topic, req.LabelIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DELETE /api/admin/mailboxes/:mailbox/watch
func (h *MailboxHandler) StopWatch(c *gin.Context) {
	if err := h.mailboxUsecase.StopWatch(c.Request.Context(), c.Param("mailbox")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/admin/messages/:id
func (h *MailboxHandler) GetMessage(c *gin.Context) {
	msg, err := h.mailboxUsecase.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, nil)
}

func respondErrorWith(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrMalformedNotification):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoCursor), errors.Is(err, domain.ErrCursorExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCursorNotFound), errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransientFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
