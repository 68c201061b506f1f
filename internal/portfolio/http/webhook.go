package http

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pmohub/wbs-sync-backend/internal/remote"
)

// sheetWebhook receives row events from the remote spreadsheet service.
// Verification requests carry a challenge that must be echoed back; event
// payloads are dispatched row by row to the same processing path polling
// uses. Authenticated with a shared secret header when one is configured.
func (h *Handler) sheetWebhook(c *gin.Context) {
	if h.webhookSecret != "" {
		secret := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid webhook secret"})
			return
		}
	}

	var payload remote.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("[webhook] bad payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	if payload.Challenge != "" {
		c.JSON(http.StatusOK, gin.H{"smartsheetHookResponse": payload.Challenge})
		return
	}

	processed := 0
	failed := 0
	for _, ev := range payload.Events {
		if ev.ObjectType != "row" {
			continue
		}
		if ev.EventType != "created" && ev.EventType != "updated" {
			continue
		}
		if err := h.poller.ProcessRowID(c.Request.Context(), ev.RowID); err != nil {
			log.Printf("[webhook] row %d: %v", ev.RowID, err)
			failed++
			continue
		}
		processed++
	}

	c.JSON(http.StatusOK, gin.H{"ok": failed == 0, "processed": processed, "failed": failed})
}
