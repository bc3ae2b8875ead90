package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notahub/notahub/internal/fiscalinvoice/webhook"
)

// HandleFiscalWebhook receives NFS-e status notifications. The raw body
// is read before any parsing so the signature covers the exact bytes
// the gateway signed.
func (s *Server) HandleFiscalWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	if err := s.webhookSvc.HandleNotification(c.Request.Context(), body, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
