package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"go.uber.org/zap"
)

// maxWebhookBody caps the request body the webhook endpoint reads.
const maxWebhookBody = 1 << 20

// StripeWebhook receives processor events. The raw body is needed for
// signature verification, so this handler does not use request binding.
// A 2xx acknowledges the event; any other status makes the processor
// redeliver it later.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.respondErr(c, errorx.ErrWebhookPayload)
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.respondErr(c, errorx.ErrWebhookSignature)
		return
	}

	if err := h.reconciler.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		var apiErr *errorx.APIError
		if errors.As(err, &apiErr) {
			h.respondErr(c, apiErr)
			return
		}
		// transient failure: ask for redelivery
		h.logger.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
