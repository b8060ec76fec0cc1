// internal/controller/webhook_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

type WebhookIngestor interface {
	Handle(ctx context.Context, ev service.WebhookEvent) (*service.WebhookResult, error)
}

type WebhookController struct {
	Webhooks WebhookIngestor
	Reporter telemetry.ErrorReporter
}

// POST /api/webhooks/resend
func (c *WebhookController) Resend(w http.ResponseWriter, r *http.Request) {
	var ev service.WebhookEvent
	if err := DecodeJSON(r, &ev); err != nil {
		WriteError(w, r, c.Reporter, "webhook", err)
		return
	}

	result, err := c.Webhooks.Handle(r.Context(), ev)
	if err != nil {
		WriteError(w, r, c.Reporter, "webhook", err)
		return
	}
	WriteSuccess(w, r, http.StatusOK, result)
}
