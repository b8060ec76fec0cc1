// internal/controller/waitlist_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

type Waitlister interface {
	Join(ctx context.Context, req service.JoinRequest) (*service.JoinResult, error)
	RecentSignups(ctx context.Context) ([]model.SignupNotice, error)
	SendPendingWelcomes(ctx context.Context) (*service.WelcomeBatchResult, error)
}

type WaitlistController struct {
	Waitlist Waitlister
	// Stream upgrades GET /api/recent-signups/ws. Unset means the route is not served.
	Stream   http.Handler
	Reporter telemetry.ErrorReporter
}

// POST /api/waitlist
func (c *WaitlistController) Join(w http.ResponseWriter, r *http.Request) {
	var req service.JoinRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, r, c.Reporter, "waitlist_join", err)
		return
	}

	result, err := c.Waitlist.Join(r.Context(), req)
	if err != nil {
		WriteError(w, r, c.Reporter, "waitlist_join", err)
		return
	}
	WriteSuccess(w, r, http.StatusCreated, result)
}

// GET /api/recent-signups
func (c *WaitlistController) RecentSignups(w http.ResponseWriter, r *http.Request) {
	notices, err := c.Waitlist.RecentSignups(r.Context())
	if err != nil {
		WriteError(w, r, c.Reporter, "recent_signups", err)
		return
	}
	if notices == nil {
		notices = []model.SignupNotice{}
	}
	WriteSuccess(w, r, http.StatusOK, notices)
}

// POST /api/emails/send-welcome
func (c *WaitlistController) SendWelcomeEmails(w http.ResponseWriter, r *http.Request) {
	result, err := c.Waitlist.SendPendingWelcomes(r.Context())
	if err != nil {
		WriteError(w, r, c.Reporter, "send_welcome", err)
		return
	}
	WriteSuccess(w, r, http.StatusOK, result)
}
