// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

type CampaignSender interface {
	SendCampaign(ctx context.Context, campaignID string) (*service.SendCampaignResult, error)
	ScheduleCampaign(ctx context.Context, campaignID string, when time.Time) (*model.Campaign, error)
	SendDueCampaigns(ctx context.Context, now time.Time) ([]service.DueCampaignResult, error)
}

type CampaignController struct {
	CampaignService CampaignSender
	Reporter        telemetry.ErrorReporter
	Now             func() time.Time
}

// POST /api/email/send-campaign
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID string `json:"campaignId"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, r, c.Reporter, "send_campaign", err)
		return
	}
	id := strings.TrimSpace(body.CampaignID)
	if id == "" {
		WriteError(w, r, c.Reporter, "send_campaign", appErrors.NewValidation("campaignId", "campaign id is required"))
		return
	}

	result, err := c.CampaignService.SendCampaign(r.Context(), id)
	if err != nil {
		WriteError(w, r, c.Reporter, "send_campaign", err)
		return
	}
	WriteSuccess(w, r, http.StatusOK, result)
}

// POST /api/email/schedule-campaign
func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID   string `json:"campaignId"`
		ScheduledFor string `json:"scheduledFor"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, r, c.Reporter, "schedule_campaign", err)
		return
	}
	if body.CampaignID == "" || body.ScheduledFor == "" {
		WriteError(w, r, c.Reporter, "schedule_campaign", appErrors.NewValidation("", "campaignId and scheduledFor are required"))
		return
	}
	when, err := time.Parse(time.RFC3339, body.ScheduledFor)
	if err != nil {
		WriteError(w, r, c.Reporter, "schedule_campaign", appErrors.NewValidation("scheduledFor", "must be an RFC3339 timestamp"))
		return
	}

	campaign, err := c.CampaignService.ScheduleCampaign(r.Context(), body.CampaignID, when)
	if err != nil {
		WriteError(w, r, c.Reporter, "schedule_campaign", err)
		return
	}
	WriteSuccess(w, r, http.StatusOK, campaign)
}

// GET /api/cron/send-scheduled-campaigns
func (c *CampaignController) SendScheduledCampaigns(w http.ResponseWriter, r *http.Request) {
	results, err := c.CampaignService.SendDueCampaigns(r.Context(), c.now())
	if err != nil {
		WriteError(w, r, c.Reporter, "send_scheduled_campaigns", err)
		return
	}
	WriteSuccess(w, r, http.StatusOK, map[string]any{
		"processed": len(results),
		"results":   results,
	})
}

func (c *CampaignController) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
