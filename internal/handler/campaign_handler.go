// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/waitlist-backend/internal/controller"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

type CampaignManager interface {
	CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error)
	GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*service.CampaignDetails, error)
}

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service  CampaignManager
	Reporter telemetry.ErrorReporter
}

// CreateCampaignHandler handles creating a new campaign
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCampaignInput
	if err := controller.DecodeJSON(r, &in); err != nil {
		controller.WriteError(w, r, h.Reporter, "create_campaign", err)
		return
	}

	campaign, err := h.Service.CreateCampaign(r.Context(), in)
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "create_campaign", err)
		return
	}
	controller.WriteSuccess(w, r, http.StatusCreated, campaign)
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Service.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "list_campaigns", err)
		return
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}

	controller.WriteJSON(w, r, http.StatusOK, map[string]any{
		"status":     "success",
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignHandlerWithStats returns one campaign with its sent-email counts by status.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "get_campaign", err)
		return
	}
	controller.WriteSuccess(w, r, http.StatusOK, details)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
