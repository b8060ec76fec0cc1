// cmd/server/routes.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unclebandit/waitlist-backend/internal/controller"
	"github.com/unclebandit/waitlist-backend/internal/handler"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
)

type routes struct {
	Campaigns   *controller.CampaignController
	Webhooks    *controller.WebhookController
	Waitlist    *controller.WaitlistController
	CampaignAPI *handler.CampaignHandler
	Templates   *handler.TemplateHandler
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rt.Metrics != nil {
		r.Use(rt.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		controller.WriteSuccess(w, r, http.StatusOK, map[string]string{"service": "waitlist-backend"})
	})

	r.Route("/api", func(r chi.Router) {
		// The signup form is served from a different origin.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Post("/waitlist", rt.Waitlist.Join)
		r.Get("/recent-signups", rt.Waitlist.RecentSignups)
		if rt.Waitlist.Stream != nil {
			r.Method(http.MethodGet, "/recent-signups/ws", rt.Waitlist.Stream)
		}
		r.Post("/emails/send-welcome", rt.Waitlist.SendWelcomeEmails)

		r.Post("/email/send-campaign", rt.Campaigns.SendCampaign)
		r.Post("/email/schedule-campaign", rt.Campaigns.ScheduleCampaign)
		r.Get("/cron/send-scheduled-campaigns", rt.Campaigns.SendScheduledCampaigns)
		r.Post("/webhooks/resend", rt.Webhooks.Resend)
	})

	// Campaign routes
	r.Post("/campaigns", rt.CampaignAPI.CreateCampaignHandler)
	r.Get("/campaigns", rt.CampaignAPI.ListCampaignsHandler)
	r.Get("/campaigns/{id}", rt.CampaignAPI.GetCampaignHandlerWithStats)

	r.Post("/templates", rt.Templates.CreateTemplateHandler)
	r.Get("/templates", rt.Templates.ListTemplatesHandler)
	r.Post("/templates/{id}/preview", rt.Templates.PreviewTemplateHandler)

	return r
}
