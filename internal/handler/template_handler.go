// internal/handler/template_handler.go
package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/waitlist-backend/internal/controller"
	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/repository"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

type Previewer interface {
	Render(ctx context.Context, templateType string, params map[string]any) (string, error)
}

type TemplateHandler struct {
	Repo     repository.TemplateRepositoryInterface
	Renderer Previewer
	Reporter telemetry.ErrorReporter
}

type createTemplateRequest struct {
	Name         string         `json:"name"`
	Subject      string         `json:"subject"`
	FromName     string         `json:"fromName"`
	FromEmail    string         `json:"fromEmail"`
	ReplyToEmail string         `json:"replyToEmail"`
	TemplateType string         `json:"templateType"`
	Content      any            `json:"content"`
	JSONContent  map[string]any `json:"jsonContent"`
	PreviewText  string         `json:"previewText"`
	Active       *bool          `json:"active"`
}

func (req createTemplateRequest) validate() error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return appErrors.NewValidation("name", "name is required")
	case strings.TrimSpace(req.Subject) == "":
		return appErrors.NewValidation("subject", "subject is required")
	case strings.TrimSpace(req.FromEmail) == "":
		return appErrors.NewValidation("fromEmail", "fromEmail is required")
	case !slices.Contains(service.TemplateTypes, req.TemplateType):
		return appErrors.NewValidation("templateType", "unsupported template type "+req.TemplateType)
	}
	return nil
}

// POST /templates
func (h *TemplateHandler) CreateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := controller.DecodeJSON(r, &req); err != nil {
		controller.WriteError(w, r, h.Reporter, "create_template", err)
		return
	}
	if err := req.validate(); err != nil {
		controller.WriteError(w, r, h.Reporter, "create_template", err)
		return
	}

	t := &model.Template{
		Name:         strings.TrimSpace(req.Name),
		Subject:      req.Subject,
		FromName:     req.FromName,
		FromEmail:    req.FromEmail,
		ReplyToEmail: req.ReplyToEmail,
		TemplateType: req.TemplateType,
		Content:      req.Content,
		JSONContent:  req.JSONContent,
		PreviewText:  req.PreviewText,
		Active:       req.Active == nil || *req.Active,
	}
	if err := h.Repo.Create(r.Context(), t); err != nil {
		controller.WriteError(w, r, h.Reporter, "create_template", err)
		return
	}
	controller.WriteSuccess(w, r, http.StatusCreated, t)
}

// GET /templates?active=true
func (h *TemplateHandler) ListTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	templates, err := h.Repo.List(r.Context(), activeOnly)
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "list_templates", err)
		return
	}
	if templates == nil {
		templates = []*model.Template{}
	}
	controller.WriteSuccess(w, r, http.StatusOK, templates)
}

// POST /templates/{id}/preview renders the template against the posted variables.
func (h *TemplateHandler) PreviewTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength != 0 {
		if err := controller.DecodeJSON(r, &body); err != nil {
			controller.WriteError(w, r, h.Reporter, "preview_template", err)
			return
		}
	}

	tmpl, err := h.Repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "preview_template", err)
		return
	}

	html, err := h.Renderer.Render(r.Context(), tmpl.TemplateType, body.Variables)
	if err != nil {
		controller.WriteError(w, r, h.Reporter, "preview_template", err)
		return
	}
	controller.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"subject": tmpl.Subject,
		"from":    tmpl.From(),
		"html":    html,
	})
}
