package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

//go:embed emails/*.html
var emailFS embed.FS

// FallbackHTML is returned in place of a body that failed to render.
const FallbackHTML = `<div style="font-family:sans-serif;padding:20px;">` +
	`<h1>Error Rendering Email Template</h1>` +
	`<p>We encountered an error while rendering your email template.</p>` +
	`<p>Please contact support for assistance.</p></div>`

var templateDefaults = map[string]map[string]any{
	model.TemplateWelcome: {
		"previewText": "Welcome to StatOracle - Your sports analytics revolution starts now!",
		"firstName":   "there",
	},
	model.TemplateWaitlistConfirmation: {
		"previewText":      "Thanks for joining the StatOracle waitlist! Game-changing sports analytics incoming.",
		"firstName":        "Coach",
		"waitlistPosition": "#238",
		"referralCode":     "COACH-ALEX-23",
		"socialLinks": map[string]any{
			"twitter":   "https://twitter.com/statoracle",
			"instagram": "https://instagram.com/statoracle",
			"tiktok":    "https://tiktok.com/@statoracle",
		},
	},
	model.TemplateNewsletter: {
		"previewText":   "StatOracle News: Latest in sports analytics",
		"mainHeading":   "This Month in Sports Analytics",
		"editionNumber": "01",
		"firstName":     "there",
	},
	model.TemplateFeatureAnnouncement: {
		"previewText": "New Feature Alert: We've added something awesome to StatOracle!",
		"featureName": "Advanced Player Tracking",
		"firstName":   "there",
	},
	model.TemplateOpenBetaInvite: {
		"previewText": "You're invited to the StatOracle Open Beta!",
		"firstName":   "there",
		"accessCode":  "BETA-ACCESS-123",
	},
	model.TemplateClosedAlphaInvite: {
		"previewText": "Exclusive Access: Join the StatOracle Closed Alpha!",
		"firstName":   "there",
		"accessCode":  "ALPHA-ACCESS-123",
	},
	model.TemplateDevLog: {
		"previewText": "StatOracle Dev Log: See what we've been building",
		"issueNumber": "01",
		"firstName":   "there",
	},
	model.TemplateCustom: {
		"html": "",
	},
}

// TemplateTypes lists every renderable type.
var TemplateTypes = []string{
	model.TemplateWelcome,
	model.TemplateWaitlistConfirmation,
	model.TemplateNewsletter,
	model.TemplateFeatureAnnouncement,
	model.TemplateOpenBetaInvite,
	model.TemplateClosedAlphaInvite,
	model.TemplateDevLog,
	model.TemplateCustom,
}

// Defaults returns a copy of the default parameters for a template type, or
// nil if the type is unknown.
func Defaults(templateType string) map[string]any {
	d, ok := templateDefaults[templateType]
	if !ok {
		return nil
	}
	return maps.Clone(d)
}

// MergeParams lays params over the type defaults. Caller values win.
func MergeParams(templateType string, params map[string]any) map[string]any {
	merged := Defaults(templateType)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, params)
	return merged
}

// ValidateParams checks that the mandatory fields of a template type are
// present as strings.
func ValidateParams(templateType string, params map[string]any) error {
	requireString := func(field string) error {
		if _, ok := params[field].(string); !ok {
			return appErrors.NewValidation(field, fmt.Sprintf("%s template requires a string %s", templateType, field))
		}
		return nil
	}

	switch templateType {
	case model.TemplateWelcome:
		return nil
	case model.TemplateWaitlistConfirmation:
		return requireString("referralCode")
	case model.TemplateNewsletter:
		_, hasContent := params["content"].(string)
		_, hasHeading := params["mainHeading"].(string)
		if !hasContent && !hasHeading {
			return appErrors.NewValidation("content", "newsletter template requires content or mainHeading")
		}
		return nil
	case model.TemplateFeatureAnnouncement:
		return requireString("featureName")
	case model.TemplateOpenBetaInvite, model.TemplateClosedAlphaInvite:
		return requireString("accessCode")
	case model.TemplateDevLog:
		return requireString("issueNumber")
	case model.TemplateCustom:
		return requireString("html")
	default:
		return appErrors.NewValidation("template_type", fmt.Sprintf("unsupported template type %q", templateType))
	}
}

// Renderer turns a template type and a parameter bag into an HTML body.
type Renderer struct {
	Reporter  telemetry.ErrorReporter
	Logger    *zap.Logger
	templates map[string]*template.Template
}

func NewRenderer(reporter telemetry.ErrorReporter, logger *zap.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"safeHTML": func(v any) template.HTML {
			if s, ok := v.(string); ok {
				return template.HTML(s)
			}
			return template.HTML(fmt.Sprint(v))
		},
	}

	r := &Renderer{Reporter: reporter, Logger: logger, templates: map[string]*template.Template{}}
	for _, tt := range TemplateTypes {
		files := []string{"emails/layout.html", "emails/" + tt + ".html"}
		if tt == model.TemplateCustom {
			files = files[1:]
		}
		t, err := template.New(tt).Funcs(funcs).ParseFS(emailFS, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s email template: %w", tt, err)
		}
		r.templates[tt] = t
	}
	return r, nil
}

// Render merges params over the type defaults, validates the result and
// executes the template. Validation failures are returned. Unknown types and
// execution failures are reported and yield FallbackHTML with a nil error so
// one bad body never aborts a batch.
func (r *Renderer) Render(ctx context.Context, templateType string, params map[string]any) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "renderer.Render")
	span.SetAttributes(attribute.String("template.type", templateType))
	defer span.End()

	t, ok := r.templates[templateType]
	if !ok {
		r.report(ctx, templateType, fmt.Errorf("unsupported template type %q", templateType))
		return FallbackHTML, nil
	}

	merged := MergeParams(templateType, params)
	if err := ValidateParams(templateType, merged); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "email", merged); err != nil {
		r.report(ctx, templateType, fmt.Errorf("render %s: %w", templateType, err))
		return FallbackHTML, nil
	}
	return buf.String(), nil
}

func (r *Renderer) report(ctx context.Context, templateType string, err error) {
	if r.Logger != nil {
		r.Logger.Warn("email template failed to render, using fallback",
			zap.String("template_type", templateType), zap.Error(err))
	}
	if r.Reporter != nil {
		r.Reporter.Capture(ctx, err, map[string]string{
			"operation":    "render_template",
			"templateType": templateType,
		})
	}
}
