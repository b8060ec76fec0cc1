// internal/model/template.go
package model

import "time"

// Template types select the renderer used for a template
const (
	TemplateWelcome              = "welcome"
	TemplateWaitlistConfirmation = "waitlist-confirmation"
	TemplateNewsletter           = "newsletter"
	TemplateFeatureAnnouncement  = "feature-announcement"
	TemplateOpenBetaInvite       = "open-beta-invite"
	TemplateClosedAlphaInvite    = "closed-alpha-invite"
	TemplateDevLog               = "dev-log"
	TemplateCustom               = "custom"
)

type Template struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Subject      string         `db:"subject" json:"subject"`
	FromName     string         `db:"from_name" json:"from_name"`
	FromEmail    string         `db:"from_email" json:"from_email"`
	ReplyToEmail string         `db:"reply_to_email" json:"reply_to_email,omitempty"`
	TemplateType string         `db:"template_type" json:"template_type"`
	Content      any            `db:"content" json:"content,omitempty"`
	JSONContent  map[string]any `db:"json_content" json:"json_content,omitempty"`
	Active       bool           `db:"active" json:"active"`
	PreviewText  string         `db:"preview_text" json:"preview_text,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// From formats the sender as `Name <address>`.
func (t *Template) From() string {
	if t.FromName == "" {
		return t.FromEmail
	}
	return t.FromName + " <" + t.FromEmail + ">"
}
