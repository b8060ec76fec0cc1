// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusPartial   = "partial"
	CampaignStatusFailed    = "failed"
)

// Audience selectors
const (
	AudienceAllWaitlist   = "all-waitlist"
	AudienceSpecificUsers = "specific-users"
	AudienceCustomList    = "custom-list"
)

type Campaign struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	TemplateID        string         `db:"template_id" json:"template_id"`
	Status            string         `db:"status" json:"status"`
	ScheduledFor      *time.Time     `db:"scheduled_for" json:"scheduled_for,omitempty"`
	Audience          string         `db:"audience" json:"audience"`
	SpecificUsers     []string       `db:"specific_users" json:"specific_users,omitempty"`
	TemplateVariables map[string]any `db:"template_variables" json:"template_variables,omitempty"`
	SentCount         int            `db:"sent_count" json:"sent_count"`
	OpenCount         int            `db:"open_count" json:"open_count"`
	ClickCount        int            `db:"click_count" json:"click_count"`
	SentAt            *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	ErrorDetails      string         `db:"error_details" json:"error_details,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Recipient is one resolved address a campaign is sent to
type Recipient struct {
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"firstName,omitempty"`
	LastName  string `db:"last_name" json:"lastName,omitempty"`
}

// DisplayName is "First Last" or empty when no first name is known.
func (r Recipient) DisplayName() string {
	if r.FirstName == "" {
		return ""
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}
