// internal/model/sent_email.go
package model

import "time"

const (
	SentEmailStatusSent      = "sent"
	SentEmailStatusDelivered = "delivered"
	SentEmailStatusOpened    = "opened"
	SentEmailStatusClicked   = "clicked"
	SentEmailStatusBounced   = "bounced"
	SentEmailStatusFailed    = "failed"
)

type SentEmail struct {
	ID            string     `db:"id" json:"id"`
	CampaignID    *string    `db:"campaign_id" json:"campaign_id,omitempty"`
	Recipient     string     `db:"recipient" json:"recipient"`
	RecipientName string     `db:"recipient_name" json:"recipient_name,omitempty"`
	Subject       string     `db:"subject" json:"subject"`
	Status        string     `db:"status" json:"status"`
	SentAt        time.Time  `db:"sent_at" json:"sent_at"`
	OpenedAt      *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt     *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	ResendID      string     `db:"resend_id" json:"resend_id,omitempty"`
	ErrorDetails  string     `db:"error_details" json:"error_details,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
