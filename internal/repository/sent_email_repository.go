package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/waitlist-backend/internal/model"
)

type SentEmailRepositoryInterface interface {
	Create(ctx context.Context, e *model.SentEmail) error
	GetByProviderID(ctx context.Context, providerID string) (*model.SentEmail, error)
	Update(ctx context.Context, e *model.SentEmail) error
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.SentEmail, error)
}

type SentEmailRepository struct {
	DB *sql.DB
}

const sentEmailColumns = `id, campaign_id, recipient, recipient_name, subject, status, sent_at,
	opened_at, clicked_at, resend_id, error_details, created_at, updated_at`

func (r *SentEmailRepository) Create(ctx context.Context, e *model.SentEmail) error {
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.SentAt.IsZero() {
		e.SentAt = now
	}

	var campaignID sql.NullString
	if e.CampaignID != nil {
		campaignID = sql.NullString{String: *e.CampaignID, Valid: true}
	}

	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO sent_emails (id, campaign_id, recipient, recipient_name, subject, status, sent_at,
            resend_id, error_details, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
    `, e.ID, campaignID, e.Recipient, nullString(e.RecipientName), e.Subject, e.Status, e.SentAt,
		nullString(e.ResendID), nullString(e.ErrorDetails), now)
	if err != nil {
		return fmt.Errorf("insert sent email: %w", err)
	}
	return nil
}

// GetByProviderID returns nil, nil when no record carries the provider id.
func (r *SentEmailRepository) GetByProviderID(ctx context.Context, providerID string) (*model.SentEmail, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sentEmailColumns+` FROM sent_emails WHERE resend_id=$1`, providerID)
	e, err := scanSentEmail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// Update persists the webhook-driven fields of an existing record.
func (r *SentEmailRepository) Update(ctx context.Context, e *model.SentEmail) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
        UPDATE sent_emails
        SET status=$2, opened_at=$3, clicked_at=$4, error_details=$5, updated_at=$6
        WHERE id=$1
    `, e.ID, e.Status, nullTime(e.OpenedAt), nullTime(e.ClickedAt), nullString(e.ErrorDetails), e.UpdatedAt)
	return err
}

func (r *SentEmailRepository) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.SentEmail, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT `+sentEmailColumns+`
        FROM sent_emails
        WHERE campaign_id=$1
        ORDER BY sent_at DESC
        LIMIT $2
    `, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []*model.SentEmail{}
	for rows.Next() {
		e, err := scanSentEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func scanSentEmail(row rowScanner) (*model.SentEmail, error) {
	var (
		e                                 model.SentEmail
		campaignID, name, resendID, errTx sql.NullString
		openedAt, clickedAt               sql.NullTime
	)
	err := row.Scan(&e.ID, &campaignID, &e.Recipient, &name, &e.Subject, &e.Status, &e.SentAt,
		&openedAt, &clickedAt, &resendID, &errTx, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if campaignID.Valid {
		id := campaignID.String
		e.CampaignID = &id
	}
	e.RecipientName = name.String
	e.ResendID = resendID.String
	e.ErrorDetails = errTx.String
	e.OpenedAt = timePtr(openedAt)
	e.ClickedAt = timePtr(clickedAt)
	return &e, nil
}

var _ SentEmailRepositoryInterface = (*SentEmailRepository)(nil)
