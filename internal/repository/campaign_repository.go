package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
)

// Statuses a campaign may be claimed from. "sending" is excluded so two
// triggers cannot both run the same campaign.
var claimableStatuses = []string{
	model.CampaignStatusDraft,
	model.CampaignStatusScheduled,
	model.CampaignStatusPartial,
	model.CampaignStatusFailed,
}

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign, customRecipients []model.Recipient) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	ListCustomRecipients(ctx context.Context, campaignID string) ([]model.Recipient, error)

	// Status transitions
	ClaimForSending(ctx context.Context, id string, now time.Time) (bool, error)
	Schedule(ctx context.Context, id string, scheduledFor time.Time) error
	Finish(ctx context.Context, id, status string, sentCount int) error
	MarkFailed(ctx context.Context, id, details string) error

	// Counters
	IncrementSentCount(ctx context.Context, id string) error
	IncrementOpenCount(ctx context.Context, id string) error
	IncrementClickCount(ctx context.Context, id string) error
	GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, template_id, status, scheduled_for, audience, specific_users,
	template_variables, sent_count, open_count, click_count, sent_at, error_details, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign, customRecipients []model.Recipient) error {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.Audience == "" {
		c.Audience = model.AudienceAllWaitlist
	}

	vars, err := marshalJSON(c.TemplateVariables)
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin campaign insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO email_campaigns (id, name, template_id, status, scheduled_for, audience, specific_users,
            template_variables, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
    `, c.ID, c.Name, c.TemplateID, c.Status, nullTime(c.ScheduledFor), c.Audience,
		pq.StringArray(c.SpecificUsers), vars, now)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for _, rcpt := range customRecipients {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO campaign_recipients (id, campaign_id, email, first_name, last_name, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, uuid.NewString(), c.ID, rcpt.Email, nullString(rcpt.FirstName), nullString(rcpt.LastName), now)
		if err != nil {
			return fmt.Errorf("insert campaign recipient: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	if !validID(id) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM email_campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status=$1"
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM email_campaigns%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT `+campaignColumns+`
        FROM email_campaigns
        WHERE status=$1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
        ORDER BY scheduled_for ASC
    `, model.CampaignStatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func (r *CampaignRepository) ListCustomRecipients(ctx context.Context, campaignID string) ([]model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT email, first_name, last_name
        FROM campaign_recipients
        WHERE campaign_id=$1
        ORDER BY created_at ASC
    `, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rcpt model.Recipient
		var first, last sql.NullString
		if err := rows.Scan(&rcpt.Email, &first, &last); err != nil {
			return nil, err
		}
		rcpt.FirstName = first.String
		rcpt.LastName = last.String
		recipients = append(recipients, rcpt)
	}
	return recipients, rows.Err()
}

// ====================== Status transitions ======================

// ClaimForSending moves the campaign to "sending" only if it is currently in a
// claimable status. It reports false when another run holds the campaign.
func (r *CampaignRepository) ClaimForSending(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns
        SET status=$2, sent_at=$3, error_details=NULL, updated_at=$3
        WHERE id=$1 AND status = ANY($4)
    `, id, model.CampaignStatusSending, now, pq.StringArray(claimableStatuses))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) Schedule(ctx context.Context, id string, scheduledFor time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET status=$2, scheduled_for=$3, updated_at=NOW() WHERE id=$1
    `, id, model.CampaignStatusScheduled, scheduledFor)
	return err
}

func (r *CampaignRepository) Finish(ctx context.Context, id, status string, sentCount int) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET status=$2, sent_count=$3, updated_at=NOW() WHERE id=$1
    `, id, status, sentCount)
	return err
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id, details string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET status=$2, error_details=$3, updated_at=NOW() WHERE id=$1
    `, id, model.CampaignStatusFailed, details)
	return err
}

// ====================== Counters ======================

func (r *CampaignRepository) IncrementSentCount(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET sent_count=sent_count+1, status=$2, updated_at=NOW() WHERE id=$1
    `, id, model.CampaignStatusSending)
	return err
}

func (r *CampaignRepository) IncrementOpenCount(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE email_campaigns SET open_count=open_count+1, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) IncrementClickCount(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE email_campaigns SET click_count=click_count+1, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM sent_emails WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.SentEmailStatusSent:      0,
		model.SentEmailStatusDelivered: 0,
		model.SentEmailStatusOpened:    0,
		model.SentEmailStatusClicked:   0,
		model.SentEmailStatusBounced:   0,
		model.SentEmailStatusFailed:    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c            model.Campaign
		scheduledFor sql.NullTime
		sentAt       sql.NullTime
		errDetails   sql.NullString
		vars         []byte
		users        pq.StringArray
	)
	err := row.Scan(&c.ID, &c.Name, &c.TemplateID, &c.Status, &scheduledFor, &c.Audience, &users,
		&vars, &c.SentCount, &c.OpenCount, &c.ClickCount, &sentAt, &errDetails, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ScheduledFor = timePtr(scheduledFor)
	c.SentAt = timePtr(sentAt)
	c.ErrorDetails = errDetails.String
	c.SpecificUsers = []string(users)
	if len(vars) > 0 && strings.TrimSpace(string(vars)) != "null" {
		if err := json.Unmarshal(vars, &c.TemplateVariables); err != nil {
			return nil, fmt.Errorf("decode template_variables for campaign %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
