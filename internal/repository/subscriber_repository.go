package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
)

// Unique constraints on waitlist_entries, named in seed/schema.sql.
const (
	emailConstraint        = "waitlist_entries_email_key"
	referralCodeConstraint = "waitlist_entries_referral_code_key"
)

// ErrReferralCodeTaken means the generated referral code collided; the
// caller should generate another and retry.
var ErrReferralCodeTaken = errors.New("referral code already in use")

type SubscriberRepositoryInterface interface {
	Create(ctx context.Context, s *model.Subscriber) error
	GetByID(ctx context.Context, id string) (*model.Subscriber, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Subscriber, error)
	List(ctx context.Context, limit int) ([]*model.Subscriber, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Subscriber, error)
	ListPendingWelcome(ctx context.Context, limit int) ([]*model.Subscriber, error)
	IncrementReferralCount(ctx context.Context, id string) error
	MarkWelcomeSent(ctx context.Context, id string, at time.Time) error
}

type SubscriberRepository struct {
	DB *sql.DB
}

const subscriberColumns = `id, first_name, last_name, email, phone_number, profession, welcome_email_sent_at,
	referral_code, referred_by, referral_count, waitlist_position, created_at, updated_at`

// Create inserts the entry and, when present, its survey in one transaction.
// The waitlist position is the entry count at insert time plus one.
func (r *SubscriberRepository) Create(ctx context.Context, s *model.Subscriber) error {
	now := time.Now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist insert: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM waitlist_entries`).Scan(&count); err != nil {
		return err
	}
	s.WaitlistPosition = count + 1

	_, err = tx.ExecContext(ctx, `
        INSERT INTO waitlist_entries (id, first_name, last_name, email, phone_number, profession,
            referral_code, referred_by, referral_count, waitlist_position, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $10)
    `, s.ID, s.FirstName, s.LastName, s.Email, nullString(s.PhoneNumber), nullString(s.Profession),
		s.ReferralCode, nullString(s.ReferredBy), s.WaitlistPosition, now)
	if err != nil {
		if err := mapEntryConflict(err); err != nil {
			return err
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}

	if sv := s.Survey; sv != nil {
		sv.ID = uuid.NewString()
		sv.WaitlistEntryID = s.ID
		sv.CreatedAt = now
		var age sql.NullInt64
		if sv.Age != nil {
			age = sql.NullInt64{Int64: int64(*sv.Age), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO surveys (id, waitlist_entry_id, discovery_source, age, sport, team_level,
                analytics_experience, budget_range, primary_goal, additional_feedback, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        `, sv.ID, sv.WaitlistEntryID, nullString(sv.DiscoverySource), age, nullString(sv.Sport),
			nullString(sv.TeamLevel), nullString(sv.AnalyticsExperience), nullString(sv.BudgetRange),
			nullString(sv.PrimaryGoal), nullString(sv.AdditionalFeedback), now)
		if err != nil {
			return fmt.Errorf("insert survey: %w", err)
		}
	}

	return tx.Commit()
}

// mapEntryConflict turns a unique violation on insert into a domain error,
// or returns nil for any other error.
func mapEntryConflict(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	if constraint == referralCodeConstraint {
		return ErrReferralCodeTaken
	}
	return appErrors.ErrAlreadyOnWaitlist
}

// GetByID returns nil, nil when no entry has the id.
func (r *SubscriberRepository) GetByID(ctx context.Context, id string) (*model.Subscriber, error) {
	if !validID(id) {
		return nil, nil
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM waitlist_entries WHERE id=$1`, id)
	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SubscriberRepository) GetByReferralCode(ctx context.Context, code string) (*model.Subscriber, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM waitlist_entries WHERE referral_code=$1`, code)
	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SubscriberRepository) List(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	return r.query(ctx, `SELECT `+subscriberColumns+` FROM waitlist_entries ORDER BY created_at ASC LIMIT $1`, limit)
}

func (r *SubscriberRepository) ListRecent(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	return r.query(ctx, `SELECT `+subscriberColumns+` FROM waitlist_entries ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *SubscriberRepository) ListPendingWelcome(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	return r.query(ctx, `
        SELECT `+subscriberColumns+`
        FROM waitlist_entries
        WHERE welcome_email_sent_at IS NULL
        ORDER BY created_at ASC
        LIMIT $1
    `, limit)
}

func (r *SubscriberRepository) IncrementReferralCount(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE waitlist_entries SET referral_count=referral_count+1, updated_at=NOW() WHERE id=$1
    `, id)
	return err
}

func (r *SubscriberRepository) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE waitlist_entries SET welcome_email_sent_at=$2, updated_at=$2 WHERE id=$1
    `, id, at)
	return err
}

func (r *SubscriberRepository) query(ctx context.Context, query string, args ...any) ([]*model.Subscriber, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscribers := []*model.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

func scanSubscriber(row rowScanner) (*model.Subscriber, error) {
	var (
		s                             model.Subscriber
		phone, profession, referredBy sql.NullString
		welcomeAt                     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &phone, &profession, &welcomeAt,
		&s.ReferralCode, &referredBy, &s.ReferralCount, &s.WaitlistPosition, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.PhoneNumber = phone.String
	s.Profession = profession.String
	s.ReferredBy = referredBy.String
	s.WelcomeEmailSentAt = timePtr(welcomeAt)
	return &s, nil
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
