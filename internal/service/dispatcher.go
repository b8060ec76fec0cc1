package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/waitlist-backend/internal/mailer"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/repository"
)

// Dispatch is one rendered email addressed to one recipient.
type Dispatch struct {
	Recipient  model.Recipient
	Subject    string
	From       string
	ReplyTo    string
	HTML       string
	CampaignID string
}

// DispatchResult reports what happened to a single dispatch.
type DispatchResult struct {
	SentEmail  *model.SentEmail
	ProviderID string
	Err        error
}

func (r DispatchResult) OK() bool { return r.Err == nil }

// Dispatcher hands emails to the provider and records every attempt.
type Dispatcher struct {
	Sender       mailer.Sender
	SentRepo     repository.SentEmailRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Now          func() time.Time
}

// Send delivers d and writes a Sent-Email record with the outcome. Provider
// failures are carried in the result, not returned; the returned error is
// reserved for bookkeeping failures.
//
// With a campaign id the campaign's running sent_count is bumped and its
// status set to sending on every attempt, successful or not, including when
// the Sent-Email record could not be written. The bump is not idempotent.
func (d *Dispatcher) Send(ctx context.Context, in Dispatch) (DispatchResult, error) {
	providerID, sendErr := d.Sender.Send(ctx, mailer.Message{
		From:    in.From,
		To:      in.Recipient.Email,
		Subject: in.Subject,
		HTML:    in.HTML,
		ReplyTo: in.ReplyTo,
	})

	rec := &model.SentEmail{
		Recipient:     in.Recipient.Email,
		RecipientName: in.Recipient.DisplayName(),
		Subject:       in.Subject,
		SentAt:        d.now(),
	}
	if in.CampaignID != "" {
		id := in.CampaignID
		rec.CampaignID = &id
	}

	result := "sent"
	if sendErr != nil {
		result = "failed"
		rec.Status = model.SentEmailStatusFailed
		rec.ErrorDetails = sendErr.Error()
		d.logger().Debug("email rejected",
			zap.String("to", in.Recipient.Email), zap.String("campaign_id", in.CampaignID), zap.Error(sendErr))
	} else {
		rec.Status = model.SentEmailStatusSent
		rec.ResendID = providerID
		d.logger().Debug("email sent",
			zap.String("to", in.Recipient.Email), zap.String("campaign_id", in.CampaignID), zap.String("provider_id", providerID))
	}
	if d.Metrics != nil {
		d.Metrics.EmailsSent.WithLabelValues(result).Inc()
	}

	out := DispatchResult{SentEmail: rec, ProviderID: providerID, Err: sendErr}

	var errs []error
	if err := d.SentRepo.Create(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("record sent email: %w", err))
	}
	if in.CampaignID != "" {
		if err := d.CampaignRepo.IncrementSentCount(ctx, in.CampaignID); err != nil {
			errs = append(errs, fmt.Errorf("bump sent count: %w", err))
		}
	}
	return out, errors.Join(errs...)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
