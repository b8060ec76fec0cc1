package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/repository"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

// Provider event types
const (
	EventDelivered = "email.delivered"
	EventOpened    = "email.opened"
	EventClicked   = "email.clicked"
	EventBounced   = "email.bounced"
	EventFailed    = "email.failed"
)

// WebhookEvent is the provider's delivery notification.
type WebhookEvent struct {
	Type string            `json:"type"`
	Data *WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	EmailID string `json:"email_id"`
	Reason  string `json:"reason,omitempty"`
}

// WebhookResult tells the caller whether the event changed anything.
type WebhookResult struct {
	SentEmailID string `json:"sentEmailId,omitempty"`
	Status      string `json:"status,omitempty"`
	Ignored     bool   `json:"ignored"`
}

// WebhookService applies provider events to Sent-Email records and campaign
// counters. Events are not deduplicated: a replayed open or click bumps the
// campaign counter again.
type WebhookService struct {
	SentRepo     repository.SentEmailRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Now          func() time.Time
}

func (s *WebhookService) Handle(ctx context.Context, ev WebhookEvent) (*WebhookResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "webhook.Handle")
	span.SetAttributes(attribute.String("webhook.type", ev.Type))
	defer span.End()

	if ev.Type == "" {
		return nil, appErrors.NewValidation("type", "event type is required")
	}
	if ev.Data == nil || ev.Data.EmailID == "" {
		return nil, appErrors.NewValidation("data.email_id", "email_id is required")
	}

	rec, err := s.SentRepo.GetByProviderID(ctx, ev.Data.EmailID)
	if err != nil {
		s.count(ev.Type, "error")
		return nil, err
	}
	if rec == nil {
		s.count(ev.Type, "not_found")
		return nil, appErrors.NewSentEmailNotFound(ev.Data.EmailID)
	}

	now := s.now()
	var bump func(context.Context, string) error

	switch ev.Type {
	case EventDelivered:
		rec.Status = model.SentEmailStatusDelivered
	case EventOpened:
		rec.Status = model.SentEmailStatusOpened
		rec.OpenedAt = &now
		bump = s.CampaignRepo.IncrementOpenCount
	case EventClicked:
		rec.Status = model.SentEmailStatusClicked
		rec.ClickedAt = &now
		bump = s.CampaignRepo.IncrementClickCount
	case EventBounced:
		rec.Status = model.SentEmailStatusBounced
		rec.ErrorDetails = reasonOr(ev.Data.Reason, "Email bounced")
	case EventFailed:
		rec.Status = model.SentEmailStatusFailed
		rec.ErrorDetails = reasonOr(ev.Data.Reason, "Email failed to send")
	default:
		s.count(ev.Type, "ignored")
		s.logger().Debug("ignoring webhook event", zap.String("type", ev.Type), zap.String("email_id", ev.Data.EmailID))
		return &WebhookResult{SentEmailID: rec.ID, Status: rec.Status, Ignored: true}, nil
	}

	if err := s.SentRepo.Update(ctx, rec); err != nil {
		s.count(ev.Type, "error")
		return nil, err
	}
	if bump != nil && rec.CampaignID != nil {
		if err := bump(ctx, *rec.CampaignID); err != nil {
			s.count(ev.Type, "error")
			return nil, err
		}
	}

	s.count(ev.Type, "applied")
	s.logger().Info("webhook applied",
		zap.String("type", ev.Type), zap.String("email_id", ev.Data.EmailID), zap.String("status", rec.Status))
	return &WebhookResult{SentEmailID: rec.ID, Status: rec.Status}, nil
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

func (s *WebhookService) count(eventType, outcome string) {
	switch eventType {
	case EventDelivered, EventOpened, EventClicked, EventBounced, EventFailed:
	default:
		eventType = "other"
	}
	if s.Metrics != nil {
		s.Metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
	}
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *WebhookService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
