package service_test

import (
	"context"
	"testing"
	"time"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/service"
)

var webhookNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newWebhookFixture(t *testing.T) (*service.WebhookService, *MockSentRepo, *MockCampaignRepo) {
	t.Helper()
	sent := &MockSentRepo{}
	campaigns := NewMockCampaignRepo(sent)
	campaigns.Put(draftCampaign("c1"))

	campaignID := "c1"
	ctx := context.Background()
	sent.Create(ctx, &model.SentEmail{CampaignID: &campaignID, Recipient: "a@example.com", Status: model.SentEmailStatusSent, ResendID: "re_known"})
	sent.Create(ctx, &model.SentEmail{Recipient: "welcome@example.com", Status: model.SentEmailStatusSent, ResendID: "re_welcome"})

	svc := &service.WebhookService{
		SentRepo:     sent,
		CampaignRepo: campaigns,
		Now:          func() time.Time { return webhookNow },
	}
	return svc, sent, campaigns
}

func event(eventType, emailID string) service.WebhookEvent {
	return service.WebhookEvent{Type: eventType, Data: &service.WebhookEventData{EmailID: emailID}}
}

func TestWebhookOpenedUpdatesRecordAndCampaign(t *testing.T) {
	svc, sent, campaigns := newWebhookFixture(t)

	res, err := svc.Handle(context.Background(), event(service.EventOpened, "re_known"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.SentEmailStatusOpened || res.Ignored {
		t.Errorf("unexpected result %+v", res)
	}

	rec, _ := sent.GetByProviderID(context.Background(), "re_known")
	if rec.Status != model.SentEmailStatusOpened {
		t.Errorf("record status = %s, want opened", rec.Status)
	}
	if rec.OpenedAt == nil || !rec.OpenedAt.Equal(webhookNow) {
		t.Errorf("openedAt not set: %v", rec.OpenedAt)
	}
	if got := campaigns.Get("c1").OpenCount; got != 1 {
		t.Errorf("open count = %d, want exactly 1", got)
	}
}

func TestWebhookUnknownEmailIDIsNotFound(t *testing.T) {
	svc, sent, campaigns := newWebhookFixture(t)
	before := sent.All()

	_, err := svc.Handle(context.Background(), event(service.EventOpened, "re_missing"))
	if !appErrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if sent.Updates() != 0 || campaigns.Writes() != 0 {
		t.Errorf("nothing should be mutated")
	}
	after := sent.All()
	for i := range before {
		if *before[i] != *after[i] {
			t.Errorf("record %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

// Replays are not deduplicated; each delivery of the same event bumps the
// campaign counter again. This asserts current behaviour, which is a known
// defect.
func TestWebhookReplayDoubleCounts(t *testing.T) {
	svc, _, campaigns := newWebhookFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Handle(ctx, event(service.EventOpened, "re_known")); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if _, err := svc.Handle(ctx, event(service.EventClicked, "re_known")); err != nil {
			t.Fatalf("click %d: %v", i, err)
		}
	}

	c := campaigns.Get("c1")
	if c.OpenCount != 2 {
		t.Errorf("open count = %d, replay should double count", c.OpenCount)
	}
	if c.ClickCount != 2 {
		t.Errorf("click count = %d, replay should double count", c.ClickCount)
	}
}

func TestWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		eventType  string
		reason     string
		wantStatus string
		wantError  string
	}{
		{service.EventDelivered, "", model.SentEmailStatusDelivered, ""},
		{service.EventClicked, "", model.SentEmailStatusClicked, ""},
		{service.EventBounced, "", model.SentEmailStatusBounced, "Email bounced"},
		{service.EventBounced, "mailbox full", model.SentEmailStatusBounced, "mailbox full"},
		{service.EventFailed, "", model.SentEmailStatusFailed, "Email failed to send"},
		{service.EventFailed, "suppressed", model.SentEmailStatusFailed, "suppressed"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.reason, func(t *testing.T) {
			svc, sent, _ := newWebhookFixture(t)
			ev := event(tt.eventType, "re_known")
			ev.Data.Reason = tt.reason

			if _, err := svc.Handle(context.Background(), ev); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rec, _ := sent.GetByProviderID(context.Background(), "re_known")
			if rec.Status != tt.wantStatus || rec.ErrorDetails != tt.wantError {
				t.Errorf("got status=%s error=%q", rec.Status, rec.ErrorDetails)
			}
			if tt.eventType == service.EventClicked && (rec.ClickedAt == nil || !rec.ClickedAt.Equal(webhookNow)) {
				t.Errorf("clickedAt not set")
			}
		})
	}
}

func TestWebhookUnknownTypeIgnored(t *testing.T) {
	svc, sent, campaigns := newWebhookFixture(t)

	res, err := svc.Handle(context.Background(), event("email.complained", "re_known"))
	if err != nil {
		t.Fatalf("unknown types are accepted, got %v", err)
	}
	if !res.Ignored {
		t.Errorf("expected ignored result")
	}
	if sent.Updates() != 0 || campaigns.Writes() != 0 {
		t.Errorf("unknown type must not change state")
	}
}

func TestWebhookWithoutCampaignSkipsCounters(t *testing.T) {
	svc, _, campaigns := newWebhookFixture(t)
	if _, err := svc.Handle(context.Background(), event(service.EventOpened, "re_welcome")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaigns.Writes() != 0 {
		t.Errorf("welcome emails have no campaign to bump")
	}
}

func TestWebhookValidation(t *testing.T) {
	svc, _, _ := newWebhookFixture(t)
	bad := []service.WebhookEvent{
		{Data: &service.WebhookEventData{EmailID: "re_known"}},
		{Type: service.EventOpened},
		{Type: service.EventOpened, Data: &service.WebhookEventData{}},
	}
	for i, ev := range bad {
		if _, err := svc.Handle(context.Background(), ev); !appErrors.IsValidation(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}
