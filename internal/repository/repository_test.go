package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
)

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"5f0c6a8e-2d4b-4e7a-9c1f-3b8d2e6a0c11", true},
		{"abc", false},
		{"", false},
		{"5f0c6a8e2d4b4e7a9c1f3b8d2e6a0c11", false},
		{"{5f0c6a8e-2d4b-4e7a-9c1f-3b8d2e6a0c11}", false},
		{"zzzzzzzz-2d4b-4e7a-9c1f-3b8d2e6a0c11", false},
	}
	for _, tt := range tests {
		if got := validID(tt.id); got != tt.want {
			t.Errorf("validID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// The repositories below have no DB; a malformed id must never reach it.
func TestGetByIDMalformedIDSkipsQuery(t *testing.T) {
	ctx := context.Background()

	if _, err := (&CampaignRepository{}).GetByID(ctx, "abc"); !appErrors.IsNotFound(err) {
		t.Errorf("campaign: expected not found, got %v", err)
	}
	if _, err := (&TemplateRepository{}).GetByID(ctx, "tpl-1"); !appErrors.IsNotFound(err) {
		t.Errorf("template: expected not found, got %v", err)
	}
	sub, err := (&SubscriberRepository{}).GetByID(ctx, "not-a-uuid")
	if err != nil || sub != nil {
		t.Errorf("subscriber: expected nil, nil, got %v, %v", sub, err)
	}
}

func TestMapEntryConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"email", &pq.Error{Code: uniqueViolation, Constraint: emailConstraint}, appErrors.ErrAlreadyOnWaitlist},
		{"referral code", &pq.Error{Code: uniqueViolation, Constraint: referralCodeConstraint}, ErrReferralCodeTaken},
		{"wrapped referral code", fmt.Errorf("exec: %w", &pq.Error{Code: uniqueViolation, Constraint: referralCodeConstraint}), ErrReferralCodeTaken},
		{"not unique", &pq.Error{Code: "23502", Constraint: emailConstraint}, nil},
		{"plain error", errors.New("connection reset"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapEntryConflict(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
