package service

import (
	"context"
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/repository"
)

const DefaultAllSubscribersLimit = 1000

// RecipientResolver turns a campaign audience into a flat recipient list.
type RecipientResolver struct {
	SubscriberRepo repository.SubscriberRepositoryInterface
	CampaignRepo   repository.CampaignRepositoryInterface
	Limit          int
}

// Resolve returns the campaign's recipients, deduplicated by normalised email
// in first-seen order. Subscriber ids that no longer exist are skipped.
func (r *RecipientResolver) Resolve(ctx context.Context, c *model.Campaign) ([]model.Recipient, error) {
	var raw []model.Recipient

	switch c.Audience {
	case model.AudienceAllWaitlist:
		limit := r.Limit
		if limit <= 0 {
			limit = DefaultAllSubscribersLimit
		}
		subs, err := r.SubscriberRepo.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			raw = append(raw, s.Recipient())
		}

	case model.AudienceSpecificUsers:
		for _, id := range c.SpecificUsers {
			s, err := r.SubscriberRepo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if s == nil {
				continue
			}
			raw = append(raw, s.Recipient())
		}

	case model.AudienceCustomList:
		list, err := r.CampaignRepo.ListCustomRecipients(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		raw = list

	default:
		return nil, fmt.Errorf("%w: %q", appErrors.ErrUnsupportedAudience, c.Audience)
	}

	return dedupeRecipients(raw), nil
}

func dedupeRecipients(in []model.Recipient) []model.Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Recipient, 0, len(in))
	for _, rcpt := range in {
		key := strings.ToLower(strings.TrimSpace(rcpt.Email))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rcpt.Email = strings.TrimSpace(rcpt.Email)
		out = append(out, rcpt)
	}
	return out
}
