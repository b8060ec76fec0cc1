package service

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/repository"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

const DefaultSendDelay = 100 * time.Millisecond

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Resolver     *RecipientResolver
	Renderer     *Renderer
	Dispatcher   *Dispatcher
	Reporter     telemetry.ErrorReporter
	Metrics      *metrics.Metrics
	Logger       *zap.Logger

	// SendDelay is slept between consecutive sends of one campaign.
	SendDelay time.Duration
	Sleep     func(time.Duration)
	Now       func() time.Time
}

// Result struct for SendCampaign
type SendCampaignResult struct {
	CampaignID      string `json:"campaignId"`
	TotalRecipients int    `json:"totalRecipients"`
	SuccessCount    int    `json:"successCount"`
	FailureCount    int    `json:"failureCount"`
	Status          string `json:"status"`
}

// DueCampaignResult is the outcome of one campaign fed from SendDueCampaigns.
type DueCampaignResult struct {
	CampaignID string              `json:"campaignId"`
	Result     *SendCampaignResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// FinalStatus maps a send tally to the campaign's terminal status. A run with
// no recipients counts as failed.
func FinalStatus(total, failures int) string {
	switch {
	case failures == total:
		return model.CampaignStatusFailed
	case failures > 0:
		return model.CampaignStatusPartial
	default:
		return model.CampaignStatusSent
	}
}

// SendCampaign claims the campaign, resolves its audience and sends to every
// recipient in turn. Per-recipient provider failures are tallied, not
// returned. Setup failures after the claim mark the campaign failed.
//
// Once the loop starts it runs to completion even if ctx is cancelled.
func (s *CampaignService) SendCampaign(ctx context.Context, campaignID string) (*SendCampaignResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "campaign.Send")
	span.SetAttributes(attribute.String("campaign.id", campaignID))
	defer span.End()

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignStatusSent {
		return nil, appErrors.ErrCampaignAlreadySent
	}

	claimed, err := s.CampaignRepo.ClaimForSending(ctx, campaignID, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim campaign %s: %w", campaignID, err)
	}
	if !claimed {
		return nil, appErrors.ErrCampaignBusy
	}
	s.logger().Info("campaign claimed for sending", zap.String("campaign_id", campaignID))

	// The claim is held from here on; a caller going away must not strand
	// the campaign in "sending".
	ctx = context.WithoutCancel(ctx)

	tmpl, recipients, err := s.prepare(ctx, campaign)
	if err != nil {
		s.fail(ctx, campaignID, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &SendCampaignResult{CampaignID: campaignID, TotalRecipients: len(recipients)}
	for i, rcpt := range recipients {
		if i > 0 {
			s.sleep(s.SendDelay)
		}
		if s.sendOne(ctx, campaign, tmpl, rcpt) {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	result.Status = FinalStatus(result.TotalRecipients, result.FailureCount)
	if err := s.CampaignRepo.Finish(ctx, campaignID, result.Status, result.SuccessCount); err != nil {
		s.report(ctx, err, "finish_campaign", campaignID)
		return result, fmt.Errorf("persist final status for campaign %s: %w", campaignID, err)
	}
	if s.Metrics != nil {
		s.Metrics.CampaignRuns.WithLabelValues(result.Status).Inc()
	}
	span.SetAttributes(
		attribute.Int("campaign.recipients", result.TotalRecipients),
		attribute.Int("campaign.failures", result.FailureCount),
	)
	s.logger().Info("campaign send finished",
		zap.String("campaign_id", campaignID),
		zap.String("status", result.Status),
		zap.Int("recipients", result.TotalRecipients),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
	)
	return result, nil
}

// prepare loads the template, resolves recipients and validates the
// campaign-level variables once for the whole run.
func (s *CampaignService) prepare(ctx context.Context, c *model.Campaign) (*model.Template, []model.Recipient, error) {
	tmpl, err := s.TemplateRepo.GetByID(ctx, c.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if !tmpl.Active {
		return nil, nil, appErrors.NewValidation("template_id", fmt.Sprintf("template %s is not active", tmpl.ID))
	}

	recipients, err := s.Resolver.Resolve(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	if err := ValidateParams(tmpl.TemplateType, MergeParams(tmpl.TemplateType, c.TemplateVariables)); err != nil {
		return nil, nil, err
	}
	return tmpl, recipients, nil
}

func (s *CampaignService) sendOne(ctx context.Context, c *model.Campaign, tmpl *model.Template, rcpt model.Recipient) bool {
	params := maps.Clone(c.TemplateVariables)
	if params == nil {
		params = map[string]any{}
	}
	if rcpt.FirstName != "" {
		params["firstName"] = rcpt.FirstName
	}
	if rcpt.LastName != "" {
		params["lastName"] = rcpt.LastName
	}

	html, err := s.Renderer.Render(ctx, tmpl.TemplateType, params)
	if err != nil {
		s.logger().Warn("skipping recipient, template params invalid",
			zap.String("campaign_id", c.ID), zap.String("to", rcpt.Email), zap.Error(err))
		return false
	}

	res, err := s.Dispatcher.Send(ctx, Dispatch{
		Recipient:  rcpt,
		Subject:    tmpl.Subject,
		From:       tmpl.From(),
		ReplyTo:    tmpl.ReplyToEmail,
		HTML:       html,
		CampaignID: c.ID,
	})
	if err != nil {
		s.report(ctx, err, "record_dispatch", c.ID)
	}
	return res.OK()
}

func (s *CampaignService) fail(ctx context.Context, campaignID string, cause error) {
	s.logger().Error("campaign send aborted", zap.String("campaign_id", campaignID), zap.Error(cause))
	s.report(ctx, cause, "send_campaign", campaignID)
	if err := s.CampaignRepo.MarkFailed(ctx, campaignID, cause.Error()); err != nil {
		s.report(ctx, err, "mark_campaign_failed", campaignID)
	}
	if s.Metrics != nil {
		s.Metrics.CampaignRuns.WithLabelValues(model.CampaignStatusFailed).Inc()
	}
}

// ScheduleCampaign sets a future send time on a campaign that has not been
// sent and is not currently sending.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, campaignID string, when time.Time) (*model.Campaign, error) {
	if when.IsZero() {
		return nil, appErrors.NewValidation("scheduledFor", "scheduled time is required")
	}
	if !when.After(s.now()) {
		return nil, appErrors.NewValidation("scheduledFor", "scheduled time must be in the future")
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignStatusSent:
		return nil, appErrors.ErrCampaignAlreadySent
	case model.CampaignStatusSending:
		return nil, appErrors.ErrCampaignBusy
	}

	if err := s.CampaignRepo.Schedule(ctx, campaignID, when); err != nil {
		return nil, err
	}
	when = when.UTC()
	campaign.Status = model.CampaignStatusScheduled
	campaign.ScheduledFor = &when
	return campaign, nil
}

// SendDueCampaigns sends every scheduled campaign whose time has passed. One
// campaign failing never stops the rest.
func (s *CampaignService) SendDueCampaigns(ctx context.Context, now time.Time) ([]DueCampaignResult, error) {
	due, err := s.CampaignRepo.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]DueCampaignResult, 0, len(due))
	for _, c := range due {
		res, err := s.SendCampaign(ctx, c.ID)
		out := DueCampaignResult{CampaignID: c.ID, Result: res}
		if err != nil {
			out.Error = err.Error()
			s.logger().Warn("scheduled campaign not sent", zap.String("campaign_id", c.ID), zap.Error(err))
		}
		results = append(results, out)
	}
	return results, nil
}

// CreateCampaignInput carries an operator's new campaign.
type CreateCampaignInput struct {
	Name              string            `json:"name"`
	TemplateID        string            `json:"templateId"`
	Audience          string            `json:"audience"`
	SpecificUsers     []string          `json:"specificUsers"`
	CustomRecipients  []model.Recipient `json:"customRecipients"`
	TemplateVariables map[string]any    `json:"templateVariables"`
	ScheduledFor      *time.Time        `json:"scheduledFor"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if in.Name == "" {
		return nil, appErrors.NewValidation("name", "name is required")
	}
	if in.TemplateID == "" {
		return nil, appErrors.NewValidation("templateId", "templateId is required")
	}
	if !isUUID(in.TemplateID) {
		return nil, appErrors.NewValidation("templateId", "templateId must be a UUID")
	}
	if in.Audience == "" {
		in.Audience = model.AudienceAllWaitlist
	}
	switch in.Audience {
	case model.AudienceAllWaitlist:
	case model.AudienceSpecificUsers:
		if len(in.SpecificUsers) == 0 {
			return nil, appErrors.NewValidation("specificUsers", "specific-users audience needs at least one subscriber id")
		}
		for _, id := range in.SpecificUsers {
			if !isUUID(id) {
				return nil, appErrors.NewValidation("specificUsers", fmt.Sprintf("subscriber id %q is not a UUID", id))
			}
		}
	case model.AudienceCustomList:
		if len(in.CustomRecipients) == 0 {
			return nil, appErrors.NewValidation("customRecipients", "custom-list audience needs at least one recipient")
		}
	default:
		return nil, appErrors.NewValidation("audience", fmt.Sprintf("unsupported audience %q", in.Audience))
	}

	tmpl, err := s.TemplateRepo.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := ValidateParams(tmpl.TemplateType, MergeParams(tmpl.TemplateType, in.TemplateVariables)); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:              in.Name,
		TemplateID:        in.TemplateID,
		Status:            model.CampaignStatusDraft,
		Audience:          in.Audience,
		SpecificUsers:     in.SpecificUsers,
		TemplateVariables: in.TemplateVariables,
	}
	if in.ScheduledFor != nil {
		if !in.ScheduledFor.After(s.now()) {
			return nil, appErrors.NewValidation("scheduledFor", "scheduled time must be in the future")
		}
		t := in.ScheduledFor.UTC()
		c.ScheduledFor = &t
		c.Status = model.CampaignStatusScheduled
	}

	var custom []model.Recipient
	if in.Audience == model.AudienceCustomList {
		custom = in.CustomRecipients
	}
	if err := s.CampaignRepo.Create(ctx, c, custom); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetCampaignStats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *CampaignService) report(ctx context.Context, err error, op, campaignID string) {
	if s.Reporter == nil || err == nil {
		return
	}
	s.Reporter.Capture(ctx, err, map[string]string{"operation": op, "campaignId": campaignID})
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *CampaignService) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
