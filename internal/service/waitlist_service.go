package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/queue"
	"github.com/unclebandit/waitlist-backend/internal/repository"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

const (
	RecentSignupsLimit  = 10
	referralCodeRetries = 3
	pendingWelcomeBatch = 500
	defaultWelcomeSubj  = "Welcome to StatOracle!"
)

// JoinRequest is the public signup form.
type JoinRequest struct {
	FirstName     string        `json:"firstName"`
	LastName      string        `json:"lastName"`
	Email         string        `json:"email"`
	PhoneNumber   string        `json:"phoneNumber"`
	Profession    string        `json:"profession"`
	ReferredBy    string        `json:"referredBy"`
	IncludeSurvey bool          `json:"includeSurvey"`
	Survey        *model.Survey `json:"survey"`
}

// JoinResult is returned to the person who signed up.
type JoinResult struct {
	ID               string `json:"id"`
	ReferralCode     string `json:"referralCode"`
	WaitlistPosition int    `json:"waitlistPosition"`
	WelcomeEmailSent bool   `json:"welcomeEmailSent"`
}

// WelcomeBatchResult tallies a pending-welcome run.
type WelcomeBatchResult struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type WaitlistService struct {
	SubscriberRepo repository.SubscriberRepositoryInterface
	Renderer       *Renderer
	Dispatcher     *Dispatcher
	Queue          queue.Queue
	Reporter       telemetry.ErrorReporter
	Metrics        *metrics.Metrics
	Logger         *zap.Logger

	From           string
	WelcomeSubject string

	// SendDelay is slept between consecutive welcome emails of one batch.
	SendDelay time.Duration
	Sleep     func(time.Duration)
	Now       func() time.Time
}

func (s *WaitlistService) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	if err := validateJoin(&req); err != nil {
		return nil, err
	}

	sub := &model.Subscriber{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		Profession:   req.Profession,
		ReferralCode: newReferralCode(req.FirstName),
	}

	var referrer *model.Subscriber
	if req.ReferredBy != "" {
		r, err := s.SubscriberRepo.GetByReferralCode(ctx, req.ReferredBy)
		if err != nil {
			return nil, err
		}
		if r != nil {
			referrer = r
			sub.ReferredBy = r.ReferralCode
		}
	}
	if req.IncludeSurvey && req.Survey != nil {
		sub.Survey = req.Survey
	}

	if err := s.create(ctx, sub); err != nil {
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.WaitlistSignups.Inc()
	}
	s.logger().Info("waitlist signup",
		zap.String("subscriber_id", sub.ID), zap.Int("position", sub.WaitlistPosition))

	if referrer != nil {
		if err := s.SubscriberRepo.IncrementReferralCount(ctx, referrer.ID); err != nil {
			s.report(ctx, err, "increment_referral")
		}
	}

	result := &JoinResult{
		ID:               sub.ID,
		ReferralCode:     sub.ReferralCode,
		WaitlistPosition: sub.WaitlistPosition,
	}
	result.WelcomeEmailSent = s.sendWelcome(ctx, sub)
	s.publish(sub)
	return result, nil
}

// create inserts sub, drawing a fresh referral code when the generated one
// is already taken.
func (s *WaitlistService) create(ctx context.Context, sub *model.Subscriber) error {
	var err error
	for attempt := 0; attempt < referralCodeRetries; attempt++ {
		if attempt > 0 {
			sub.ReferralCode = newReferralCode(sub.FirstName)
		}
		err = s.SubscriberRepo.Create(ctx, sub)
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			return err
		}
		s.logger().Debug("referral code collision, regenerating", zap.String("code", sub.ReferralCode))
	}
	return fmt.Errorf("allocate referral code: %w", err)
}

// RecentSignups returns the public projection of the latest entries.
func (s *WaitlistService) RecentSignups(ctx context.Context) ([]model.SignupNotice, error) {
	subs, err := s.SubscriberRepo.ListRecent(ctx, RecentSignupsLimit)
	if err != nil {
		return nil, err
	}
	out := make([]model.SignupNotice, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.Notice())
	}
	return out, nil
}

// SendPendingWelcomes sends a welcome email to every entry that has not had one.
func (s *WaitlistService) SendPendingWelcomes(ctx context.Context) (*WelcomeBatchResult, error) {
	subs, err := s.SubscriberRepo.ListPendingWelcome(ctx, pendingWelcomeBatch)
	if err != nil {
		return nil, err
	}
	res := &WelcomeBatchResult{Total: len(subs)}
	attempted := 0
	for _, sub := range subs {
		if strings.TrimSpace(sub.Email) == "" {
			res.Skipped++
			continue
		}
		if attempted > 0 {
			s.sleep(s.SendDelay)
		}
		attempted++
		if s.sendWelcome(ctx, sub) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	if res.Total > 0 {
		s.logger().Info("pending welcome emails processed",
			zap.Int("total", res.Total), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	}
	return res, nil
}

// sendWelcome never fails the caller; it reports and returns false instead.
func (s *WaitlistService) sendWelcome(ctx context.Context, sub *model.Subscriber) bool {
	html, err := s.Renderer.Render(ctx, model.TemplateWelcome, map[string]any{
		"firstName": sub.FirstName,
		"lastName":  sub.LastName,
	})
	if err != nil {
		s.report(ctx, err, "render_welcome")
		return false
	}

	subject := s.WelcomeSubject
	if subject == "" {
		subject = defaultWelcomeSubj
	}
	res, err := s.Dispatcher.Send(ctx, Dispatch{
		Recipient: sub.Recipient(),
		Subject:   subject,
		From:      s.From,
		HTML:      html,
	})
	if err != nil {
		s.report(ctx, err, "record_welcome")
	}
	if !res.OK() {
		s.logger().Warn("welcome email not sent", zap.String("subscriber_id", sub.ID), zap.Error(res.Err))
		return false
	}

	if err := s.SubscriberRepo.MarkWelcomeSent(ctx, sub.ID, s.now()); err != nil {
		s.report(ctx, err, "mark_welcome_sent")
	}
	return true
}

// publish emits the signup notice. Delivery is best effort.
func (s *WaitlistService) publish(sub *model.Subscriber) {
	if s.Queue == nil {
		return
	}
	payload, err := json.Marshal(sub.Notice())
	if err != nil {
		s.logger().Warn("encode signup notice", zap.Error(err))
		return
	}
	if err := s.Queue.Publish(queue.TopicSignups, payload); err != nil {
		s.logger().Debug("signup notice not published", zap.Error(err))
	}
}

func validateJoin(req *JoinRequest) error {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.ReferredBy = strings.TrimSpace(req.ReferredBy)

	if len([]rune(req.FirstName)) < 2 {
		return appErrors.NewValidation("firstName", "first name must be at least 2 characters")
	}
	if len([]rune(req.LastName)) < 2 {
		return appErrors.NewValidation("lastName", "last name must be at least 2 characters")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return appErrors.NewValidation("email", "please enter a valid email address")
	}
	if req.Profession != "" && !slices.Contains(model.Professions, req.Profession) {
		return appErrors.NewValidation("profession", fmt.Sprintf("unknown profession %q", req.Profession))
	}
	// An omitted age stays NULL; a given one must be at least 1.
	if req.IncludeSurvey && req.Survey != nil && req.Survey.Age != nil && *req.Survey.Age <= 0 {
		return appErrors.NewValidation("survey.age", "age must be a positive number")
	}
	return nil
}

// newReferralCode builds codes like ALEX-3F9A2C.
func newReferralCode(firstName string) string {
	prefix := strings.ToUpper(firstName)
	prefix = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, prefix)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if prefix == "" {
		prefix = "SO"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return prefix + "-" + suffix
}

func (s *WaitlistService) report(ctx context.Context, err error, op string) {
	if s.Reporter != nil {
		s.Reporter.Capture(ctx, err, map[string]string{"operation": op})
	}
}

func (s *WaitlistService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *WaitlistService) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (s *WaitlistService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
