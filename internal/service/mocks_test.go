package service_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/mailer"
	"github.com/unclebandit/waitlist-backend/internal/model"
	"github.com/unclebandit/waitlist-backend/internal/queue"
	"github.com/unclebandit/waitlist-backend/internal/service"
)

// ====================== Campaign repository ======================

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	custom    map[string][]model.Recipient
	sent      *MockSentRepo
	writes    int
}

func NewMockCampaignRepo(sent *MockSentRepo) *MockCampaignRepo {
	return &MockCampaignRepo{
		campaigns: map[string]*model.Campaign{},
		custom:    map[string][]model.Recipient{},
		sent:      sent,
	}
}

func (m *MockCampaignRepo) Put(c *model.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
}

// Get returns the stored campaign without counting as a read by the service.
func (m *MockCampaignRepo) Get(id string) *model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.campaigns[id]
	return &cp
}

func (m *MockCampaignRepo) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *model.Campaign, custom []model.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	c.ID = fmt.Sprintf("cmp-%d", len(m.campaigns)+1)
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	if len(custom) > 0 {
		m.custom[c.ID] = custom
	}
	return nil
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *MockCampaignRepo) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range m.campaigns {
		if c.Status == model.CampaignStatusScheduled && c.ScheduledFor != nil && !c.ScheduledFor.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (m *MockCampaignRepo) ListCustomRecipients(ctx context.Context, campaignID string) ([]model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.custom[campaignID]), nil
}

func (m *MockCampaignRepo) ClaimForSending(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, nil
	}
	switch c.Status {
	case model.CampaignStatusDraft, model.CampaignStatusScheduled, model.CampaignStatusPartial, model.CampaignStatusFailed:
	default:
		return false, nil
	}
	m.writes++
	c.Status = model.CampaignStatusSending
	c.SentAt = &now
	c.ErrorDetails = ""
	return true, nil
}

func (m *MockCampaignRepo) Schedule(ctx context.Context, id string, when time.Time) error {
	return m.update(id, func(c *model.Campaign) {
		c.Status = model.CampaignStatusScheduled
		c.ScheduledFor = &when
	})
}

func (m *MockCampaignRepo) Finish(ctx context.Context, id, status string, sentCount int) error {
	return m.update(id, func(c *model.Campaign) {
		c.Status = status
		c.SentCount = sentCount
	})
}

func (m *MockCampaignRepo) MarkFailed(ctx context.Context, id, details string) error {
	return m.update(id, func(c *model.Campaign) {
		c.Status = model.CampaignStatusFailed
		c.ErrorDetails = details
	})
}

func (m *MockCampaignRepo) IncrementSentCount(ctx context.Context, id string) error {
	return m.update(id, func(c *model.Campaign) {
		c.SentCount++
		c.Status = model.CampaignStatusSending
	})
}

func (m *MockCampaignRepo) IncrementOpenCount(ctx context.Context, id string) error {
	return m.update(id, func(c *model.Campaign) { c.OpenCount++ })
}

func (m *MockCampaignRepo) IncrementClickCount(ctx context.Context, id string) error {
	return m.update(id, func(c *model.Campaign) { c.ClickCount++ })
}

func (m *MockCampaignRepo) GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error) {
	stats := map[string]int{}
	if m.sent == nil {
		return stats, nil
	}
	for _, rec := range m.sent.All() {
		if rec.CampaignID != nil && *rec.CampaignID == campaignID {
			stats[rec.Status]++
		}
	}
	return stats, nil
}

func (m *MockCampaignRepo) update(id string, fn func(*model.Campaign)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	m.writes++
	fn(c)
	return nil
}

// ====================== Template repository ======================

type MockTemplateRepo struct {
	templates map[string]*model.Template
}

func NewMockTemplateRepo(ts ...*model.Template) *MockTemplateRepo {
	m := &MockTemplateRepo{templates: map[string]*model.Template{}}
	for _, t := range ts {
		m.templates[t.ID] = t
	}
	return m
}

func (m *MockTemplateRepo) Create(ctx context.Context, t *model.Template) error {
	t.ID = fmt.Sprintf("tpl-%d", len(m.templates)+1)
	m.templates[t.ID] = t
	return nil
}

func (m *MockTemplateRepo) GetByID(ctx context.Context, id string) (*model.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (m *MockTemplateRepo) List(ctx context.Context, activeOnly bool) ([]*model.Template, error) {
	out := []*model.Template{}
	for _, t := range m.templates {
		if !activeOnly || t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// ====================== Subscriber repository ======================

type MockSubscriberRepo struct {
	mu        sync.Mutex
	subs      []*model.Subscriber
	CreateErr error

	// CreateFailures are returned, in order, before any insert succeeds.
	CreateFailures []error
	Codes          []string
	welcomeMark    map[string]time.Time
}

func NewMockSubscriberRepo(subs ...*model.Subscriber) *MockSubscriberRepo {
	return &MockSubscriberRepo{subs: subs, welcomeMark: map[string]time.Time{}}
}

func (m *MockSubscriberRepo) Create(ctx context.Context, s *model.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Codes = append(m.Codes, s.ReferralCode)
	if len(m.CreateFailures) > 0 {
		err := m.CreateFailures[0]
		m.CreateFailures = m.CreateFailures[1:]
		return err
	}
	for _, existing := range m.subs {
		if existing.Email == s.Email {
			return appErrors.ErrAlreadyOnWaitlist
		}
	}
	s.ID = fmt.Sprintf("sub-%d", len(m.subs)+1)
	s.WaitlistPosition = len(m.subs) + 1
	s.CreatedAt = time.Now()
	m.subs = append(m.subs, s)
	return nil
}

func (m *MockSubscriberRepo) GetByID(ctx context.Context, id string) (*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MockSubscriberRepo) GetByReferralCode(ctx context.Context, code string) (*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ReferralCode == code {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MockSubscriberRepo) List(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.subs) {
		limit = len(m.subs)
	}
	return slices.Clone(m.subs[:limit]), nil
}

func (m *MockSubscriberRepo) ListRecent(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.subs)
	slices.Reverse(out)
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSubscriberRepo) ListPendingWelcome(ctx context.Context, limit int) ([]*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Subscriber{}
	for _, s := range m.subs {
		if s.WelcomeEmailSentAt == nil && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockSubscriberRepo) IncrementReferralCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.ReferralCount++
		}
	}
	return nil
}

func (m *MockSubscriberRepo) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			t := at
			s.WelcomeEmailSentAt = &t
		}
	}
	m.welcomeMark[id] = at
	return nil
}

// ====================== Sent email repository ======================

type MockSentRepo struct {
	mu        sync.Mutex
	records   []*model.SentEmail
	updates   int
	CreateErr error
}

func (m *MockSentRepo) Create(ctx context.Context, e *model.SentEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	e.ID = fmt.Sprintf("se-%d", len(m.records)+1)
	cp := *e
	m.records = append(m.records, &cp)
	return nil
}

func (m *MockSentRepo) GetByProviderID(ctx context.Context, providerID string) (*model.SentEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ResendID != "" && r.ResendID == providerID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockSentRepo) Update(ctx context.Context, e *model.SentEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == e.ID {
			cp := *e
			m.records[i] = &cp
			m.updates++
			return nil
		}
	}
	return errors.New("sent email not found")
}

func (m *MockSentRepo) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.SentEmail, error) {
	out := []*model.SentEmail{}
	for _, r := range m.All() {
		if r.CampaignID != nil && *r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockSentRepo) All() []*model.SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.SentEmail, len(m.records))
	for i, r := range m.records {
		cp := *r
		out[i] = &cp
	}
	return out
}

func (m *MockSentRepo) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// ====================== Sender, reporter, queue ======================

// FakeSender accepts every message except those addressed to Reject.
type FakeSender struct {
	mu     sync.Mutex
	Reject map[string]error
	Sent   []mailer.Message
	OnSend func(ctx context.Context, msg mailer.Message)
	seq    int
}

func (f *FakeSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if f.OnSend != nil {
		f.OnSend(ctx, msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Reject[msg.To]; ok {
		return "", err
	}
	f.seq++
	f.Sent = append(f.Sent, msg)
	return fmt.Sprintf("re_%d", f.seq), nil
}

func (f *FakeSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

type RecordingReporter struct {
	mu     sync.Mutex
	Errors []error
	Tags   []map[string]string
}

func (r *RecordingReporter) Capture(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
	r.Tags = append(r.Tags, tags)
}

func (r *RecordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

type RecordingQueue struct {
	mu        sync.Mutex
	Published map[string][][]byte
}

func (q *RecordingQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Published == nil {
		q.Published = map[string][][]byte{}
	}
	q.Published[topic] = append(q.Published[topic], payload)
	return nil
}

func (q *RecordingQueue) Subscribe(topic string, h queue.Handler) error { return nil }
func (q *RecordingQueue) Close() error                                 { return nil }

// ====================== Fixture ======================

type fixture struct {
	Campaigns   *MockCampaignRepo
	Templates   *MockTemplateRepo
	Subscribers *MockSubscriberRepo
	Sent        *MockSentRepo
	Sender      *FakeSender
	Reporter    *RecordingReporter
	Sleeps      []time.Duration
	Service     *service.CampaignService
	Renderer    *service.Renderer
	Dispatcher  *service.Dispatcher
}

var activeTemplate = &model.Template{
	ID:           "5f0c6a8e-2d4b-4e7a-9c1f-3b8d2e6a0c11",
	Name:         "Waitlist confirmation",
	Subject:      "You're on the list",
	FromName:     "StatOracle",
	FromEmail:    "noreply@statoracle.com",
	ReplyToEmail: "team@statoracle.com",
	TemplateType: model.TemplateWaitlistConfirmation,
	Active:       true,
}

func newFixture(subs ...*model.Subscriber) *fixture {
	f := &fixture{
		Sent:        &MockSentRepo{},
		Templates:   NewMockTemplateRepo(activeTemplate),
		Subscribers: NewMockSubscriberRepo(subs...),
		Sender:      &FakeSender{Reject: map[string]error{}},
		Reporter:    &RecordingReporter{},
	}
	f.Campaigns = NewMockCampaignRepo(f.Sent)

	renderer, err := service.NewRenderer(f.Reporter, nil)
	if err != nil {
		panic(err)
	}
	f.Renderer = renderer
	f.Dispatcher = &service.Dispatcher{
		Sender:       f.Sender,
		SentRepo:     f.Sent,
		CampaignRepo: f.Campaigns,
	}
	f.Service = &service.CampaignService{
		CampaignRepo: f.Campaigns,
		TemplateRepo: f.Templates,
		Resolver: &service.RecipientResolver{
			SubscriberRepo: f.Subscribers,
			CampaignRepo:   f.Campaigns,
			Limit:          service.DefaultAllSubscribersLimit,
		},
		Renderer:   renderer,
		Dispatcher: f.Dispatcher,
		Reporter:   f.Reporter,
		SendDelay:  service.DefaultSendDelay,
		Sleep:      func(d time.Duration) { f.Sleeps = append(f.Sleeps, d) },
	}
	return f
}

func newSubscribers(n int) []*model.Subscriber {
	subs := make([]*model.Subscriber, n)
	for i := range subs {
		subs[i] = &model.Subscriber{
			ID:        fmt.Sprintf("sub-%d", i+1),
			FirstName: fmt.Sprintf("First%d", i+1),
			LastName:  "Player",
			Email:     fmt.Sprintf("player%d@example.com", i+1),
		}
	}
	return subs
}

func draftCampaign(id string) *model.Campaign {
	return &model.Campaign{
		ID:                id,
		Name:              "Launch",
		TemplateID:        activeTemplate.ID,
		Status:            model.CampaignStatusDraft,
		Audience:          model.AudienceAllWaitlist,
		TemplateVariables: map[string]any{"referralCode": "LAUNCH-1"},
	}
}
