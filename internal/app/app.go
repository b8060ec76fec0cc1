// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/waitlist-backend/internal/config"
	"github.com/unclebandit/waitlist-backend/internal/mailer"
	"github.com/unclebandit/waitlist-backend/internal/metrics"
	"github.com/unclebandit/waitlist-backend/internal/queue"
	"github.com/unclebandit/waitlist-backend/internal/repository"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

// App holds the wired services shared by the server and the worker.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Reporter *telemetry.Reporter
	Queue    queue.Queue

	TemplateRepo repository.TemplateRepositoryInterface
	Renderer     *service.Renderer
	Campaigns    *service.CampaignService
	Webhooks     *service.WebhookService
	Waitlist     *service.WaitlistService
}

// New wires repositories, the mail sender, the signup queue and the services
// on top of an open database.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, db *sql.DB) (*App, error) {
	m := metrics.New()
	reporter := &telemetry.Reporter{Logger: logger, Metrics: m}

	q, err := NewQueue(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, err
	}

	renderer, err := service.NewRenderer(reporter, logger)
	if err != nil {
		q.Close()
		return nil, err
	}

	campaignRepo := &repository.CampaignRepository{DB: db}
	templateRepo := &repository.TemplateRepository{DB: db}
	subscriberRepo := &repository.SubscriberRepository{DB: db}
	sentRepo := &repository.SentEmailRepository{DB: db}

	dispatcher := &service.Dispatcher{
		Sender:       NewSender(cfg.Email, logger),
		SentRepo:     sentRepo,
		CampaignRepo: campaignRepo,
		Metrics:      m,
		Logger:       logger,
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      m,
		Reporter:     reporter,
		Queue:        q,
		TemplateRepo: templateRepo,
		Renderer:     renderer,
		Campaigns: &service.CampaignService{
			CampaignRepo: campaignRepo,
			TemplateRepo: templateRepo,
			Resolver: &service.RecipientResolver{
				SubscriberRepo: subscriberRepo,
				CampaignRepo:   campaignRepo,
				Limit:          cfg.Email.AllSubscribersLimit,
			},
			Renderer:   renderer,
			Dispatcher: dispatcher,
			Reporter:   reporter,
			Metrics:    m,
			Logger:     logger,
			SendDelay:  cfg.Email.SendDelay,
		},
		Webhooks: &service.WebhookService{
			SentRepo:     sentRepo,
			CampaignRepo: campaignRepo,
			Metrics:      m,
			Logger:       logger,
		},
		Waitlist: &service.WaitlistService{
			SubscriberRepo: subscriberRepo,
			Renderer:       renderer,
			Dispatcher:     dispatcher,
			Queue:          q,
			Reporter:       reporter,
			Metrics:        m,
			Logger:         logger,
			From:           cfg.Email.From,
			WelcomeSubject: cfg.Email.WelcomeSubject,
			SendDelay:      cfg.Email.SendDelay,
		},
	}, nil
}

func (a *App) Close() error {
	return a.Queue.Close()
}

// NewSender returns the Resend client, or a logging sender when no API key
// is configured.
func NewSender(cfg config.EmailConfig, logger *zap.Logger) mailer.Sender {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set, emails will only be logged")
		return &mailer.LogSender{Logger: logger}
	}
	return mailer.NewResendSender(cfg.ResendAPIKey, cfg.ResendBaseURL, cfg.RequestTimeout)
}

func NewQueue(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (queue.Queue, error) {
	switch cfg.Driver {
	case config.QueueAMQP:
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		return q, nil
	case config.QueueRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return queue.NewRedisQueue(ctx, rdb, logger), nil
	default:
		return queue.NewInMemoryQueue(logger), nil
	}
}
